package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory statistics",
		RunE:  runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		return printJSON(cmd.OutOrStdout(), s.Stats(ctx))
	})
}
