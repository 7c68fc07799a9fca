package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a memory",
		Long:  "Retrieve a memory by id. Reading counts as an access.",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
	cmd.Flags().Bool("related", false, "Also return the entries it relates to")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	related, _ := cmd.Flags().GetBool("related")

	return withSession(cmd, func(ctx context.Context, s *session) error {
		if related {
			entries, err := s.Related(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get: %w", err)
			}
			return printEntries(cmd.OutOrStdout(), entries)
		}
		e, err := s.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		return printEntry(cmd.OutOrStdout(), e)
	})
}
