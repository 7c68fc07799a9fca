package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update <id> [content]",
		Short: "Store a revised version of a memory",
		Long:  "Store a revision that supersedes an existing memory. The original is kept. Omitted content keeps the original text.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runUpdate,
	}
	metadataFlags(cmd)

	RootCmd.AddCommand(cmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	content, err := readContent(args[1:])
	if err != nil {
		return err
	}
	overrides := metadataOverrides(cmd)

	return withSession(cmd, func(ctx context.Context, s *session) error {
		e, err := s.Update(ctx, args[0], content, overrides)
		if e == nil {
			return fmt.Errorf("update: %w", err)
		}
		if perr := printEntry(cmd.OutOrStdout(), e); perr != nil {
			return perr
		}
		return err
	})
}
