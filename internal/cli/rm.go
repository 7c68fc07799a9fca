package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete memories",
		Long:  "Delete memories by id. Relations pointing at them are left in place and skipped on read.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		removed, err := s.Delete(ctx, args...)
		if len(removed) == 0 && err != nil {
			return fmt.Errorf("rm: %w", err)
		}
		if perr := printJSON(cmd.OutOrStdout(), map[string]interface{}{"ok": err == nil, "removed": removed}); perr != nil {
			return perr
		}
		return err
	})
}
