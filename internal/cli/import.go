package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/memory-engine/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import memories from JSON",
		Long:  "Import memories from JSON (file or stdin). Expects the format produced by export. Entries with existing ids are replaced.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var export engine.ExportData
	if err := json.Unmarshal(data, &export); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		imported, err := s.Import(ctx, &export)
		if imported == 0 && err != nil {
			return fmt.Errorf("import: %w", err)
		}
		if perr := printJSON(cmd.OutOrStdout(), map[string]interface{}{"ok": err == nil, "imported": imported}); perr != nil {
			return perr
		}
		return err
	})
}
