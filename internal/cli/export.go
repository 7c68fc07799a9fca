package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSON",
		Long:  "Export every memory, embeddings and relations included, as one JSON document. Exporting does not count as an access.",
		RunE:  runExport,
	}

	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	return withSession(cmd, func(ctx context.Context, s *session) error {
		data := s.Export(ctx)
		if output == "" {
			return printJSON(cmd.OutOrStdout(), data)
		}
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, b, 0o600); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{"ok": true, "exported": len(data.Entries), "path": output})
	})
}
