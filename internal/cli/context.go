package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memory-engine/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [description]",
		Short: "Assemble relevant memories for a task",
		Long:  "Search and score memories, then greedily pack them into a token budget.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runContext,
	}

	cmd.Flags().StringP("project", "p", "", "Filter by project")
	cmd.Flags().StringSlice("kind", nil, "Filter by kinds")
	cmd.Flags().StringP("tags", "t", "", "Filter by tags (comma-separated, any)")
	cmd.Flags().BoolP("semantic", "s", false, "Include semantic matches")
	cmd.Flags().IntP("budget", "b", 4000, "Max tokens in output")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) error {
	project, _ := cmd.Flags().GetString("project")
	rawKinds, _ := cmd.Flags().GetStringSlice("kind")
	tags, _ := cmd.Flags().GetString("tags")
	semantic, _ := cmd.Flags().GetBool("semantic")
	budget, _ := cmd.Flags().GetInt("budget")

	kinds, err := parseKinds(rawKinds)
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		result, err := s.Context(ctx, engine.ContextParams{
			Query:    strings.Join(args, " "),
			Kinds:    kinds,
			Tags:     splitList(tags),
			Project:  project,
			Semantic: semantic,
			Budget:   budget,
		})
		if err != nil {
			return fmt.Errorf("context: %w", err)
		}
		if formatFlag == "text" {
			for _, e := range result.Entries {
				fmt.Fprintf(cmd.OutOrStdout(), "## %s (%s, %.2f)\n%s\n\n", e.ID, e.Kind, e.Score, e.Content)
			}
			return nil
		}
		return printJSON(cmd.OutOrStdout(), result)
	})
}
