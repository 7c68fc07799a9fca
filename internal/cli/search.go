package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/memory-engine/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories",
		Long: `Search memory content and metadata for matching terms, optionally adding
semantically similar entries and entries related to the hits. Without a query
every entry passing the filters is returned, most important first.`,
		RunE: runSearch,
	}

	cmd.Flags().StringSlice("kind", nil, "Filter by kinds")
	cmd.Flags().StringP("tags", "t", "", "Filter by tags (comma-separated, any)")
	cmd.Flags().StringP("project", "p", "", "Filter by project")
	cmd.Flags().String("entities", "", "Filter by entities, name or type:name (comma-separated, any)")
	cmd.Flags().String("keywords", "", "Filter by keywords (comma-separated, any)")
	cmd.Flags().Float64("min-importance", 0, "Minimum importance")
	cmd.Flags().String("since", "", "Created at or after (RFC 3339 or duration ago, e.g. 48h)")
	cmd.Flags().String("until", "", "Created at or before (RFC 3339 or duration ago)")
	cmd.Flags().IntP("limit", "l", 0, "Max results (default from config)")
	cmd.Flags().BoolP("semantic", "s", false, "Add embedding-similarity matches")
	cmd.Flags().BoolP("related", "r", false, "Add entries related to the hits")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	q, err := queryFromFlags(cmd, strings.Join(args, " "), time.Now())
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		results, err := s.Search(ctx, q)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		return printResults(cmd.OutOrStdout(), results)
	})
}

func queryFromFlags(cmd *cobra.Command, text string, now time.Time) (model.Query, error) {
	kinds, _ := cmd.Flags().GetStringSlice("kind")
	tags, _ := cmd.Flags().GetString("tags")
	project, _ := cmd.Flags().GetString("project")
	entities, _ := cmd.Flags().GetString("entities")
	keywords, _ := cmd.Flags().GetString("keywords")
	minImportance, _ := cmd.Flags().GetFloat64("min-importance")
	since, _ := cmd.Flags().GetString("since")
	until, _ := cmd.Flags().GetString("until")
	limit, _ := cmd.Flags().GetInt("limit")
	semantic, _ := cmd.Flags().GetBool("semantic")
	related, _ := cmd.Flags().GetBool("related")

	q := model.Query{
		Text:           text,
		Tags:           splitList(tags),
		Project:        project,
		Entities:       splitList(entities),
		Keywords:       splitList(keywords),
		MinImportance:  minImportance,
		Limit:          limit,
		Semantic:       semantic,
		IncludeRelated: related,
	}
	var err error
	if q.Kinds, err = parseKinds(kinds); err != nil {
		return q, err
	}
	start, err := parseTime(since, now)
	if err != nil {
		return q, err
	}
	end, err := parseTime(until, now)
	if err != nil {
		return q, err
	}
	if !start.IsZero() || !end.IsZero() {
		q.TimeRange = &model.TimeRange{Start: start, End: end}
	}
	return q, nil
}
