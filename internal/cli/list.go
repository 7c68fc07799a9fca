package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/memory-engine/internal/index"
)

func init() {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List memories in an index bucket",
		Long: `List the memories filed under one index bucket, e.g.
  memory-engine list --by project --key shop
  memory-engine list --by week --key 2024-W1
Without --by, lists the most recent memories, newest first. Listing does not count as an access.`,
		RunE: runList,
	}
	listCmd.Flags().String("by", string(index.Recent), "Dimension: type, tag, project, entity, keyword, day, week, month, recent")
	listCmd.Flags().StringP("key", "k", "", "Bucket key")
	listCmd.Flags().IntP("limit", "l", 20, "Max results (0 for all)")
	listCmd.Flags().Bool("ids-only", false, "Only output ids")

	bucketsCmd := &cobra.Command{
		Use:   "buckets [dimension]",
		Short: "List index bucket keys and their sizes",
		Long:  "List the keys of one index dimension, or of every dimension, with how many memories each holds.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBuckets,
	}

	RootCmd.AddCommand(listCmd, bucketsCmd)
}

func parseDimension(s string) (index.Dimension, error) {
	d := index.Dimension(s)
	if d == index.Recent {
		return d, nil
	}
	for _, known := range index.Dimensions {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown dimension %q", s)
}

func runList(cmd *cobra.Command, args []string) error {
	by, _ := cmd.Flags().GetString("by")
	key, _ := cmd.Flags().GetString("key")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	d, err := parseDimension(by)
	if err != nil {
		return err
	}
	if d != index.Recent && key == "" {
		return fmt.Errorf("list: --key is required with --by %s", d)
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		ids := s.Bucket(d, key)
		if limit > 0 && len(ids) > limit {
			ids = ids[:limit]
		}
		if idsOnly {
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		}
		return printEntries(cmd.OutOrStdout(), s.Lookup(ids...))
	})
}

type bucketCount struct {
	Dimension index.Dimension `json:"dimension"`
	Key       string          `json:"key"`
	Count     int             `json:"count"`
}

func runBuckets(cmd *cobra.Command, args []string) error {
	dims := index.Dimensions
	if len(args) == 1 {
		d, err := parseDimension(args[0])
		if err != nil {
			return err
		}
		dims = []index.Dimension{d}
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		var rows []bucketCount
		for _, d := range dims {
			keys := s.BucketKeys(d)
			for _, k := range keys {
				rows = append(rows, bucketCount{Dimension: d, Key: k, Count: len(s.Bucket(d, k))})
			}
		}
		if formatFlag == "text" {
			for _, r := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s  %-30s  %d\n", r.Dimension, r.Key, r.Count)
			}
			return nil
		}
		if rows == nil {
			rows = []bucketCount{}
		}
		return printJSON(cmd.OutOrStdout(), rows)
	})
}
