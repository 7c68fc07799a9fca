package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Evict stale, unimportant memories and recluster",
		Long:  "Remove memories that are below the importance limit, not read within the age limit and rarely read, then recompute clusters.",
		RunE:  runOptimize,
	}

	clustersCmd := &cobra.Command{
		Use:   "clusters",
		Short: "Show semantic clusters",
		Long:  "Recompute k-means clusters over the stored embeddings and print their members.",
		RunE:  runClusters,
	}
	clustersCmd.Flags().IntP("k", "k", 0, "Number of clusters (default from config)")
	clustersCmd.Flags().Bool("centroids", false, "Include centroids in JSON output")

	RootCmd.AddCommand(optimizeCmd, clustersCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		report, err := s.Optimize(ctx)
		if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
			return perr
		}
		if err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
		return nil
	})
}

func runClusters(cmd *cobra.Command, args []string) error {
	k, _ := cmd.Flags().GetInt("k")
	centroids, _ := cmd.Flags().GetBool("centroids")

	return withSession(cmd, func(ctx context.Context, s *session) error {
		clusters := s.Recluster(k)
		if formatFlag == "text" {
			for i, c := range clusters {
				fmt.Fprintf(cmd.OutOrStdout(), "cluster %d: %d members\n", i, len(c.Members))
				for _, e := range s.Lookup(c.Members...) {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n", e.ID, oneLine(e.Content, 70))
				}
			}
			return nil
		}
		if !centroids {
			for i := range clusters {
				clusters[i].Centroid = nil
			}
		}
		return printJSON(cmd.OutOrStdout(), clusters)
	})
}
