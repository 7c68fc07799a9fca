package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memory-engine/internal/engine"
	"github.com/rcliao/memory-engine/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin. Metadata not given is extracted from the content.",
		RunE:  runPut,
	}

	cmd.Flags().StringP("kind", "k", string(model.KindContext), "Kind: conversation, code-analysis, decision, pattern, context, research")
	cmd.Flags().Float64P("importance", "i", engine.DefaultImportance, "Importance in [0,1]")
	metadataFlags(cmd)

	RootCmd.AddCommand(cmd)
}

// metadataFlags registers the metadata override flags shared by put and update.
func metadataFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("project", "p", "", "Project id")
	cmd.Flags().String("session", "", "Session id")
	cmd.Flags().String("user", "", "User id")
	cmd.Flags().String("source", "", "Source: chat, code, file, analysis, research, user-input")
	cmd.Flags().String("summary", "", "Summary (default: first sentence)")
	cmd.Flags().StringP("keywords", "t", "", "Comma-separated keywords; these also become tags")
	cmd.Flags().String("files", "", "Comma-separated file references")
}

func metadataOverrides(cmd *cobra.Command) model.Metadata {
	project, _ := cmd.Flags().GetString("project")
	session, _ := cmd.Flags().GetString("session")
	user, _ := cmd.Flags().GetString("user")
	source, _ := cmd.Flags().GetString("source")
	summary, _ := cmd.Flags().GetString("summary")
	keywords, _ := cmd.Flags().GetString("keywords")
	files, _ := cmd.Flags().GetString("files")

	return model.Metadata{
		Source:         model.Source(source),
		ProjectID:      project,
		SessionID:      session,
		UserID:         user,
		Summary:        summary,
		Keywords:       splitList(keywords),
		FileReferences: splitList(files),
	}
}

func runPut(cmd *cobra.Command, args []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	importance, _ := cmd.Flags().GetFloat64("importance")

	content, err := readContent(args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("put: content is required (positional arg or stdin)")
	}
	overrides := metadataOverrides(cmd)

	return withSession(cmd, func(ctx context.Context, s *session) error {
		e, err := s.Store(ctx, model.Kind(kind), strings.TrimSpace(content), overrides, importance)
		if e == nil {
			return fmt.Errorf("put: %w", err)
		}
		if err != nil {
			// kept in memory for this run only
			s.log.Warn("put: entry not persisted", "id", e.ID, "error", err)
		}
		if perr := printEntry(cmd.OutOrStdout(), e); perr != nil {
			return perr
		}
		return err
	})
}
