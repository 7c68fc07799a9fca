package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/memory-engine/internal/chunker"
	"github.com/rcliao/memory-engine/internal/engine"
	"github.com/rcliao/memory-engine/internal/model"
)

func init() {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Store structured records and documents",
	}

	convCmd := &cobra.Command{
		Use:   "conversation",
		Short: "Store a conversation turn",
		RunE:  runIngestConversation,
	}
	convCmd.Flags().StringP("message", "m", "", "User message (required)")
	convCmd.Flags().StringP("response", "r", "", "Assistant response")
	convCmd.Flags().String("session", "", "Session id")
	convCmd.Flags().String("user", "", "User id")
	convCmd.Flags().StringP("project", "p", "", "Project id")
	convCmd.MarkFlagRequired("message")

	codeCmd := &cobra.Command{
		Use:   "code",
		Short: "Store a code analysis",
		RunE:  runIngestCode,
	}
	codeCmd.Flags().String("file", "", "Analyzed file path")
	codeCmd.Flags().String("language", "", "Language")
	codeCmd.Flags().String("function", "", "Function name")
	codeCmd.Flags().String("class", "", "Class or type name")
	codeCmd.Flags().String("code", "", "Code snippet")
	codeCmd.Flags().StringP("analysis", "a", "", "Analysis text (required)")
	codeCmd.Flags().StringP("project", "p", "", "Project id")
	codeCmd.Flags().Float64P("importance", "i", 0, "Importance in [0,1] (default 0.7)")
	codeCmd.MarkFlagRequired("analysis")

	researchCmd := &cobra.Command{
		Use:   "research",
		Short: "Store a research synthesis",
		RunE:  runIngestResearch,
	}
	researchCmd.Flags().String("topic", "", "Topic (required)")
	researchCmd.Flags().String("summary", "", "Summary")
	researchCmd.Flags().StringArray("finding", nil, "A finding (repeatable)")
	researchCmd.Flags().StringArray("source", nil, "A source URL or path (repeatable)")
	researchCmd.Flags().StringP("project", "p", "", "Project id")
	researchCmd.Flags().Float64P("importance", "i", 0, "Importance in [0,1] (default 0.8)")
	researchCmd.MarkFlagRequired("topic")

	docCmd := &cobra.Command{
		Use:   "doc <file>",
		Short: "Split a markdown document into sections and store each",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngestDoc,
	}
	docCmd.Flags().StringP("kind", "k", string(model.KindContext), "Kind for every section")
	docCmd.Flags().Float64P("importance", "i", engine.DefaultImportance, "Importance in [0,1]")
	docCmd.Flags().StringP("project", "p", "", "Project id")
	docCmd.Flags().Int("target-size", chunker.DefaultTargetSize, "Preferred section size in chars")
	docCmd.Flags().Int("max-size", chunker.DefaultMaxSize, "Hard section size limit in chars")

	ingestCmd.AddCommand(convCmd, codeCmd, researchCmd, docCmd)
	RootCmd.AddCommand(ingestCmd)
}

func runIngestConversation(cmd *cobra.Command, args []string) error {
	var t engine.ConversationTurn
	t.Message, _ = cmd.Flags().GetString("message")
	t.Response, _ = cmd.Flags().GetString("response")
	t.SessionID, _ = cmd.Flags().GetString("session")
	t.UserID, _ = cmd.Flags().GetString("user")
	t.ProjectID, _ = cmd.Flags().GetString("project")

	return storeOne(cmd, func(ctx context.Context, s *session) (*model.Entry, error) {
		return s.StoreConversation(ctx, t)
	})
}

func runIngestCode(cmd *cobra.Command, args []string) error {
	var a engine.CodeAnalysis
	a.FilePath, _ = cmd.Flags().GetString("file")
	a.Language, _ = cmd.Flags().GetString("language")
	a.Function, _ = cmd.Flags().GetString("function")
	a.Class, _ = cmd.Flags().GetString("class")
	a.Code, _ = cmd.Flags().GetString("code")
	a.Analysis, _ = cmd.Flags().GetString("analysis")
	a.ProjectID, _ = cmd.Flags().GetString("project")
	a.Importance, _ = cmd.Flags().GetFloat64("importance")

	return storeOne(cmd, func(ctx context.Context, s *session) (*model.Entry, error) {
		return s.StoreCodeAnalysis(ctx, a)
	})
}

func runIngestResearch(cmd *cobra.Command, args []string) error {
	var r engine.ResearchSynthesis
	r.Topic, _ = cmd.Flags().GetString("topic")
	r.Summary, _ = cmd.Flags().GetString("summary")
	r.Findings, _ = cmd.Flags().GetStringArray("finding")
	r.Sources, _ = cmd.Flags().GetStringArray("source")
	r.ProjectID, _ = cmd.Flags().GetString("project")
	r.Importance, _ = cmd.Flags().GetFloat64("importance")

	return storeOne(cmd, func(ctx context.Context, s *session) (*model.Entry, error) {
		return s.StoreResearch(ctx, r)
	})
}

// storeOne prints the stored entry even when only its persistence failed.
func storeOne(cmd *cobra.Command, fn func(context.Context, *session) (*model.Entry, error)) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		e, err := fn(ctx, s)
		if e == nil {
			return fmt.Errorf("ingest: %w", err)
		}
		if perr := printEntry(cmd.OutOrStdout(), e); perr != nil {
			return perr
		}
		return err
	})
}

func runIngestDoc(cmd *cobra.Command, args []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	importance, _ := cmd.Flags().GetFloat64("importance")
	project, _ := cmd.Flags().GetString("project")
	target, _ := cmd.Flags().GetInt("target-size")
	maxSize, _ := cmd.Flags().GetInt("max-size")

	text, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	overrides := model.Metadata{
		Source:         model.SourceFile,
		ProjectID:      project,
		FileReferences: []string{args[0]},
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		entries, err := s.IngestDocument(ctx, model.Kind(kind), string(text), overrides, importance, chunker.Options{
			TargetSize: target,
			MaxSize:    maxSize,
		})
		if len(entries) == 0 && err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		if perr := printEntries(cmd.OutOrStdout(), entries); perr != nil {
			return perr
		}
		return err
	})
}
