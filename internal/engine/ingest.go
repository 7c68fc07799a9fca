package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/memory-engine/internal/chunker"
	"github.com/rcliao/memory-engine/internal/model"
)

// Importance given to each adapter's entries when the record has none.
const (
	conversationImportance = 0.5
	codeAnalysisImportance = 0.7
	researchImportance     = 0.8
)

// ConversationTurn is one user message and the assistant's reply.
type ConversationTurn struct {
	SessionID string
	UserID    string
	ProjectID string
	Message   string
	Response  string
}

// CodeAnalysis is an analysis of one piece of code.
type CodeAnalysis struct {
	ProjectID  string
	FilePath   string
	Language   string
	Code       string
	Function   string
	Class      string
	Analysis   string
	Importance float64
}

// ResearchSynthesis is the outcome of a research task.
type ResearchSynthesis struct {
	ProjectID  string
	Topic      string
	Summary    string
	Findings   []string
	Sources    []string
	Importance float64
}

// StoreConversation stores a conversation turn.
func (m *Manager) StoreConversation(ctx context.Context, t ConversationTurn) (*model.Entry, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User: %s", t.Message)
	if t.Response != "" {
		fmt.Fprintf(&b, "\nAssistant: %s", t.Response)
	}
	return m.Store(ctx, model.KindConversation, b.String(), model.Metadata{
		Source:    model.SourceChat,
		SessionID: t.SessionID,
		UserID:    t.UserID,
		ProjectID: t.ProjectID,
	}, conversationImportance)
}

// StoreCodeAnalysis stores a code analysis with a reference to the code.
func (m *Manager) StoreCodeAnalysis(ctx context.Context, a CodeAnalysis) (*model.Entry, error) {
	content := a.Analysis
	if a.FilePath != "" {
		content = fmt.Sprintf("Analysis of %s:\n%s", a.FilePath, a.Analysis)
	}
	overrides := model.Metadata{
		Source:    model.SourceAnalysis,
		ProjectID: a.ProjectID,
	}
	if a.FilePath != "" {
		overrides.FileReferences = []string{a.FilePath}
		overrides.CodeReferences = []model.CodeReference{{
			FilePath: a.FilePath,
			Language: a.Language,
			Snippet:  a.Code,
			Function: a.Function,
			Class:    a.Class,
		}}
	}
	importance := a.Importance
	if importance == 0 {
		importance = codeAnalysisImportance
	}
	return m.Store(ctx, model.KindCodeAnalysis, content, overrides, importance)
}

// StoreResearch stores a research synthesis. Findings become a bullet list
// and sources are kept as file references.
func (m *Manager) StoreResearch(ctx context.Context, r ResearchSynthesis) (*model.Entry, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Research: %s\n\n%s", r.Topic, r.Summary)
	if len(r.Findings) > 0 {
		b.WriteString("\n\nFindings:")
		for _, f := range r.Findings {
			fmt.Fprintf(&b, "\n- %s", f)
		}
	}
	importance := r.Importance
	if importance == 0 {
		importance = researchImportance
	}
	return m.Store(ctx, model.KindResearch, b.String(), model.Metadata{
		Source:         model.SourceResearch,
		ProjectID:      r.ProjectID,
		Summary:        r.Summary,
		FileReferences: r.Sources,
	}, importance)
}

// IngestDocument splits a markdown document into sections and stores each
// one. A section's heading becomes its summary unless overrides set one.
// Sections that fail to persist are still returned; their errors are joined.
func (m *Manager) IngestDocument(ctx context.Context, kind model.Kind, text string, overrides model.Metadata, importance float64, opts chunker.Options) ([]*model.Entry, error) {
	sections := chunker.Split(text, opts)
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrInvalidEntry)
	}

	var entries []*model.Entry
	var errs []error
	for _, s := range sections {
		o := overrides.Clone()
		if o.Summary == "" && s.Heading != "" {
			o.Summary = s.Heading
		}
		e, err := m.Store(ctx, kind, s.Text, o, importance)
		if e == nil {
			return entries, err
		}
		entries = append(entries, e)
		if err != nil {
			errs = append(errs, fmt.Errorf("lines %d-%d: %w", s.StartLine, s.EndLine, err))
		}
	}
	return entries, errors.Join(errs...)
}
