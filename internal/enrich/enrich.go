// Package enrich extracts structure from raw content and merges it with
// caller supplied metadata.
package enrich

import (
	"context"
	"slices"

	"github.com/rcliao/memory-engine/internal/model"
)

// Analyzer is the enrichment collaborator. It receives the caller's
// overrides for context but does not need to echo them back; Merge applies
// them afterwards.
type Analyzer interface {
	Analyze(ctx context.Context, content string, overrides model.Metadata) (model.Metadata, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, content string, overrides model.Metadata) (model.Metadata, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, content string, overrides model.Metadata) (model.Metadata, error) {
	return f(ctx, content, overrides)
}

// Defaults is the minimal metadata every entry starts from.
func Defaults() model.Metadata {
	return model.Metadata{
		Source:         model.SourceUserInput,
		FileReferences: []string{},
		CodeReferences: []model.CodeReference{},
		Entities:       []model.Entity{},
		Keywords:       []string{},
	}
}

// Merge layers analyzed metadata over the defaults and overrides over both.
// Non-empty override scalars win, override lists are appended, and keywords
// are de-duplicated keeping first occurrence.
func Merge(analyzed, overrides model.Metadata) model.Metadata {
	out := Defaults()
	overlay(&out, analyzed)
	overlay(&out, overrides)
	out.Keywords = dedupe(out.Keywords)
	return out
}

func overlay(dst *model.Metadata, src model.Metadata) {
	if src.Source != "" {
		dst.Source = src.Source
	}
	if src.ProjectID != "" {
		dst.ProjectID = src.ProjectID
	}
	if src.SessionID != "" {
		dst.SessionID = src.SessionID
	}
	if src.UserID != "" {
		dst.UserID = src.UserID
	}
	if src.Summary != "" {
		dst.Summary = src.Summary
	}
	if src.Confidence != 0 {
		dst.Confidence = src.Confidence
	}
	dst.FileReferences = append(dst.FileReferences, src.FileReferences...)
	dst.CodeReferences = append(dst.CodeReferences, src.CodeReferences...)
	dst.Entities = append(dst.Entities, src.Entities...)
	dst.Keywords = append(dst.Keywords, src.Keywords...)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return slices.Clip(out)
}
