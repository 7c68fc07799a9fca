// Package model defines the core memory data types.
package model

import (
	"slices"
	"time"
)

// Kind classifies what an entry records. It is fixed at creation.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindCodeAnalysis Kind = "code-analysis"
	KindDecision     Kind = "decision"
	KindPattern      Kind = "pattern"
	KindContext      Kind = "context"
	KindResearch     Kind = "research"
)

// ValidKinds are the allowed entry kinds.
var ValidKinds = map[Kind]bool{
	KindConversation: true,
	KindCodeAnalysis: true,
	KindDecision:     true,
	KindPattern:      true,
	KindContext:      true,
	KindResearch:     true,
}

// Source records where the content came from.
type Source string

const (
	SourceChat      Source = "chat"
	SourceCode      Source = "code"
	SourceFile      Source = "file"
	SourceAnalysis  Source = "analysis"
	SourceResearch  Source = "research"
	SourceUserInput Source = "user-input"
)

// ValidSources are the allowed metadata sources.
var ValidSources = map[Source]bool{
	SourceChat:      true,
	SourceCode:      true,
	SourceFile:      true,
	SourceAnalysis:  true,
	SourceResearch:  true,
	SourceUserInput: true,
}

// CodeReference points at a piece of code mentioned by an entry.
type CodeReference struct {
	FilePath string `json:"file_path"`
	Language string `json:"language,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
	Function string `json:"function,omitempty"`
	Class    string `json:"class,omitempty"`
}

// Entity is a typed name extracted from content.
type Entity struct {
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	Context    string  `json:"context,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Key returns the "type:name" form used by the entity index.
func (e Entity) Key() string {
	return e.Type + ":" + e.Name
}

// Metadata is the enrichment envelope attached to every entry.
type Metadata struct {
	Source         Source          `json:"source"`
	ProjectID      string          `json:"project_id,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	FileReferences []string        `json:"file_references"`
	CodeReferences []CodeReference `json:"code_references"`
	Entities       []Entity        `json:"entities"`
	Summary        string          `json:"summary,omitempty"`
	Keywords       []string        `json:"keywords"`
	Confidence     float64         `json:"confidence"`
}

// Clone returns a deep copy of the metadata.
func (m Metadata) Clone() Metadata {
	m.FileReferences = slices.Clone(m.FileReferences)
	m.CodeReferences = slices.Clone(m.CodeReferences)
	m.Entities = slices.Clone(m.Entities)
	m.Keywords = slices.Clone(m.Keywords)
	return m
}

// Entry is one stored unit of memory.
//
// Content, Kind, Metadata and Embedding never change after creation.
// AccessCount and LastAccessed are updated on every read, and RelatedEntries
// gains back-links when a later entry relates to this one; the engine does
// both under its write lock. Related ids may refer to deleted entries.
type Entry struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	Content        string    `json:"content"`
	Metadata       Metadata  `json:"metadata"`
	Embedding      []float32 `json:"embedding,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	AccessCount    int       `json:"access_count"`
	LastAccessed   time.Time `json:"last_accessed"`
	Importance     float64   `json:"importance"`
	Tags           []string  `json:"tags,omitempty"`
	RelatedEntries []string  `json:"related_entries,omitempty"`
	Version        int       `json:"version"`
	Supersedes     string    `json:"supersedes,omitempty"`
}

// Clone returns a deep copy safe to hand to callers outside the engine lock.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Metadata = e.Metadata.Clone()
	c.Embedding = slices.Clone(e.Embedding)
	c.Tags = slices.Clone(e.Tags)
	c.RelatedEntries = slices.Clone(e.RelatedEntries)
	return &c
}

// HasTag reports whether the entry carries tag.
func (e *Entry) HasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

// RelatedTo reports whether id is in the entry's relation list.
func (e *Entry) RelatedTo(id string) bool {
	return slices.Contains(e.RelatedEntries, id)
}
