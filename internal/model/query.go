package model

import "time"

// MatchType says which channel produced a search result.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchSemantic MatchType = "semantic"
	MatchRelated  MatchType = "related"
	MatchTemporal MatchType = "temporal"
)

// TimeRange bounds CreatedAt, inclusive on both ends. A zero bound is open.
type TimeRange struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Query describes a search. Zero values mean "no constraint".
type Query struct {
	Text           string     `json:"text,omitempty"`
	Kinds          []Kind     `json:"kinds,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Project        string     `json:"project,omitempty"`
	TimeRange      *TimeRange `json:"time_range,omitempty"`
	Entities       []string   `json:"entities,omitempty"`
	Keywords       []string   `json:"keywords,omitempty"`
	MinImportance  float64    `json:"min_importance,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Semantic       bool       `json:"semantic,omitempty"`
	IncludeRelated bool       `json:"include_related,omitempty"`
}

// SearchResult is one ranked hit.
type SearchResult struct {
	Entry      *Entry    `json:"entry"`
	Score      float64   `json:"score"`
	Relevance  float64   `json:"relevance"`
	MatchType  MatchType `json:"match_type"`
	Highlights []string  `json:"highlights"`
}
