package engine

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rcliao/memory-engine/internal/embedding"
	"github.com/rcliao/memory-engine/internal/index"
	"github.com/rcliao/memory-engine/internal/model"
)

// Text match weights.
const (
	contentMatch  = 1.0
	metadataMatch = 0.5
	tagMatch      = 0.8
)

// hit is a scored candidate before access bookkeeping.
type hit struct {
	id         string
	score      float64
	relevance  float64
	match      model.MatchType
	highlights []string
}

// Search runs q over every entry and returns ranked results. Each returned
// entry has its access statistics bumped exactly once.
//
// With empty text the query browses: every entry passing the filters is a
// temporal match with score 1, ranked by importance.
func (m *Manager) Search(ctx context.Context, q model.Query) ([]model.SearchResult, error) {
	ctx, span := m.tel.start(ctx, "memory.search")
	defer span.End()

	qvec := m.queryVector(ctx, q)

	m.mu.RLock()
	hits := m.execute(m.idx, q, qvec)
	m.mu.RUnlock()

	m.mu.Lock()
	now := m.opts.Now()
	results := make([]model.SearchResult, 0, len(hits))
	for _, h := range hits {
		e, ok := m.idx.Get(h.id)
		if !ok {
			// evicted between scoring and bookkeeping
			continue
		}
		m.touch(e, now)
		results = append(results, model.SearchResult{
			Entry:      e.Clone(),
			Score:      h.score,
			Relevance:  h.relevance,
			MatchType:  h.match,
			Highlights: h.highlights,
		})
	}
	m.mu.Unlock()

	span.SetAttributes(
		attribute.Int("memory.search.results", len(results)),
		attribute.Bool("memory.search.semantic", qvec != nil),
	)
	m.tel.results.Add(ctx, int64(len(results)))
	return results, nil
}

// queryVector embeds q.Text for the semantic channel. It returns nil when
// the query is not semantic or embedding fails.
func (m *Manager) queryVector(ctx context.Context, q model.Query) embedding.Vector {
	if !q.Semantic || strings.TrimSpace(q.Text) == "" {
		return nil
	}
	v, err := m.opts.Embedder.Embed(ctx, q.Text)
	if err != nil {
		m.log.Warn("search: query embedding failed, semantic channel skipped", "error", err)
		return nil
	}
	return v
}

// execute is the scan: score, merge, filter, rank, truncate, expand. It
// reads ix only; the caller holds at least the read lock.
func (m *Manager) execute(ix *index.Store, q model.Query, qvec embedding.Vector) []hit {
	entries := ix.All()
	text := strings.TrimSpace(q.Text)

	var candidates []hit
	if text == "" {
		for _, e := range entries {
			candidates = append(candidates, hit{id: e.ID, score: 1, match: model.MatchTemporal, highlights: []string{}})
		}
	} else {
		candidates = textScores(entries, strings.Fields(strings.ToLower(text)))
		if qvec != nil {
			candidates = append(candidates, semanticScores(ix, entries, qvec)...)
		}
	}
	candidates = mergeHits(candidates)

	filtered := candidates[:0]
	for _, h := range candidates {
		e, _ := ix.Get(h.id)
		if matchesFilters(e, q) {
			h.relevance = h.score * e.Importance
			filtered = append(filtered, h)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].relevance > filtered[j].relevance
	})

	limit := q.Limit
	if limit <= 0 {
		limit = m.opts.DefaultLimit
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	if q.IncludeRelated {
		filtered = expandRelated(ix, filtered, *m.opts.RelatedDecay)
	}
	return filtered
}

// textScores gives each entry +1 per term found in its content, +0.5 per
// term found in its serialized metadata and +0.8 per tag containing a term,
// divided by the number of terms.
func textScores(entries []*model.Entry, terms []string) []hit {
	if len(terms) == 0 {
		return nil
	}
	var out []hit
	for _, e := range entries {
		content := strings.ToLower(e.Content)
		meta := serializedMetadata(e)

		var score float64
		highlights := []string{}
		for _, term := range terms {
			matched := false
			if strings.Contains(content, term) {
				score += contentMatch
				matched = true
			}
			if strings.Contains(meta, term) {
				score += metadataMatch
				matched = true
			}
			if matched && !slices.Contains(highlights, term) {
				highlights = append(highlights, term)
			}
			for _, tag := range e.Tags {
				if strings.Contains(strings.ToLower(tag), term) {
					score += tagMatch
					if !slices.Contains(highlights, tag) {
						highlights = append(highlights, tag)
					}
				}
			}
		}
		if score > 0 {
			out = append(out, hit{
				id:         e.ID,
				score:      score / float64(len(terms)),
				match:      model.MatchExact,
				highlights: highlights,
			})
		}
	}
	return out
}

func serializedMetadata(e *model.Entry) string {
	b, err := json.Marshal(e.Metadata)
	if err != nil {
		return ""
	}
	return strings.ToLower(string(b))
}

// semanticScores keeps entries whose stored vector is at least the index
// threshold similar to qvec. Entries without a vector are skipped.
func semanticScores(ix *index.Store, entries []*model.Entry, qvec embedding.Vector) []hit {
	var out []hit
	for _, e := range entries {
		v, ok := ix.EmbeddingOf(e.ID)
		if !ok {
			continue
		}
		sim := embedding.CosineSimilarity(qvec, v)
		if sim >= ix.Threshold() {
			out = append(out, hit{id: e.ID, score: sim, match: model.MatchSemantic, highlights: []string{}})
		}
	}
	return out
}

// mergeHits keeps one hit per id: the higher score wins, and on a tie the
// exact match wins so its highlights survive. First-seen order is kept.
func mergeHits(hits []hit) []hit {
	pos := make(map[string]int, len(hits))
	out := make([]hit, 0, len(hits))
	for _, h := range hits {
		i, ok := pos[h.id]
		if !ok {
			pos[h.id] = len(out)
			out = append(out, h)
			continue
		}
		cur := out[i]
		if h.score > cur.score || (h.score == cur.score && h.match == model.MatchExact) {
			out[i] = h
		}
	}
	return out
}

func matchesFilters(e *model.Entry, q model.Query) bool {
	if len(q.Kinds) > 0 && !slices.Contains(q.Kinds, e.Kind) {
		return false
	}
	if len(q.Tags) > 0 && !slices.ContainsFunc(q.Tags, e.HasTag) {
		return false
	}
	if q.Project != "" && e.Metadata.ProjectID != q.Project {
		return false
	}
	if q.TimeRange != nil && !q.TimeRange.Contains(e.CreatedAt) {
		return false
	}
	if e.Importance < q.MinImportance {
		return false
	}
	if len(q.Entities) > 0 && !slices.ContainsFunc(q.Entities, func(name string) bool {
		return hasEntity(e, name)
	}) {
		return false
	}
	if len(q.Keywords) > 0 && !slices.ContainsFunc(q.Keywords, func(kw string) bool {
		return hasKeyword(e, kw)
	}) {
		return false
	}
	return true
}

// hasEntity matches either an entity name or its "type:name" key, ignoring
// case.
func hasEntity(e *model.Entry, name string) bool {
	for _, ent := range e.Metadata.Entities {
		if strings.EqualFold(ent.Name, name) || strings.EqualFold(ent.Key(), name) {
			return true
		}
	}
	return false
}

func hasKeyword(e *model.Entry, kw string) bool {
	for _, k := range e.Metadata.Keywords {
		if strings.EqualFold(k, kw) {
			return true
		}
	}
	return false
}

// expandRelated appends the related entries of every result with the
// parent's score scaled by decay. Ids already present and ids of deleted
// entries are skipped. Expansions are neither filtered nor re-truncated.
func expandRelated(ix *index.Store, results []hit, decay float64) []hit {
	present := make(map[string]bool, len(results))
	for _, h := range results {
		present[h.id] = true
	}
	n := len(results)
	for i := 0; i < n; i++ {
		parent := results[i]
		e, _ := ix.Get(parent.id)
		for _, rid := range e.RelatedEntries {
			if present[rid] {
				continue
			}
			related, ok := ix.Get(rid)
			if !ok {
				continue
			}
			present[rid] = true
			score := parent.score * decay
			results = append(results, hit{
				id:         rid,
				score:      score,
				relevance:  score * related.Importance,
				match:      model.MatchRelated,
				highlights: []string{},
			})
		}
	}
	return results
}
