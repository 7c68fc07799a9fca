package engine

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rcliao/memory-engine/internal/model"
)

// ContextParams holds parameters for context assembly.
type ContextParams struct {
	Query    string
	Kinds    []model.Kind
	Tags     []string
	Project  string
	Semantic bool
	Budget   int // tokens; 1 token ≈ 4 chars
}

// ContextEntry is one packed entry.
type ContextEntry struct {
	ID      string     `json:"id"`
	Kind    model.Kind `json:"kind"`
	Content string     `json:"content"`
	Score   float64    `json:"score"`
	Excerpt bool       `json:"excerpt,omitempty"`
}

// ContextResult is the assembled context response.
type ContextResult struct {
	Budget  int            `json:"budget"`
	Used    int            `json:"used"`
	Entries []ContextEntry `json:"entries"`
}

const (
	defaultContextBudget = 4000
	contextCandidates    = 50
	minExcerpt           = 100
)

// Context searches for relevant entries and packs the best of them into a
// token budget. Candidates are re-scored by search relevance, recency,
// importance and access frequency; the last entry that does not fit whole
// is excerpted if at least 100 chars remain. Only packed entries count as
// accessed.
func (m *Manager) Context(ctx context.Context, p ContextParams) (*ContextResult, error) {
	ctx, span := m.tel.start(ctx, "memory.context")
	defer span.End()

	budget := p.Budget
	if budget <= 0 {
		budget = defaultContextBudget
	}
	charBudget := budget * 4

	q := model.Query{
		Text:     p.Query,
		Kinds:    p.Kinds,
		Tags:     p.Tags,
		Project:  p.Project,
		Semantic: p.Semantic,
		Limit:    contextCandidates,
	}
	qvec := m.queryVector(ctx, q)

	type scored struct {
		entry *model.Entry
		score float64
	}
	m.mu.RLock()
	hits := m.execute(m.idx, q, qvec)
	now := m.opts.Now()
	candidates := make([]scored, 0, len(hits))
	for _, h := range hits {
		e, ok := m.idx.Get(h.id)
		if !ok {
			continue
		}
		relevance := math.Min(h.score, 1)

		// half-life of about a week
		age := now.Sub(e.CreatedAt).Hours() / 24.0
		recency := math.Exp(-0.1 * age)

		accessFreq := 0.0
		if e.AccessCount > 0 {
			accessFreq = math.Min(math.Log(float64(e.AccessCount)+1)/math.Log(100), 1)
		}

		score := relevance*0.4 + recency*0.2 + e.Importance*0.2 + accessFreq*0.2
		candidates = append(candidates, scored{entry: e.Clone(), score: score})
	}
	m.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	result := &ContextResult{Budget: budget, Entries: []ContextEntry{}}
	used := 0
	for _, c := range candidates {
		entry := ContextEntry{
			ID:      c.entry.ID,
			Kind:    c.entry.Kind,
			Content: c.entry.Content,
			Score:   math.Round(c.score*100) / 100,
		}
		if used+len(entry.Content) <= charBudget {
			result.Entries = append(result.Entries, entry)
			used += len(entry.Content)
			continue
		}
		if remaining := charBudget - used; remaining >= minExcerpt {
			entry.Content = strings.ToValidUTF8(entry.Content[:remaining], "") + "..."
			entry.Excerpt = true
			result.Entries = append(result.Entries, entry)
			used += remaining
		}
		break
	}
	result.Used = used / 4

	m.mu.Lock()
	for _, ce := range result.Entries {
		if e, ok := m.idx.Get(ce.ID); ok {
			m.touch(e, now)
		}
	}
	m.mu.Unlock()

	span.SetAttributes(attribute.Int("memory.context.entries", len(result.Entries)))
	return result, nil
}
