package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rcliao/memory-engine/internal/model"
)

// OptimizeReport summarises one Optimize run.
type OptimizeReport struct {
	Removed  []string `json:"removed"`
	Clusters int      `json:"clusters"`
}

// Optimize evicts every entry that is unimportant, stale and rarely read,
// all three at once, then reclusters. The removal and the index rebuild
// happen under one write lock, so no query observes a partial eviction.
// Persistence deletes follow; their failures are returned joined.
func (m *Manager) Optimize(ctx context.Context) (OptimizeReport, error) {
	ctx, span := m.tel.start(ctx, "memory.optimize")
	defer span.End()

	m.mu.Lock()
	now := m.opts.Now()
	cutoff := now.Add(-m.opts.Eviction.MaxAge)
	var doomed []string
	for _, e := range m.idx.All() {
		if m.evictable(e, cutoff) {
			doomed = append(doomed, e.ID)
		}
	}
	removed := m.idx.RemoveAndRebuild(doomed...)
	for _, e := range removed {
		delete(m.dirty, e.ID)
	}
	report := OptimizeReport{}
	if m.opts.Clusters > 0 && m.idx.Embedded() > 0 {
		report.Clusters = len(m.idx.Recluster(m.opts.Clusters, m.rng))
	}
	m.lastOptimized = &now
	m.mu.Unlock()

	m.tel.evicted.Add(ctx, int64(len(removed)))
	span.SetAttributes(attribute.Int("memory.optimize.removed", len(removed)))

	ids, err := m.unpersist(ctx, removed)
	report.Removed = ids
	m.log.Info("optimize complete", "removed", len(ids), "clusters", report.Clusters)
	return report, err
}

func (m *Manager) evictable(e *model.Entry, cutoff time.Time) bool {
	p := m.opts.Eviction
	return e.Importance < p.MaxImportance &&
		e.LastAccessed.Before(cutoff) &&
		e.AccessCount < p.MaxAccessCount
}
