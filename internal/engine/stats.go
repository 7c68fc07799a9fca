package engine

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/rcliao/memory-engine/internal/model"
)

const mostAccessedLimit = 10

// Stats computes a fresh summary from the current table.
func (m *Manager) Stats(ctx context.Context) model.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.opts.Now()
	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	entries := m.idx.All()
	st := model.Stats{
		TotalEntries:        len(entries),
		EntriesByType:       make(map[model.Kind]int),
		MostAccessedEntries: []model.AccessRecord{},
		Embedded:            m.idx.Embedded(),
	}

	var importance float64
	for _, e := range entries {
		st.EntriesByType[e.Kind]++
		importance += e.Importance
		if e.CreatedAt.After(dayAgo) {
			st.RecentActivity.CreatedLastDay++
		}
		if e.CreatedAt.After(weekAgo) {
			st.RecentActivity.CreatedLastWeek++
		}
		if e.AccessCount > 0 && e.LastAccessed.After(dayAgo) {
			st.RecentActivity.AccessedLastDay++
		}
		if e.AccessCount > 0 && e.LastAccessed.After(weekAgo) {
			st.RecentActivity.AccessedLastWeek++
		}
	}
	if len(entries) > 0 {
		st.AverageImportance = importance / float64(len(entries))
	}

	// never-read entries rank last but still fill the list
	ranked := slices.Clone(entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].AccessCount != ranked[j].AccessCount {
			return ranked[i].AccessCount > ranked[j].AccessCount
		}
		return ranked[i].LastAccessed.After(ranked[j].LastAccessed)
	})
	if len(ranked) > mostAccessedLimit {
		ranked = ranked[:mostAccessedLimit]
	}
	for _, e := range ranked {
		st.MostAccessedEntries = append(st.MostAccessedEntries, model.AccessRecord{
			ID:           e.ID,
			Kind:         e.Kind,
			Summary:      e.Metadata.Summary,
			AccessCount:  e.AccessCount,
			LastAccessed: e.LastAccessed,
		})
	}

	for _, c := range m.idx.Clusters() {
		st.ClusterSizes = append(st.ClusterSizes, len(c.Members))
	}
	if m.lastOptimized != nil {
		t := *m.lastOptimized
		st.LastOptimized = &t
	}
	return st
}
