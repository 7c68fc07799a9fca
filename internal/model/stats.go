package model

import "time"

// Stats is a point-in-time summary of the engine.
type Stats struct {
	TotalEntries        int            `json:"total_entries"`
	EntriesByType       map[Kind]int   `json:"entries_by_type"`
	AverageImportance   float64        `json:"average_importance"`
	MostAccessedEntries []AccessRecord `json:"most_accessed_entries"`
	RecentActivity      Activity       `json:"recent_activity"`
	LastOptimized       *time.Time     `json:"last_optimized,omitempty"`
	Embedded            int            `json:"embedded"`
	ClusterSizes        []int          `json:"cluster_sizes,omitempty"`
}

// AccessRecord summarises one frequently read entry.
type AccessRecord struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Summary      string    `json:"summary,omitempty"`
	AccessCount  int       `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Activity counts stores and reads over recent windows.
type Activity struct {
	CreatedLastDay   int `json:"created_last_day"`
	CreatedLastWeek  int `json:"created_last_week"`
	AccessedLastDay  int `json:"accessed_last_day"`
	AccessedLastWeek int `json:"accessed_last_week"`
}
