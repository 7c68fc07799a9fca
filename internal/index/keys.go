package index

import (
	"fmt"
	"time"
)

// DayKey is the day bucket for t, e.g. "2024-03-09".
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WeekKey is the week bucket for t: "{year}-W{ceil(day/7)}".
//
// The week number restarts every month (days 1-7 are W1, 29-31 are W5), so
// it is not an ISO week. Existing buckets depend on this exact shape.
func WeekKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d-W%d", t.Year(), (t.Day()+6)/7)
}

// MonthKey is the month bucket for t, e.g. "2024-03".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
