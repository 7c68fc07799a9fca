package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/memory-engine/internal/model"
)

// ExportData is the serialized form of every entry.
type ExportData struct {
	Version    string         `json:"version"`
	ExportedAt string         `json:"exported_at"`
	Entries    []*model.Entry `json:"entries"`
}

// exportFormatVersion is bumped when ExportData changes incompatibly.
const exportFormatVersion = "1"

// Export returns copies of all entries in insertion order. It does not count
// as an access.
func (m *Manager) Export(ctx context.Context) *ExportData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.idx.All()
	out := make([]*model.Entry, len(all))
	for i, e := range all {
		out[i] = e.Clone()
	}
	return &ExportData{
		Version:    exportFormatVersion,
		ExportedAt: m.opts.Now().UTC().Format("2006-01-02T15:04:05Z07:00"),
		Entries:    out,
	}
}

// Import restores entries verbatim, ids and timestamps included, replacing
// any entry with the same id. Every entry is validated before any is
// committed. Persistence failures are joined into the returned error after
// the in-memory commit.
func (m *Manager) Import(ctx context.Context, data *ExportData) (int, error) {
	if data == nil || len(data.Entries) == 0 {
		return 0, nil
	}
	if data.Version != "" && data.Version != exportFormatVersion {
		return 0, fmt.Errorf("unsupported export version %q", data.Version)
	}
	for i, e := range data.Entries {
		if err := validateImported(e); err != nil {
			return 0, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	snapshots := make([]*model.Entry, 0, len(data.Entries))
	m.mu.Lock()
	for _, e := range data.Entries {
		c := e.Clone()
		if c.Version == 0 {
			c.Version = 1
		}
		m.idx.Upsert(c)
		delete(m.dirty, c.ID)
		snapshots = append(snapshots, c.Clone())
	}
	m.mu.Unlock()

	var errs []error
	for _, e := range snapshots {
		if err := m.persist.Put(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("persist %s: %w", e.ID, err))
		}
	}
	return len(snapshots), errors.Join(errs...)
}

func validateImported(e *model.Entry) error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: null entry", ErrInvalidEntry)
	case e.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidEntry)
	case !model.ValidKinds[e.Kind]:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, e.Kind)
	case e.Importance < 0 || e.Importance > 1:
		return fmt.Errorf("%w: importance %v outside [0,1]", ErrInvalidEntry, e.Importance)
	case e.CreatedAt.IsZero():
		return fmt.Errorf("%w: missing created_at", ErrInvalidEntry)
	}
	return nil
}
