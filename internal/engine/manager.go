// Package engine is the memory manager: it ingests content, keeps the entry
// table and its indexes, and answers queries over them.
//
// A Manager is safe for concurrent use. Mutations (Store, Update, Delete,
// Optimize, Import) serialize on a single write lock; index rebuilds happen
// inside that lock so readers never see a half-built index. Persistence calls
// run after the lock is released.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/memory-engine/internal/embedding"
	"github.com/rcliao/memory-engine/internal/enrich"
	"github.com/rcliao/memory-engine/internal/index"
	"github.com/rcliao/memory-engine/internal/model"
	"github.com/rcliao/memory-engine/internal/store"
)

// DefaultImportance is used when callers have no better estimate.
const DefaultImportance = 0.5

var (
	// ErrNotFound is returned when no entry has the requested id.
	ErrNotFound = errors.New("entry not found")

	// ErrInvalidEntry is returned for a store request that cannot be accepted.
	ErrInvalidEntry = errors.New("invalid entry")
)

// Manager owns the authoritative entry table and orchestrates ingestion,
// queries and eviction.
type Manager struct {
	opts    Options
	log     *slog.Logger
	persist store.Store
	tel     *telemetry

	mu            sync.RWMutex
	idx           *index.Store
	dirty         map[string]struct{}
	lastOptimized *time.Time
	entropy       *rand.Rand
	rng           *rand.Rand
}

// New builds a Manager. It does not read persisted entries; call Load.
func New(opts Options) (*Manager, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	tel, err := newTelemetry(opts.TracerProvider, opts.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return &Manager{
		opts:    opts,
		log:     opts.Logger,
		persist: opts.Store,
		tel:     tel,
		idx:     index.New(opts.Index),
		dirty:   make(map[string]struct{}),
		entropy: rand.New(rand.NewSource(opts.Now().UnixNano())),
		rng:     rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// Load reads every persisted entry into memory and rebuilds the indexes.
// Entries already in memory with the same id are replaced.
func (m *Manager) Load(ctx context.Context) error {
	entries, err := m.persist.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.idx.Upsert(e)
	}
	if m.opts.Clusters > 0 && m.idx.Embedded() > 0 {
		m.idx.Recluster(m.opts.Clusters, m.rng)
	}
	m.log.Info("memory loaded", "entries", m.idx.Len(), "embedded", m.idx.Embedded())
	return nil
}

// Store enriches, embeds and relates content, commits the new entry to the
// indexes and persists it. If persistence fails the entry stays visible in
// memory and is returned together with the error.
func (m *Manager) Store(ctx context.Context, kind model.Kind, content string, overrides model.Metadata, importance float64) (*model.Entry, error) {
	return m.store(ctx, storeRequest{
		kind:       kind,
		content:    content,
		overrides:  overrides,
		importance: importance,
		version:    1,
	})
}

type storeRequest struct {
	kind       model.Kind
	content    string
	overrides  model.Metadata
	importance float64
	version    int
	supersedes string
}

func (m *Manager) store(ctx context.Context, req storeRequest) (*model.Entry, error) {
	ctx, span := m.tel.start(ctx, "memory.store")
	defer span.End()

	if !model.ValidKinds[req.kind] {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, req.kind)
	}
	if strings.TrimSpace(req.content) == "" {
		return nil, fmt.Errorf("%w: content is empty", ErrInvalidEntry)
	}
	if req.importance < 0 || req.importance > 1 {
		return nil, fmt.Errorf("%w: importance %v outside [0,1]", ErrInvalidEntry, req.importance)
	}
	if req.overrides.Source != "" && !model.ValidSources[req.overrides.Source] {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidEntry, req.overrides.Source)
	}

	meta := m.enrich(ctx, req.content, req.overrides)
	vec := m.embed(ctx, req.content)

	m.mu.Lock()
	now := m.opts.Now()
	e := &model.Entry{
		ID:           m.newID(now),
		Kind:         req.kind,
		Content:      req.content,
		Metadata:     meta,
		Embedding:    vec,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastAccessed: now,
		Importance:   req.importance,
		Tags:         append([]string(nil), meta.Keywords...),
		Version:      req.version,
		Supersedes:   req.supersedes,
	}
	e.RelatedEntries = relate(e, m.idx.All(), *m.opts.MaxRelations, m.opts.MinSharedKeywords)
	backlinked := m.backlink(e)
	m.idx.Upsert(e)
	snapshot := e.Clone()
	m.mu.Unlock()

	m.tel.stored.Add(ctx, 1)

	var errs []error
	if err := m.persist.Put(ctx, snapshot); err != nil {
		errs = append(errs, fmt.Errorf("persist %s: %w", snapshot.ID, err))
	}
	for _, b := range backlinked {
		if err := m.persist.Put(ctx, b); err != nil {
			m.markDirty(b.ID)
			errs = append(errs, fmt.Errorf("persist %s: %w", b.ID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.log.Warn("store: persistence failed, entry kept in memory", "id", snapshot.ID, "error", err)
		span.RecordError(err)
		return snapshot, err
	}
	return snapshot, nil
}

// backlink adds e to the relation lists of the entries it relates to, as
// long as they have room. It returns snapshots of the entries it changed.
// Caller holds the write lock.
func (m *Manager) backlink(e *model.Entry) []*model.Entry {
	var changed []*model.Entry
	for _, id := range e.RelatedEntries {
		other, ok := m.idx.Get(id)
		if !ok || len(other.RelatedEntries) >= *m.opts.MaxRelations || other.RelatedTo(e.ID) {
			continue
		}
		other.RelatedEntries = append(other.RelatedEntries, e.ID)
		changed = append(changed, other.Clone())
	}
	return changed
}

func (m *Manager) enrich(ctx context.Context, content string, overrides model.Metadata) model.Metadata {
	analyzed, err := m.opts.Analyzer.Analyze(ctx, content, overrides)
	if err != nil {
		m.log.Warn("enrichment failed, using defaults", "error", err)
		analyzed = model.Metadata{}
	}
	return enrich.Merge(analyzed, overrides)
}

func (m *Manager) embed(ctx context.Context, text string) embedding.Vector {
	v, err := m.opts.Embedder.Embed(ctx, text)
	if err != nil || len(v) != m.opts.Embedder.Dims() {
		m.log.Warn("embedding failed, using zero vector", "error", err, "dims", len(v))
		return make(embedding.Vector, m.opts.Embedder.Dims())
	}
	return v
}

// newID must be called with the write lock held; the entropy source is not
// safe for concurrent use.
func (m *Manager) newID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), m.entropy).String()
}

// Get returns the entry with id and records the access.
func (m *Manager) Get(ctx context.Context, id string) (*model.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.idx.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.touch(e, m.opts.Now())
	return e.Clone(), nil
}

// Related returns the entries id links to. Links to entries that no longer
// exist are skipped.
func (m *Manager) Related(ctx context.Context, id string) ([]*model.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.idx.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := m.opts.Now()
	var out []*model.Entry
	for _, rid := range e.RelatedEntries {
		other, ok := m.idx.Get(rid)
		if !ok {
			continue
		}
		m.touch(other, now)
		out = append(out, other.Clone())
	}
	return out, nil
}

// touch records one access. Caller holds the write lock.
func (m *Manager) touch(e *model.Entry, now time.Time) {
	e.AccessCount++
	e.LastAccessed = now
	m.dirty[e.ID] = struct{}{}
}

func (m *Manager) markDirty(id string) {
	m.mu.Lock()
	if _, ok := m.idx.Get(id); ok {
		m.dirty[id] = struct{}{}
	}
	m.mu.Unlock()
}

// Update stores a revised version of an entry. The original is kept; the
// revision gets a new id, Version+1 and Supersedes pointing at the original.
// Empty content keeps the original text. Kind and importance carry over, and
// so do the source and project/session/user ids unless overridden.
func (m *Manager) Update(ctx context.Context, id, content string, overrides model.Metadata) (*model.Entry, error) {
	m.mu.RLock()
	old, ok := m.idx.Get(id)
	if ok {
		old = old.Clone()
	}
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if strings.TrimSpace(content) == "" {
		content = old.Content
	}
	if overrides.Source == "" {
		overrides.Source = old.Metadata.Source
	}
	if overrides.ProjectID == "" {
		overrides.ProjectID = old.Metadata.ProjectID
	}
	if overrides.SessionID == "" {
		overrides.SessionID = old.Metadata.SessionID
	}
	if overrides.UserID == "" {
		overrides.UserID = old.Metadata.UserID
	}
	return m.store(ctx, storeRequest{
		kind:       old.Kind,
		content:    content,
		overrides:  overrides,
		importance: old.Importance,
		version:    old.Version + 1,
		supersedes: old.ID,
	})
}

// Delete removes entries from memory and persistence with a single index
// rebuild. It returns the ids that existed. Persistence failures are joined
// into the returned error; the entries are gone from memory regardless.
func (m *Manager) Delete(ctx context.Context, ids ...string) ([]string, error) {
	m.mu.Lock()
	removed := m.idx.RemoveAndRebuild(ids...)
	for _, e := range removed {
		delete(m.dirty, e.ID)
	}
	m.mu.Unlock()

	if len(removed) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.Join(ids, ", "))
	}
	return m.unpersist(ctx, removed)
}

func (m *Manager) unpersist(ctx context.Context, removed []*model.Entry) ([]string, error) {
	ids := make([]string, 0, len(removed))
	var errs []error
	for _, e := range removed {
		ids = append(ids, e.ID)
		if err := m.persist.Delete(ctx, e.ID); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", e.ID, err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		m.log.Warn("persistence delete failed", "error", err)
	}
	return ids, err
}

// Flush persists entries whose access statistics changed since the last
// flush. Entries that fail to persist stay marked.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	pending := make([]*model.Entry, 0, len(m.dirty))
	for id := range m.dirty {
		if e, ok := m.idx.Get(id); ok {
			pending = append(pending, e.Clone())
		}
	}
	clear(m.dirty)
	m.mu.Unlock()

	var errs []error
	for _, e := range pending {
		if err := m.persist.Put(ctx, e); err != nil {
			m.markDirty(e.ID)
			errs = append(errs, fmt.Errorf("flush %s: %w", e.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Recluster recomputes the k-means clusters over the semantic index. A
// non-positive k uses the configured cluster count.
func (m *Manager) Recluster(k int) []index.Cluster {
	if k <= 0 {
		k = m.opts.Clusters
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idx.Recluster(k, m.rng)
}

// Clusters returns the current clusters.
func (m *Manager) Clusters() []index.Cluster {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx.Clusters()
}

// Bucket lists the ids filed under key in dimension d.
func (m *Manager) Bucket(d index.Dimension, key string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx.Bucket(d, key)
}

// BucketKeys lists the keys of dimension d.
func (m *Manager) BucketKeys(d index.Dimension) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx.Keys(d)
}

// Lookup returns copies of the entries with the given ids, in order,
// without counting an access. Unknown ids are skipped.
func (m *Manager) Lookup(ids ...string) []*model.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.idx.Get(id); ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Len returns the number of entries held in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx.Len()
}

// Close flushes pending access statistics and closes the persistence store.
func (m *Manager) Close(ctx context.Context) error {
	return errors.Join(m.Flush(ctx), m.persist.Close())
}
