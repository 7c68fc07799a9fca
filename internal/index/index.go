// Package index holds the authoritative entry table together with the
// secondary indexes derived from it.
//
// A Store is not safe for concurrent use. The engine owns one and guards it
// with its own lock.
package index

import (
	"fmt"
	"math/rand"
	"slices"
	"sort"

	"github.com/rcliao/memory-engine/internal/embedding"
	"github.com/rcliao/memory-engine/internal/model"
)

const (
	// DefaultRecentLimit is how many ids the recent list keeps.
	DefaultRecentLimit = 100

	// DefaultSimilarityThreshold is the minimum cosine similarity for a
	// semantic match.
	DefaultSimilarityThreshold = 0.7
)

// Dimension names one family of buckets.
type Dimension string

const (
	ByType    Dimension = "type"
	ByTag     Dimension = "tag"
	ByProject Dimension = "project"
	ByEntity  Dimension = "entity"
	ByKeyword Dimension = "keyword"
	ByDay     Dimension = "day"
	ByWeek    Dimension = "week"
	ByMonth   Dimension = "month"
	Recent    Dimension = "recent"
)

// Dimensions lists every keyed dimension in a stable order.
var Dimensions = []Dimension{ByType, ByTag, ByProject, ByEntity, ByKeyword, ByDay, ByWeek, ByMonth}

// Options configures a Store.
type Options struct {
	RecentLimit int

	// SimilarityThreshold is the minimum cosine similarity for a semantic
	// match. nil means DefaultSimilarityThreshold; 0 is a real threshold.
	SimilarityThreshold *float64
}

func (o Options) withDefaults() Options {
	if o.RecentLimit <= 0 {
		o.RecentLimit = DefaultRecentLimit
	}
	if o.SimilarityThreshold == nil {
		t := DefaultSimilarityThreshold
		o.SimilarityThreshold = &t
	}
	return o
}

// Cluster is a k-means group over the semantic index.
type Cluster struct {
	Centroid embedding.Vector `json:"centroid,omitempty"`
	Members  []string         `json:"members"`
}

// bucket is an insertion-ordered id set. Upsert never files an id twice.
type bucket struct {
	ids []string
	set map[string]struct{}
}

func (b *bucket) add(id string) {
	if _, ok := b.set[id]; ok {
		return
	}
	b.set[id] = struct{}{}
	b.ids = append(b.ids, id)
}

// indexes is one complete generation of secondary indexes. A rebuild
// produces a fresh generation and swaps it in whole.
type indexes struct {
	buckets  map[Dimension]map[string]*bucket
	recent   []string
	vectors  map[string]embedding.Vector
	clusters []Cluster
}

func newIndexes() *indexes {
	ix := &indexes{
		buckets: make(map[Dimension]map[string]*bucket, len(Dimensions)),
		vectors: make(map[string]embedding.Vector),
	}
	for _, d := range Dimensions {
		ix.buckets[d] = make(map[string]*bucket)
	}
	return ix
}

func (ix *indexes) file(d Dimension, key, id string) {
	b, ok := ix.buckets[d][key]
	if !ok {
		b = &bucket{set: make(map[string]struct{})}
		ix.buckets[d][key] = b
	}
	b.add(id)
}

// Store is the authoritative entry table plus its indexes.
type Store struct {
	opts      Options
	threshold float64
	entries   map[string]*model.Entry
	order     []string
	ix        *indexes
}

// New returns an empty Store.
func New(opts Options) *Store {
	opts = opts.withDefaults()
	return &Store{
		opts:      opts,
		threshold: *opts.SimilarityThreshold,
		entries:   make(map[string]*model.Entry),
		ix:        newIndexes(),
	}
}

// Upsert files e into the table and every bucket its fields imply. Replacing
// an existing id triggers a rebuild so no bucket keeps a stale key.
func (s *Store) Upsert(e *model.Entry) {
	if _, exists := s.entries[e.ID]; exists {
		s.entries[e.ID] = e
		s.Rebuild()
		return
	}
	s.entries[e.ID] = e
	s.order = append(s.order, e.ID)
	s.fileEntry(s.ix, e)
}

func (s *Store) fileEntry(ix *indexes, e *model.Entry) {
	ix.file(ByType, string(e.Kind), e.ID)
	for _, tag := range e.Tags {
		ix.file(ByTag, tag, e.ID)
	}
	if p := e.Metadata.ProjectID; p != "" {
		ix.file(ByProject, p, e.ID)
	}
	for _, ent := range e.Metadata.Entities {
		ix.file(ByEntity, ent.Key(), e.ID)
	}
	for _, kw := range e.Metadata.Keywords {
		ix.file(ByKeyword, kw, e.ID)
	}
	ix.file(ByDay, DayKey(e.CreatedAt), e.ID)
	ix.file(ByWeek, WeekKey(e.CreatedAt), e.ID)
	ix.file(ByMonth, MonthKey(e.CreatedAt), e.ID)

	ix.recent = slices.Insert(ix.recent, 0, e.ID)
	if len(ix.recent) > s.opts.RecentLimit {
		ix.recent = ix.recent[:s.opts.RecentLimit]
	}

	if e.Embedding != nil {
		ix.vectors[e.ID] = e.Embedding
	}
}

// RemoveAndRebuild deletes ids from the table and regenerates every index
// from the survivors. It returns the entries actually removed.
func (s *Store) RemoveAndRebuild(ids ...string) []*model.Entry {
	var removed []*model.Entry
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			removed = append(removed, e)
			delete(s.entries, id)
		}
	}
	if len(removed) > 0 {
		s.order = slices.DeleteFunc(s.order, func(id string) bool {
			_, ok := s.entries[id]
			return !ok
		})
	}
	s.Rebuild()
	return removed
}

// Rebuild discards the indexes and replays Upsert over the table in
// insertion order. The replacement is assembled before it is swapped in.
func (s *Store) Rebuild() {
	next := newIndexes()
	for _, id := range s.order {
		s.fileEntry(next, s.entries[id])
	}
	for _, c := range s.ix.clusters {
		members := slices.DeleteFunc(slices.Clone(c.Members), func(id string) bool {
			_, ok := s.entries[id]
			return !ok
		})
		if len(members) > 0 {
			next.clusters = append(next.clusters, Cluster{Centroid: c.Centroid, Members: members})
		}
	}
	s.ix = next
}

// Recluster runs k-means over the semantic index and stores the result.
func (s *Store) Recluster(k int, rng *rand.Rand) []Cluster {
	var ids []string
	var vectors []embedding.Vector
	for _, id := range s.order {
		if v, ok := s.ix.vectors[id]; ok {
			ids = append(ids, id)
			vectors = append(vectors, v)
		}
	}
	var clusters []Cluster
	for _, c := range embedding.KMeans(vectors, k, rng) {
		members := make([]string, len(c.Members))
		for i, m := range c.Members {
			members[i] = ids[m]
		}
		clusters = append(clusters, Cluster{Centroid: c.Centroid, Members: members})
	}
	s.ix.clusters = clusters
	return s.Clusters()
}

// Get returns the entry with id.
func (s *Store) Get(id string) (*model.Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Len returns the number of entries in the table.
func (s *Store) Len() int { return len(s.entries) }

// All returns every entry in insertion order.
func (s *Store) All() []*model.Entry {
	out := make([]*model.Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id])
	}
	return out
}

// Bucket returns the ids filed under key in dimension d. For Recent the key
// is ignored.
func (s *Store) Bucket(d Dimension, key string) []string {
	if d == Recent {
		return slices.Clone(s.ix.recent)
	}
	b, ok := s.ix.buckets[d][key]
	if !ok {
		return nil
	}
	return slices.Clone(b.ids)
}

// Keys returns the sorted bucket keys for dimension d.
func (s *Store) Keys(d Dimension) []string {
	m := s.ix.buckets[d]
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) ByType(k model.Kind) []string { return s.Bucket(ByType, string(k)) }
func (s *Store) ByTag(tag string) []string    { return s.Bucket(ByTag, tag) }
func (s *Store) ByProject(p string) []string  { return s.Bucket(ByProject, p) }
func (s *Store) ByEntity(key string) []string { return s.Bucket(ByEntity, key) }
func (s *Store) ByKeyword(kw string) []string { return s.Bucket(ByKeyword, kw) }
func (s *Store) ByDay(key string) []string    { return s.Bucket(ByDay, key) }
func (s *Store) ByWeek(key string) []string   { return s.Bucket(ByWeek, key) }
func (s *Store) ByMonth(key string) []string  { return s.Bucket(ByMonth, key) }
func (s *Store) Recent() []string             { return s.Bucket(Recent, "") }

// EmbeddingOf returns the stored vector for id.
func (s *Store) EmbeddingOf(id string) (embedding.Vector, bool) {
	v, ok := s.ix.vectors[id]
	return v, ok
}

// Embedded returns how many vectors the semantic index holds.
func (s *Store) Embedded() int { return len(s.ix.vectors) }

// Threshold is the minimum similarity for semantic matches.
func (s *Store) Threshold() float64 { return s.threshold }

// Clusters returns a copy of the current cluster list.
func (s *Store) Clusters() []Cluster {
	out := make([]Cluster, len(s.ix.clusters))
	for i, c := range s.ix.clusters {
		out[i] = Cluster{Centroid: slices.Clone(c.Centroid), Members: slices.Clone(c.Members)}
	}
	return out
}

// Verify checks that every entry sits in exactly the buckets its fields
// imply and that no bucket or vector refers to a missing entry.
func (s *Store) Verify() error {
	want := newIndexes()
	for _, id := range s.order {
		e, ok := s.entries[id]
		if !ok {
			return fmt.Errorf("order lists missing entry %s", id)
		}
		s.fileEntry(want, e)
	}
	if len(s.order) != len(s.entries) {
		return fmt.Errorf("order has %d ids, table has %d", len(s.order), len(s.entries))
	}
	for _, d := range Dimensions {
		got, exp := s.ix.buckets[d], want.buckets[d]
		if len(got) != len(exp) {
			return fmt.Errorf("%s: %d buckets, want %d", d, len(got), len(exp))
		}
		for key, b := range exp {
			gb, ok := got[key]
			if !ok {
				return fmt.Errorf("%s: missing bucket %q", d, key)
			}
			if !sameMembers(gb.ids, b.ids) {
				return fmt.Errorf("%s/%s: members %v, want %v", d, key, gb.ids, b.ids)
			}
		}
	}
	if !slices.Equal(s.ix.recent, want.recent) {
		return fmt.Errorf("recent: %v, want %v", s.ix.recent, want.recent)
	}
	if len(s.ix.vectors) != len(want.vectors) {
		return fmt.Errorf("semantic index has %d vectors, want %d", len(s.ix.vectors), len(want.vectors))
	}
	for id := range s.ix.vectors {
		if _, ok := s.entries[id]; !ok {
			return fmt.Errorf("orphaned vector %s", id)
		}
	}
	return nil
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
