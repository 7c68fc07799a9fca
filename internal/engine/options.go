package engine

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rcliao/memory-engine/internal/embedding"
	"github.com/rcliao/memory-engine/internal/enrich"
	"github.com/rcliao/memory-engine/internal/index"
	"github.com/rcliao/memory-engine/internal/store"
)

// Defaults for Options.
const (
	DefaultMaxRelations      = 10
	DefaultMinSharedKeywords = 2
	DefaultLimit             = 20
	DefaultRelatedDecay      = 0.7
	DefaultClusters          = 8
)

// EvictionPolicy is the conjunctive rule Optimize applies: an entry goes only
// if its importance, its last access and its access count are all below the
// limits.
type EvictionPolicy struct {
	MaxImportance  float64
	MaxAge         time.Duration
	MaxAccessCount int
}

// DefaultEvictionPolicy evicts entries with importance < 0.3, not read for
// 30 days and read fewer than 3 times.
func DefaultEvictionPolicy() EvictionPolicy {
	return EvictionPolicy{
		MaxImportance:  0.3,
		MaxAge:         30 * 24 * time.Hour,
		MaxAccessCount: 3,
	}
}

// Options configures a Manager. Zero values take defaults, except for the
// pointer fields, where only nil does: a configured 0 is kept.
type Options struct {
	Logger   *slog.Logger
	Now      func() time.Time
	Embedder embedding.Embedder
	Analyzer enrich.Analyzer

	// Store is the persistence backend. Defaults to an in-memory store.
	Store store.Store

	Index index.Options

	// MaxRelations caps relatedEntries per entry; 0 disables discovery.
	MaxRelations *int

	// RelatedDecay scales a parent's score onto its related expansions.
	RelatedDecay *float64

	MinSharedKeywords int
	DefaultLimit      int
	Eviction          EvictionPolicy

	// Clusters is the k used when reclustering after Load and Optimize.
	// Negative disables automatic clustering.
	Clusters int

	// Seed drives k-means initialization.
	Seed int64

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Embedder == nil {
		o.Embedder = embedding.NewHashEmbedder(embedding.DefaultDims)
	}
	if o.Analyzer == nil {
		o.Analyzer = enrich.NewKeywordAnalyzer()
	}
	if o.Store == nil {
		o.Store = store.NewMemoryStore()
	}
	if o.MaxRelations == nil {
		n := DefaultMaxRelations
		o.MaxRelations = &n
	}
	if o.MinSharedKeywords == 0 {
		o.MinSharedKeywords = DefaultMinSharedKeywords
	}
	if o.DefaultLimit == 0 {
		o.DefaultLimit = DefaultLimit
	}
	if o.RelatedDecay == nil {
		d := DefaultRelatedDecay
		o.RelatedDecay = &d
	}
	if o.Eviction == (EvictionPolicy{}) {
		o.Eviction = DefaultEvictionPolicy()
	}
	if o.Clusters == 0 {
		o.Clusters = DefaultClusters
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
	return o
}

func (o Options) validate() error {
	if *o.MaxRelations < 0 {
		return fmt.Errorf("max relations must be >= 0, got %d", *o.MaxRelations)
	}
	if o.MinSharedKeywords < 1 {
		return fmt.Errorf("min shared keywords must be >= 1, got %d", o.MinSharedKeywords)
	}
	if o.DefaultLimit < 1 {
		return fmt.Errorf("default limit must be >= 1, got %d", o.DefaultLimit)
	}
	if *o.RelatedDecay < 0 || *o.RelatedDecay > 1 {
		return fmt.Errorf("related decay must be in [0,1], got %v", *o.RelatedDecay)
	}
	if t := o.Index.SimilarityThreshold; t != nil && (*t < -1 || *t > 1) {
		return fmt.Errorf("similarity threshold must be in [-1,1], got %v", *t)
	}
	if o.Embedder.Dims() <= 0 {
		return fmt.Errorf("embedder dimensions must be positive, got %d", o.Embedder.Dims())
	}
	return nil
}
