package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memory-engine/internal/embedding"
	"github.com/rcliao/memory-engine/internal/enrich"
	"github.com/rcliao/memory-engine/internal/index"
	"github.com/rcliao/memory-engine/internal/model"
	"github.com/rcliao/memory-engine/internal/store"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *clock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

// noAnalysis leaves all metadata to the caller's overrides.
var noAnalysis = enrich.AnalyzerFunc(func(ctx context.Context, content string, _ model.Metadata) (model.Metadata, error) {
	return model.Metadata{}, nil
})

func newTestManager(t *testing.T, opts Options) (*Manager, *clock) {
	t.Helper()
	c := &clock{now: t0}
	if opts.Now == nil {
		opts.Now = c.Now
	}
	if opts.Analyzer == nil {
		opts.Analyzer = noAnalysis
	}
	m, err := New(opts)
	require.NoError(t, err)
	return m, c
}

func mustStore(t *testing.T, m *Manager, kind model.Kind, content string, md model.Metadata, importance float64) *model.Entry {
	t.Helper()
	e, err := m.Store(context.Background(), kind, content, md, importance)
	require.NoError(t, err)
	return e
}

type failingStore struct {
	store.Store
	putErr error
}

func (f *failingStore) Put(ctx context.Context, e *model.Entry) error { return f.putErr }

type brokenEmbedder struct{}

func (brokenEmbedder) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	return nil, errors.New("model unavailable")
}

func (brokenEmbedder) Dims() int { return embedding.DefaultDims }

func TestStoreAssignsFields(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	m, _ := newTestManager(t, Options{Store: ms})

	e := mustStore(t, m, model.KindDecision, "Adopt hashed embeddings", model.Metadata{
		ProjectID: "engine",
		Keywords:  []string{"hashed", "embeddings", "hashed"},
	}, 0.6)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, model.KindDecision, e.Kind)
	assert.Equal(t, 1, e.Version)
	assert.Equal(t, 0.6, e.Importance)
	assert.True(t, t0.Equal(e.CreatedAt))
	assert.True(t, t0.Equal(e.UpdatedAt))
	assert.True(t, t0.Equal(e.LastAccessed))
	assert.Equal(t, 0, e.AccessCount)
	assert.Equal(t, model.SourceUserInput, e.Metadata.Source)
	assert.Equal(t, []string{"hashed", "embeddings"}, e.Metadata.Keywords)
	assert.Equal(t, []string{"hashed", "embeddings"}, e.Tags)
	assert.Len(t, e.Embedding, embedding.DefaultDims)
	assert.InDelta(t, 1.0, embedding.Norm(e.Embedding), 1e-5)

	persisted, err := ms.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, e.ID, persisted[0].ID)

	assert.Equal(t, []string{e.ID}, m.Bucket(index.ByProject, "engine"))
	assert.Equal(t, []string{e.ID}, m.Bucket(index.Recent, ""))
	assert.NoError(t, m.idx.Verify())
}

func TestStoreReturnsCopies(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	e := mustStore(t, m, model.KindContext, "original content", model.Metadata{}, 0.5)
	e.Content = "mutated"
	e.AccessCount = 99

	got, err := m.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "original content", got.Content)
	assert.Equal(t, 1, got.AccessCount)
}

func TestStoreValidation(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	tests := []struct {
		name       string
		kind       model.Kind
		content    string
		md         model.Metadata
		importance float64
	}{
		{"unknown kind", "gossip", "x", model.Metadata{}, 0.5},
		{"empty content", model.KindContext, "  \n", model.Metadata{}, 0.5},
		{"importance above one", model.KindContext, "x", model.Metadata{}, 1.5},
		{"negative importance", model.KindContext, "x", model.Metadata{}, -0.1},
		{"unknown source", model.KindContext, "x", model.Metadata{Source: "telepathy"}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := m.Store(context.Background(), tt.kind, tt.content, tt.md, tt.importance)
			assert.ErrorIs(t, err, ErrInvalidEntry)
			assert.Nil(t, e)
		})
	}
	assert.Equal(t, 0, m.Len())
}

func TestStoreEnrichmentFailureFallsBack(t *testing.T) {
	failing := enrich.AnalyzerFunc(func(ctx context.Context, content string, _ model.Metadata) (model.Metadata, error) {
		return model.Metadata{Summary: "ignored"}, errors.New("analyzer crashed")
	})
	m, _ := newTestManager(t, Options{Analyzer: failing})

	e := mustStore(t, m, model.KindContext, "some content", model.Metadata{ProjectID: "p"}, 0.5)
	assert.Equal(t, model.SourceUserInput, e.Metadata.Source)
	assert.Equal(t, "p", e.Metadata.ProjectID)
	assert.Empty(t, e.Metadata.Summary)
	assert.NotNil(t, e.Metadata.Keywords)
	assert.NotNil(t, e.Metadata.Entities)
}

func TestStoreEmbeddingFailureUsesZeroVector(t *testing.T) {
	m, _ := newTestManager(t, Options{Embedder: brokenEmbedder{}})

	e := mustStore(t, m, model.KindContext, "react hooks state", model.Metadata{}, 0.5)
	require.Len(t, e.Embedding, embedding.DefaultDims)
	assert.Zero(t, embedding.Norm(e.Embedding))
	assert.Equal(t, 1, m.idx.Embedded(), "zero vectors still count in the semantic index")

	results, err := m.Search(context.Background(), model.Query{Text: "react's", Semantic: true})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStorePersistenceFailureKeepsEntry(t *testing.T) {
	errDisk := errors.New("disk full")
	m, _ := newTestManager(t, Options{Store: &failingStore{Store: store.NewMemoryStore(), putErr: errDisk}})

	e, err := m.Store(context.Background(), model.KindDecision, "keep me", model.Metadata{}, 0.5)
	require.ErrorIs(t, err, errDisk)
	require.NotNil(t, e)

	got, err := m.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep me", got.Content)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	m, c := newTestManager(t, Options{})
	e := mustStore(t, m, model.KindPattern, "retry with backoff", model.Metadata{}, 0.5)

	c.Advance(time.Hour)
	got, err := m.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)
	assert.True(t, t0.Add(time.Hour).Equal(got.LastAccessed))

	got, err = m.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupDoesNotCountAccess(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	a := mustStore(t, m, model.KindPattern, "first", model.Metadata{}, 0.5)
	b := mustStore(t, m, model.KindPattern, "second", model.Metadata{}, 0.5)

	got := m.Lookup(b.ID, "missing", a.ID)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
	assert.Zero(t, got[0].AccessCount)

	got[0].Content = "changed"
	again := m.Lookup(b.ID)
	assert.Equal(t, "second", again[0].Content)
	assert.Zero(t, again[0].AccessCount)
}

func TestUpdateCreatesRevision(t *testing.T) {
	ctx := context.Background()
	m, c := newTestManager(t, Options{})
	old := mustStore(t, m, model.KindDecision, "first draft of the cache design", model.Metadata{
		ProjectID: "p1",
		SessionID: "s1",
	}, 0.8)

	c.Advance(time.Minute)
	rev, err := m.Update(ctx, old.ID, "second draft of the cache design", model.Metadata{})
	require.NoError(t, err)

	assert.NotEqual(t, old.ID, rev.ID)
	assert.Equal(t, 2, rev.Version)
	assert.Equal(t, old.ID, rev.Supersedes)
	assert.Equal(t, model.KindDecision, rev.Kind)
	assert.Equal(t, 0.8, rev.Importance)
	assert.Equal(t, "p1", rev.Metadata.ProjectID)
	assert.Equal(t, "s1", rev.Metadata.SessionID)
	assert.True(t, t0.Add(time.Minute).Equal(rev.UpdatedAt))
	assert.Equal(t, 2, m.Len(), "the original is kept")

	same, err := m.Update(ctx, rev.ID, "", model.Metadata{ProjectID: "p2"})
	require.NoError(t, err)
	assert.Equal(t, rev.Content, same.Content)
	assert.Equal(t, 3, same.Version)
	assert.Equal(t, "p2", same.Metadata.ProjectID)

	_, err = m.Update(ctx, "missing", "x", model.Metadata{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	m, _ := newTestManager(t, Options{Store: ms})
	a := mustStore(t, m, model.KindContext, "alpha", model.Metadata{Keywords: []string{"shared", "words"}}, 0.5)
	b := mustStore(t, m, model.KindContext, "beta", model.Metadata{Keywords: []string{"shared", "words"}}, 0.5)
	mustStore(t, m, model.KindContext, "gamma", model.Metadata{}, 0.5)

	ids, err := m.Delete(ctx, a.ID, "missing")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids)
	assert.Equal(t, 2, m.Len())
	assert.NoError(t, m.idx.Verify())
	assert.NotContains(t, m.Bucket(index.ByKeyword, "shared"), a.ID)

	persisted, err := ms.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted, 2)

	// b still links to the deleted a; lookups skip it
	related, err := m.Related(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, related)

	_, err = m.Delete(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFlushPersistsAccessStats(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	m, _ := newTestManager(t, Options{Store: ms})
	e := mustStore(t, m, model.KindContext, "read me twice", model.Metadata{}, 0.5)

	_, err := m.Get(ctx, e.ID)
	require.NoError(t, err)
	_, err = m.Get(ctx, e.ID)
	require.NoError(t, err)

	persisted, err := ms.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, persisted[0].AccessCount, "access stats are not written through")

	require.NoError(t, m.Flush(ctx))
	persisted, err = ms.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, persisted[0].AccessCount)
	assert.Empty(t, m.dirty)
}

func TestLoadRestoresIndexes(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	m1, _ := newTestManager(t, Options{Store: ms})
	a := mustStore(t, m1, model.KindResearch, "vector search notes", model.Metadata{ProjectID: "p", Keywords: []string{"vector", "search"}}, 0.7)
	mustStore(t, m1, model.KindResearch, "vector search benchmarks", model.Metadata{ProjectID: "p", Keywords: []string{"vector", "search"}}, 0.7)

	m2, _ := newTestManager(t, Options{Store: ms})
	require.NoError(t, m2.Load(ctx))
	assert.Equal(t, 2, m2.Len())
	assert.NoError(t, m2.idx.Verify())
	assert.Len(t, m2.Bucket(index.ByProject, "p"), 2)
	assert.Len(t, m2.Clusters(), 2, "fewer vectors than k gives singleton clusters")

	got, err := m2.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, got.RelatedEntries, 1, "back-link was persisted")
}

func TestLoadFailure(t *testing.T) {
	mr := &erroringLoad{Store: store.NewMemoryStore()}
	m, _ := newTestManager(t, Options{Store: mr})
	assert.Error(t, m.Load(context.Background()))
}

type erroringLoad struct{ store.Store }

func (erroringLoad) GetAll(ctx context.Context) ([]*model.Entry, error) {
	return nil, errors.New("connection refused")
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	m, c := newTestManager(t, Options{})
	a := mustStore(t, m, model.KindResearch, "one", model.Metadata{}, 0.9)
	b := mustStore(t, m, model.KindResearch, "two", model.Metadata{}, 0.3)
	cc := mustStore(t, m, model.KindDecision, "three", model.Metadata{}, 0.3)
	_, err := m.Get(ctx, a.ID)
	require.NoError(t, err)
	_, err = m.Get(ctx, a.ID)
	require.NoError(t, err)

	st := m.Stats(ctx)
	assert.Equal(t, 3, st.TotalEntries)
	assert.Equal(t, map[model.Kind]int{model.KindResearch: 2, model.KindDecision: 1}, st.EntriesByType)
	assert.InDelta(t, 0.5, st.AverageImportance, 1e-9)
	require.Len(t, st.MostAccessedEntries, 3, "unread entries still fill the list")
	assert.Equal(t, a.ID, st.MostAccessedEntries[0].ID)
	assert.Equal(t, 2, st.MostAccessedEntries[0].AccessCount)
	assert.Equal(t, b.ID, st.MostAccessedEntries[1].ID)
	assert.Equal(t, cc.ID, st.MostAccessedEntries[2].ID)
	assert.Zero(t, st.MostAccessedEntries[2].AccessCount)
	assert.Equal(t, 3, st.RecentActivity.CreatedLastDay)
	assert.Equal(t, 1, st.RecentActivity.AccessedLastDay)
	assert.Equal(t, 3, st.Embedded)
	assert.Nil(t, st.LastOptimized)

	c.Advance(48 * time.Hour)
	st = m.Stats(ctx)
	assert.Equal(t, 0, st.RecentActivity.CreatedLastDay)
	assert.Equal(t, 3, st.RecentActivity.CreatedLastWeek)
	assert.Equal(t, 1, st.RecentActivity.AccessedLastWeek)

	_, err = m.Optimize(ctx)
	require.NoError(t, err)
	st = m.Stats(ctx)
	require.NotNil(t, st.LastOptimized)
	assert.True(t, c.Now().Equal(*st.LastOptimized))
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestManager(t, Options{})
	a := mustStore(t, src, model.KindPattern, "circuit breakers around storage", model.Metadata{Keywords: []string{"circuit", "breaker"}}, 0.6)
	mustStore(t, src, model.KindPattern, "circuit breakers around queues", model.Metadata{Keywords: []string{"circuit", "breaker"}}, 0.6)

	data := src.Export(ctx)
	require.Len(t, data.Entries, 2)
	assert.Equal(t, a.ID, data.Entries[0].ID)
	assert.Equal(t, 0, data.Entries[0].AccessCount, "export is not an access")

	ms := store.NewMemoryStore()
	dst, _ := newTestManager(t, Options{Store: ms})
	n, err := dst.Import(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, dst.idx.Verify())

	got, err := dst.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, a.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, a.Content, got.Content)

	persisted, err := ms.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted, 2)
}

func TestImportRejectsInvalidBatch(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	_, err := m.Import(context.Background(), &ExportData{Entries: []*model.Entry{
		{ID: "ok", Kind: model.KindContext, Content: "x", CreatedAt: t0, Importance: 0.5},
		{ID: "bad", Kind: "gossip", Content: "y", CreatedAt: t0},
	}})
	assert.ErrorIs(t, err, ErrInvalidEntry)
	assert.Equal(t, 0, m.Len(), "nothing is committed when any entry is invalid")

	_, err = m.Import(context.Background(), &ExportData{Version: "99", Entries: []*model.Entry{{ID: "x"}}})
	assert.Error(t, err)
}

func TestRecluster(t *testing.T) {
	m, _ := newTestManager(t, Options{Clusters: -1})
	for i := 0; i < 4; i++ {
		mustStore(t, m, model.KindContext, fmt.Sprintf("react hooks state number%d", i), model.Metadata{}, 0.5)
	}
	for i := 0; i < 4; i++ {
		mustStore(t, m, model.KindContext, fmt.Sprintf("postgres database migrations batch%d", i), model.Metadata{}, 0.5)
	}
	assert.Empty(t, m.Clusters())

	clusters := m.Recluster(2)
	require.NotEmpty(t, clusters)
	total := 0
	for _, c := range clusters {
		total += len(c.Members)
	}
	assert.Equal(t, 8, total)

	st := m.Stats(context.Background())
	assert.Len(t, st.ClusterSizes, len(clusters))
}

func TestConcurrentStoreAndSearch(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Options{})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := m.Store(ctx, model.KindConversation, fmt.Sprintf("worker %d message %d", w, i), model.Metadata{
					Keywords: []string{"worker", "message"},
				}, 0.5)
				assert.NoError(t, err)
				_, err = m.Search(ctx, model.Query{Text: "worker", Semantic: true, IncludeRelated: true})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 80, m.Len())
	assert.NoError(t, m.idx.Verify())
	for _, e := range m.Export(ctx).Entries {
		assert.LessOrEqual(t, len(e.RelatedEntries), DefaultMaxRelations)
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	m, _ := newTestManager(t, Options{Store: ms})
	e := mustStore(t, m, model.KindContext, "closing", model.Metadata{}, 0.5)
	_, err := m.Get(ctx, e.ID)
	require.NoError(t, err)

	require.NoError(t, m.Close(ctx))
	persisted, err := ms.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, persisted[0].AccessCount)
}
