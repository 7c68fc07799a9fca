package store

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memory-engine/internal/model"
)

func testEntry(id string, created time.Time) *model.Entry {
	return &model.Entry{
		ID:      id,
		Kind:    model.KindDecision,
		Content: "use hashed embeddings for " + id,
		Metadata: model.Metadata{
			Source:    model.SourceUserInput,
			ProjectID: "proj",
			Keywords:  []string{"hashed", "embeddings"},
			Entities:  []model.Entity{{Type: "technology", Name: "go", Confidence: 0.8}},
		},
		Embedding:      []float32{0.6, 0.8, 0},
		CreatedAt:      created,
		UpdatedAt:      created,
		LastAccessed:   created,
		Importance:     0.5,
		Tags:           []string{"hashed", "embeddings"},
		RelatedEntries: []string{"other"},
		Version:        1,
	}
}

// runContract exercises the behaviour every backend must share.
func runContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, testEntry("b", base.Add(time.Minute))))
	require.NoError(t, s.Put(ctx, testEntry("a", base)))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID, "ordered by creation time")
	assert.Equal(t, "b", all[1].ID)

	got := all[0]
	assert.Equal(t, model.KindDecision, got.Kind)
	assert.Equal(t, "proj", got.Metadata.ProjectID)
	assert.Equal(t, []string{"hashed", "embeddings"}, got.Tags)
	assert.Equal(t, []string{"other"}, got.RelatedEntries)
	assert.InDeltaSlice(t, []float32{0.6, 0.8, 0}, got.Embedding, 1e-6)
	assert.True(t, base.Equal(got.CreatedAt))
	require.Len(t, got.Metadata.Entities, 1)
	assert.Equal(t, "go", got.Metadata.Entities[0].Name)

	// Upsert replaces in place.
	updated := testEntry("a", base)
	updated.AccessCount = 4
	updated.LastAccessed = base.Add(time.Hour)
	require.NoError(t, s.Put(ctx, updated))
	all, err = s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 4, all[0].AccessCount)
	assert.True(t, base.Add(time.Hour).Equal(all[0].LastAccessed))

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "missing"), "deleting an absent id is not an error")
	all, err = s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].ID)
}

func TestMemoryStore(t *testing.T) {
	runContract(t, NewMemoryStore())
}

func TestMemoryStoreClones(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	e := testEntry("x", time.Now())
	require.NoError(t, s.Put(ctx, e))
	e.Content = "mutated"

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", all[0].Content)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	runContract(t, s)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, testEntry("keep", time.Now())))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "keep", all[0].ID)
}

func TestSQLiteStoreNilEmbedding(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	e := testEntry("bare", time.Now())
	e.Embedding = nil
	e.Tags = nil
	e.RelatedEntries = nil
	require.NoError(t, s.Put(ctx, e))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].Embedding)
	assert.Empty(t, all[0].Tags)
}

func TestSQLiteStoreCorruptRow(t *testing.T) {
	tests := []struct {
		name   string
		update string
		want   string
	}{
		{"tags", `UPDATE entries SET tags = '{not json'`, "decode tags for row"},
		{"related", `UPDATE entries SET related = '[1,'`, "decode related entries for row"},
		{"last accessed", `UPDATE entries SET last_accessed = 'garbage'`, "parse last_accessed for row"},
		{"created at", `UPDATE entries SET created_at = 'garbage'`, "parse created_at for row"},
		{"updated at", `UPDATE entries SET updated_at = ''`, "parse updated_at for row"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
			require.NoError(t, err)
			defer s.Close()

			require.NoError(t, s.Put(ctx, testEntry("row", time.Now())))
			_, err = s.db.ExecContext(ctx, tt.update)
			require.NoError(t, err)

			_, err = s.GetAll(ctx)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), RedisOptions{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	runContract(t, s)
	assert.True(t, mr.Exists(DefaultRedisKey))
}

func TestRedisStoreUnreachable(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisOptions{
		URL:            "redis://127.0.0.1:1",
		ConnectTimeout: 200 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() {
		s.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE id IN ('a', 'b')`)
		s.Close()
	})
	runContract(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Engine: EngineMemory}, slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Options{Engine: EngineSQLite, Path: filepath.Join(t.TempDir(), "m.db")}, slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	_, err = Open(ctx, Options{Engine: "cassandra"}, slog.Default())
	assert.Error(t, err)
}

type failingStore struct {
	calls int
}

var errBackend = errors.New("backend down")

func (f *failingStore) Put(ctx context.Context, e *model.Entry) error {
	f.calls++
	return errBackend
}

func (f *failingStore) GetAll(ctx context.Context) ([]*model.Entry, error) {
	f.calls++
	return nil, errBackend
}

func (f *failingStore) Delete(ctx context.Context, id string) error {
	f.calls++
	return errBackend
}

func (f *failingStore) Close() error { return nil }

func TestBreakerOpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	backend := &failingStore{}
	b := NewBreaker(backend, BreakerConfig{MaxFailures: 2, Timeout: time.Hour}, slog.Default())

	err := b.Put(ctx, testEntry("a", time.Now()))
	assert.ErrorIs(t, err, errBackend)
	err = b.Delete(ctx, "a")
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, "open", b.State())

	_, err = b.GetAll(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, backend.calls, "open circuit does not reach the backend")
}

func TestBreakerPassesThrough(t *testing.T) {
	b := NewBreaker(NewMemoryStore(), DefaultBreakerConfig(), nil)
	runContract(t, b)
	assert.Equal(t, "closed", b.State())
}
