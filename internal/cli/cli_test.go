package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memory-engine/internal/engine"
	"github.com/rcliao/memory-engine/internal/model"
)

// resetFlags restores every flag to its default; cobra keeps values between
// Execute calls on the shared RootCmd.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func newDB(t *testing.T) string {
	t.Helper()
	t.Setenv("MEMORY_ENGINE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("MEMORY_ENGINE_LOG_LEVEL", "error")
	return filepath.Join(t.TempDir(), "memory.db")
}

func run(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	resetFlags(RootCmd)
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(append([]string{"--db", db, "--format", "json"}, args...))
	err := RootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, db string, args ...string) string {
	t.Helper()
	out, err := run(t, db, args...)
	require.NoError(t, err, out)
	return out
}

func putEntry(t *testing.T, db string, args ...string) *model.Entry {
	t.Helper()
	var e model.Entry
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, append([]string{"put"}, args...)...)), &e))
	return &e
}

func TestPutSearchGet(t *testing.T) {
	db := newDB(t)
	hooks := putEntry(t, db, "Using React hooks to manage component state", "--kind", "code-analysis", "--project", "shop")
	putEntry(t, db, "Database migrations run at startup", "--kind", "decision", "--project", "shop")

	assert.NotEmpty(t, hooks.ID)
	assert.Equal(t, model.KindCodeAnalysis, hooks.Kind)
	assert.Equal(t, "shop", hooks.Metadata.ProjectID)
	assert.Empty(t, hooks.Embedding, "embeddings are not printed")

	var results []model.SearchResult
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "search", "react", "hooks", "--project", "shop")), &results))
	require.Len(t, results, 1)
	assert.Equal(t, hooks.ID, results[0].Entry.ID)
	assert.Equal(t, model.MatchExact, results[0].MatchType)

	// the search access was flushed when the previous run closed
	var got model.Entry
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "get", hooks.ID)), &got))
	assert.Equal(t, 2, got.AccessCount)
}

func TestPutRejectsInvalidInput(t *testing.T) {
	db := newDB(t)
	_, err := run(t, db, "put", "some text", "--kind", "nope")
	assert.ErrorIs(t, err, engine.ErrInvalidEntry)

	_, err = run(t, db, "put", "some text", "--importance", "1.5")
	assert.ErrorIs(t, err, engine.ErrInvalidEntry)
}

func TestUpdateAndRm(t *testing.T) {
	db := newDB(t)
	orig := putEntry(t, db, "first draft", "--kind", "decision")

	var rev model.Entry
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "update", orig.ID, "second draft")), &rev))
	assert.Equal(t, orig.ID, rev.Supersedes)
	assert.Equal(t, 2, rev.Version)
	assert.Equal(t, model.KindDecision, rev.Kind)

	out := mustRun(t, db, "rm", orig.ID)
	assert.Contains(t, out, orig.ID)

	_, err := run(t, db, "get", orig.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = run(t, db, "rm", orig.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)
	mustRun(t, db, "get", rev.ID)
}

func TestListAndBuckets(t *testing.T) {
	db := newDB(t)
	a := putEntry(t, db, "checkout flow notes", "--project", "shop")
	b := putEntry(t, db, "billing retry notes", "--project", "billing")

	var rows []bucketCount
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "buckets", "project")), &rows))
	assert.Equal(t, []bucketCount{
		{Dimension: "project", Key: "billing", Count: 1},
		{Dimension: "project", Key: "shop", Count: 1},
	}, rows)

	var entries []model.Entry
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "list", "--by", "project", "--key", "shop")), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, a.ID, entries[0].ID)
	assert.Zero(t, entries[0].AccessCount, "listing is not an access")

	entries = nil
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "list")), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, b.ID, entries[0].ID, "newest first")

	_, err := run(t, db, "list", "--by", "colour", "--key", "red")
	assert.ErrorContains(t, err, "unknown dimension")
	_, err = run(t, db, "list", "--by", "project")
	assert.ErrorContains(t, err, "--key is required")
}

func TestExportImport(t *testing.T) {
	src := newDB(t)
	putEntry(t, src, "alpha entry")
	putEntry(t, src, "beta entry")

	path := filepath.Join(t.TempDir(), "export.json")
	mustRun(t, src, "export", "--output", path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var data engine.ExportData
	require.NoError(t, json.Unmarshal(raw, &data))
	require.Len(t, data.Entries, 2)
	assert.NotEmpty(t, data.Entries[0].Embedding, "exports keep embeddings")

	dst := filepath.Join(t.TempDir(), "other.db")
	assert.Contains(t, mustRun(t, dst, "import", path), `"imported": 2`)

	var stats model.Stats
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dst, "stats")), &stats))
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 2, stats.Embedded)
}

func TestIngestDoc(t *testing.T) {
	db := newDB(t)
	section := "Some content filling space. Some content filling space. Some content filling space. " +
		"Some content filling space. Some content filling space. Some content filling space. " +
		"Some content filling space. Some content filling space. Some content filling space. " +
		"Some content filling space. Some content filling space. Some content filling space. "
	doc := filepath.Join(t.TempDir(), "guide.md")
	require.NoError(t, os.WriteFile(doc, []byte("# Setup\n\n"+section+"\n\n# Usage\n\n"+section), 0o644))

	var entries []model.Entry
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "ingest", "doc", doc, "--project", "docs")), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "Setup", entries[0].Metadata.Summary)
	assert.Equal(t, "Usage", entries[1].Metadata.Summary)
	assert.Equal(t, model.SourceFile, entries[0].Metadata.Source)
	assert.Equal(t, []string{doc}, entries[0].Metadata.FileReferences)
}

func TestIngestRecords(t *testing.T) {
	db := newDB(t)

	var conv model.Entry
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "ingest", "conversation",
		"--message", "How do we cache pages?", "--response", "Use a CDN.", "--session", "s-1")), &conv))
	assert.Equal(t, model.KindConversation, conv.Kind)
	assert.Equal(t, "s-1", conv.Metadata.SessionID)

	var research model.Entry
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "ingest", "research",
		"--topic", "Caching", "--summary", "CDNs win.", "--finding", "edge hit rate 90%", "--finding", "purge by tag")), &research))
	assert.Equal(t, model.KindResearch, research.Kind)
	assert.Contains(t, research.Content, "- purge by tag")
	assert.Equal(t, 0.8, research.Importance)

	_, err := run(t, db, "ingest", "code", "--file", "cart.go")
	assert.ErrorContains(t, err, "analysis")
}

func TestContextCommand(t *testing.T) {
	db := newDB(t)
	putEntry(t, db, "The deploy pipeline uses blue green releases")

	var res engine.ContextResult
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "context", "deploy", "--budget", "500")), &res))
	assert.Equal(t, 500, res.Budget)
	require.Len(t, res.Entries, 1)
	assert.False(t, res.Entries[0].Excerpt)
}

func TestOptimizeAndClusters(t *testing.T) {
	db := newDB(t)
	putEntry(t, db, "react hooks state")
	putEntry(t, db, "database migrations startup")

	var report engine.OptimizeReport
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "optimize")), &report))
	assert.Empty(t, report.Removed, "fresh entries are never evicted")

	var clusters []struct {
		Centroid []float32 `json:"centroid"`
		Members  []string  `json:"members"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "clusters", "-k", "2")), &clusters))
	require.Len(t, clusters, 2)
	assert.Nil(t, clusters[0].Centroid)
}

func TestBadConfigFile(t *testing.T) {
	db := newDB(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  engine: mongo\n"), 0o644))

	_, err := run(t, db, "--config", path, "stats")
	assert.ErrorContains(t, err, "storage.engine")

	_, err = run(t, db, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "stats")
	assert.Error(t, err, "an explicit config must exist")
}
