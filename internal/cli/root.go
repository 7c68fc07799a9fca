// Package cli implements the memory-engine CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/memory-engine/internal/config"
	"github.com/rcliao/memory-engine/internal/embedding"
	"github.com/rcliao/memory-engine/internal/engine"
	"github.com/rcliao/memory-engine/internal/index"
	"github.com/rcliao/memory-engine/internal/model"
	"github.com/rcliao/memory-engine/internal/store"
)

var (
	configPath string
	dbPath     string
	engineFlag string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "memory-engine",
	Short:         "Memory and semantic retrieval for AI agents",
	Long:          "Store, enrich, index and retrieve agent memories. Text in, JSON out. SQLite-backed by default, single binary.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $MEMORY_ENGINE_CONFIG or ~/.memory-engine/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite path (default: $MEMORY_ENGINE_DB or ~/.memory-engine/memory.db)")
	RootCmd.PersistentFlags().StringVar(&engineFlag, "engine", "", "Storage engine: sqlite, postgres, redis, memory")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

// Execute runs the root command and reports any error on stderr.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig() (*config.Config, error) {
	path, required := configPath, configPath != ""
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if engineFlag != "" {
		cfg.Storage.Engine = engineFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is an open Manager plus the resources it borrows.
type session struct {
	*engine.Manager
	cache *embedding.Cache
	log   *slog.Logger
}

// openSession builds the engine from config and loads persisted entries.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := cfg.Log.NewLogger(os.Stderr)

	var backend store.Store
	backend, err = store.Open(ctx, store.Options{
		Engine:      cfg.Storage.Engine,
		Path:        cfg.Storage.Path,
		PostgresDSN: cfg.Storage.PostgresDSN,
		RedisURL:    cfg.Storage.RedisURL,
		RedisKey:    cfg.Storage.RedisKey,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if cfg.Breaker.Enabled {
		backend = store.NewBreaker(backend, store.BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     cfg.Breaker.Timeout,
		}, log)
	}

	var (
		cache   *embedding.Cache
		embOpts []embedding.Option
	)
	if cfg.Embedding.CacheSize > 0 {
		cache, err = embedding.NewCache(cfg.Embedding.CacheSize)
		if err != nil {
			backend.Close()
			return nil, err
		}
		embOpts = append(embOpts, embedding.WithCache(cache))
	}

	threshold := cfg.Index.SimilarityThreshold
	maxRelations := cfg.Search.MaxRelations
	decay := cfg.Search.RelatedDecay
	m, err := engine.New(engine.Options{
		Logger:   log,
		Embedder: embedding.NewHashEmbedder(cfg.Embedding.Dimensions, embOpts...),
		Store:    backend,
		Index: index.Options{
			RecentLimit:         cfg.Index.RecentLimit,
			SimilarityThreshold: &threshold,
		},
		MaxRelations:      &maxRelations,
		MinSharedKeywords: cfg.Search.MinSharedKeywords,
		DefaultLimit:      cfg.Search.DefaultLimit,
		RelatedDecay:      &decay,
		Eviction: engine.EvictionPolicy{
			MaxImportance:  cfg.Eviction.MaxImportance,
			MaxAge:         cfg.Eviction.MaxAge,
			MaxAccessCount: cfg.Eviction.MaxAccessCount,
		},
		Clusters: cfg.Index.Clusters,
	})
	if err != nil {
		backend.Close()
		if cache != nil {
			cache.Close()
		}
		return nil, err
	}
	s := &session{Manager: m, cache: cache, log: log}
	if err := m.Load(ctx); err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("load: %w", err)
	}
	return s, nil
}

// Close flushes access statistics and releases the backend.
func (s *session) Close(ctx context.Context) error {
	err := s.Manager.Close(ctx)
	if s.cache != nil {
		s.cache.Close()
	}
	return err
}

// withSession opens a session, runs fn and closes the session, reporting
// the first error.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	runErr := fn(ctx, s)
	if err := s.Close(ctx); err != nil {
		if runErr == nil {
			return fmt.Errorf("close: %w", err)
		}
		s.log.Warn("close failed", "error", err)
	}
	return runErr
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// view strips the embedding, which is noise on a terminal.
func view(e *model.Entry) *model.Entry {
	if e == nil {
		return nil
	}
	c := e.Clone()
	c.Embedding = nil
	return c
}

func printEntry(w io.Writer, e *model.Entry) error {
	if formatFlag == "text" {
		_, err := fmt.Fprintf(w, "%s  %-13s  imp=%.2f  reads=%d  %s\n", e.ID, e.Kind, e.Importance, e.AccessCount, oneLine(e.Content, 80))
		return err
	}
	return printJSON(w, view(e))
}

func printEntries(w io.Writer, entries []*model.Entry) error {
	if formatFlag == "text" {
		for _, e := range entries {
			if err := printEntry(w, e); err != nil {
				return err
			}
		}
		return nil
	}
	out := make([]*model.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, view(e))
	}
	return printJSON(w, out)
}

func printResults(w io.Writer, results []model.SearchResult) error {
	if formatFlag == "text" {
		for _, r := range results {
			fmt.Fprintf(w, "%.3f  %-8s  %s  %s\n", r.Score, r.MatchType, r.Entry.ID, oneLine(r.Entry.Content, 70))
		}
		return nil
	}
	out := make([]model.SearchResult, len(results))
	for i, r := range results {
		r.Entry = view(r.Entry)
		out[i] = r
	}
	return printJSON(w, out)
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

// readContent returns args joined, or stdin when it is piped.
func readContent(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

func splitList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseKinds(raw []string) ([]model.Kind, error) {
	var kinds []model.Kind
	for _, k := range raw {
		kind := model.Kind(k)
		if !model.ValidKinds[kind] {
			return nil, fmt.Errorf("unknown kind %q", k)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// parseTime accepts RFC 3339 or a duration meaning that long ago.
func parseTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or a duration like 48h", s)
	}
	return t, nil
}
