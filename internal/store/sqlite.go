package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/memory-engine/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id            TEXT PRIMARY KEY,
		kind          TEXT NOT NULL,
		content       TEXT NOT NULL,
		metadata      TEXT NOT NULL,
		embedding     TEXT,
		tags          TEXT,
		related       TEXT,
		importance    REAL NOT NULL DEFAULT 0.5,
		access_count  INTEGER NOT NULL DEFAULT 0,
		last_accessed TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL,
		version       INTEGER NOT NULL DEFAULT 1,
		supersedes    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, e *model.Entry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	var embeddingJSON, tagsJSON, relatedJSON *string
	if e.Embedding != nil {
		embeddingJSON = jsonString(e.Embedding)
	}
	if len(e.Tags) > 0 {
		tagsJSON = jsonString(e.Tags)
	}
	if len(e.RelatedEntries) > 0 {
		relatedJSON = jsonString(e.RelatedEntries)
	}
	var supersedes *string
	if e.Supersedes != "" {
		supersedes = &e.Supersedes
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (id, kind, content, metadata, embedding, tags, related, importance,
		                      access_count, last_accessed, created_at, updated_at, version, supersedes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   kind = excluded.kind, content = excluded.content, metadata = excluded.metadata,
		   embedding = excluded.embedding, tags = excluded.tags, related = excluded.related,
		   importance = excluded.importance, access_count = excluded.access_count,
		   last_accessed = excluded.last_accessed, updated_at = excluded.updated_at,
		   version = excluded.version, supersedes = excluded.supersedes`,
		e.ID, string(e.Kind), e.Content, string(meta), embeddingJSON, tagsJSON, relatedJSON, e.Importance,
		e.AccessCount, formatTime(e.LastAccessed), formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
		e.Version, supersedes)
	if err != nil {
		return fmt.Errorf("upsert entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetAll(ctx context.Context) ([]*model.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, content, metadata, embedding, tags, related, importance,
		        access_count, last_accessed, created_at, updated_at, version, supersedes
		 FROM entries ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*model.Entry, error) {
	e := &model.Entry{}
	var kind, meta, lastAccessed, createdAt, updatedAt string
	var embeddingJSON, tagsJSON, relatedJSON, supersedes sql.NullString

	err := row.Scan(
		&e.ID, &kind, &e.Content, &meta, &embeddingJSON, &tagsJSON, &relatedJSON, &e.Importance,
		&e.AccessCount, &lastAccessed, &createdAt, &updatedAt, &e.Version, &supersedes,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = model.Kind(kind)
	if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", e.ID, err)
	}
	if embeddingJSON.Valid {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &e.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", e.ID, err)
		}
	}
	if tagsJSON.Valid {
		if err := json.Unmarshal([]byte(tagsJSON.String), &e.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", e.ID, err)
		}
	}
	if relatedJSON.Valid {
		if err := json.Unmarshal([]byte(relatedJSON.String), &e.RelatedEntries); err != nil {
			return nil, fmt.Errorf("decode related entries for %s: %w", e.ID, err)
		}
	}
	if supersedes.Valid {
		e.Supersedes = supersedes.String
	}
	for _, ts := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{
		{"last_accessed", lastAccessed, &e.LastAccessed},
		{"created_at", createdAt, &e.CreatedAt},
		{"updated_at", updatedAt, &e.UpdatedAt},
	} {
		t, err := time.Parse(timeLayout, ts.raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s for %s: %w", ts.name, e.ID, err)
		}
		*ts.dst = t
	}
	return e, nil
}

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func jsonString(v interface{}) *string {
	b, _ := json.Marshal(v)
	s := string(b)
	return &s
}
