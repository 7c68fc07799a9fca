package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pgvector/pgvector-go"

	"github.com/rcliao/memory-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL. Entries are kept as JSONB;
// when the pgvector extension is present the embedding lives in its own
// vector column instead of inside the document.
type PostgresStore struct {
	db            *sql.DB
	vectorEnabled bool
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &PostgresStore{db: db, vectorEnabled: true}
	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		logger.Warn("postgres: pgvector extension not available, embeddings stored inline", "error", err)
		s.vectorEnabled = false
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memory_entries (
			id         TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			data       JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memory_entries_created ON memory_entries(created_at);`)
	if err != nil {
		return err
	}
	if s.vectorEnabled {
		_, err = s.db.ExecContext(ctx, `ALTER TABLE memory_entries ADD COLUMN IF NOT EXISTS embedding vector`)
	}
	return err
}

func (s *PostgresStore) Put(ctx context.Context, e *model.Entry) error {
	doc := *e
	var vec *pgvector.Vector
	if s.vectorEnabled {
		if e.Embedding != nil {
			v := pgvector.NewVector(e.Embedding)
			vec = &v
		}
		doc.Embedding = nil
	}
	data, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("postgres: encode %s: %w", e.ID, err)
	}

	if s.vectorEnabled {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO memory_entries (id, created_at, data, embedding) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, embedding = EXCLUDED.embedding`,
			e.ID, e.CreatedAt, string(data), vec)
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO memory_entries (id, created_at, data) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
			e.ID, e.CreatedAt, string(data))
	}
	if err != nil {
		return fmt.Errorf("postgres: upsert %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetAll(ctx context.Context) ([]*model.Entry, error) {
	query := `SELECT data FROM memory_entries ORDER BY created_at, id`
	if s.vectorEnabled {
		query = `SELECT data, embedding FROM memory_entries ORDER BY created_at, id`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load: %w", err)
	}
	defer rows.Close()

	var entries []*model.Entry
	for rows.Next() {
		var data []byte
		var vec *pgvector.Vector
		dest := []interface{}{&data}
		if s.vectorEnabled {
			dest = append(dest, &vec)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		e := &model.Entry{}
		if err := json.Unmarshal(data, e); err != nil {
			return nil, fmt.Errorf("postgres: decode: %w", err)
		}
		if vec != nil {
			e.Embedding = vec.Slice()
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
