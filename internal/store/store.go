// Package store provides durable persistence for memory entries.
//
// The engine keeps everything in memory and only needs three operations from
// a backend: write one entry, read all entries back, delete one entry.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rcliao/memory-engine/internal/model"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("store unavailable")

// Store defines the persistence interface.
type Store interface {
	// Put inserts or replaces the entry with e.ID.
	Put(ctx context.Context, e *model.Entry) error

	// GetAll returns every persisted entry, oldest first.
	GetAll(ctx context.Context) ([]*model.Entry, error)

	// Delete removes the entry with id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// Close closes the store.
	Close() error
}

// Engines are the supported backend names.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
	EngineRedis    = "redis"
	EngineMemory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Engine      string
	Path        string // sqlite database file
	PostgresDSN string
	RedisURL    string
	RedisKey    string
}

// Open creates the backend named by opts.Engine.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		s   Store
		err error
	)
	switch strings.ToLower(opts.Engine) {
	case "", EngineSQLite:
		s, err = NewSQLiteStore(opts.Path)
	case EnginePostgres:
		s, err = NewPostgresStore(ctx, opts.PostgresDSN, logger)
	case EngineRedis:
		s, err = NewRedisStore(ctx, RedisOptions{URL: opts.RedisURL, Key: opts.RedisKey})
	case EngineMemory:
		s = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown storage engine %q (valid: sqlite, postgres, redis, memory)", opts.Engine)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
