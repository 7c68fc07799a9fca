package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rcliao/memory-engine/internal/model"
)

// DefaultRedisKey is the hash holding all entries.
const DefaultRedisKey = "memory-engine:entries"

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379/0")
	URL string

	// Key is the hash every entry is written to, field = entry id.
	Key string

	// ConnectTimeout bounds the initial ping.
	ConnectTimeout time.Duration
}

// RedisStore implements Store as a single Redis hash of JSON documents.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Key == "" {
		opts.Key = DefaultRedisKey
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client, key: opts.Key}, nil
}

func (s *RedisStore) Put(ctx context.Context, e *model.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.ID, err)
	}
	if err := s.client.HSet(ctx, s.key, e.ID, data).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", e.ID, err)
	}
	return nil
}

// GetAll reads the whole hash. Hash order is undefined, so entries are
// sorted by creation time then id.
func (s *RedisStore) GetAll(ctx context.Context) ([]*model.Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	entries := make([]*model.Entry, 0, len(fields))
	for id, raw := range fields {
		e := &model.Entry{}
		if err := json.Unmarshal([]byte(raw), e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.HDel(ctx, s.key, id).Err(); err != nil {
		return fmt.Errorf("redis hdel %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
