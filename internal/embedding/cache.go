package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/dgraph-io/ristretto"
)

// Cache memoises vectors keyed by a SHA-256 of the source text. Embedding is
// pure, so a cached vector is always identical to a recomputed one.
type Cache struct {
	c *ristretto.Cache
}

// NewCache creates a cache holding roughly maxEntries vectors.
func NewCache(maxEntries int64) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &Cache{c: c}, nil
}

// Get returns a copy of the cached vector for text.
func (c *Cache) Get(text string) (Vector, bool) {
	v, ok := c.c.Get(contentKey(text))
	if !ok {
		return nil, false
	}
	vec, ok := v.(Vector)
	if !ok {
		return nil, false
	}
	return slices.Clone(vec), true
}

// Set stores a copy of v. Admission is best effort.
func (c *Cache) Set(text string, v Vector) {
	c.c.Set(contentKey(text), slices.Clone(v), 1)
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() { c.c.Close() }

func contentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
