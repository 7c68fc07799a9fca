// Package embedding turns text into fixed-length vectors and compares them.
//
// The embedder is a hashed bag-of-words model: deterministic, dependency free
// and approximate. Two texts sharing rare terms land close together; word
// order and synonyms are ignored.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultDims is the vector length used when none is configured.
const DefaultDims = 384

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched lengths and zero-magnitude inputs yield 0.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push identical vectors a hair past 1
	return math.Max(-1, math.Min(1, sim))
}

// Norm returns the L2 magnitude of v.
func Norm(v Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// Tokenize lowercases text, strips punctuation and returns the tokens longer
// than two characters that are not stop words. Order and repeats are kept.
func Tokenize(text string) []string {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 || stopWords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// HashEmbedder maps tokens onto dimensions with a stable string hash and
// weights them by term frequency times an IDF proxy.
type HashEmbedder struct {
	dims  int
	cache *Cache
}

// Option configures a HashEmbedder.
type Option func(*HashEmbedder)

// WithCache memoises vectors by content hash.
func WithCache(c *Cache) Option {
	return func(e *HashEmbedder) { e.cache = c }
}

// NewHashEmbedder creates an embedder producing vectors of length dims.
func NewHashEmbedder(dims int, opts ...Option) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDims
	}
	e := &HashEmbedder{dims: dims}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns the vector for text. It never fails; the error is part of the
// Embedder contract for implementations that can.
func (e *HashEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	if e.cache != nil {
		if v, ok := e.cache.Get(text); ok {
			return v, nil
		}
	}
	v := e.EmbedText(text)
	if e.cache != nil {
		e.cache.Set(text, v)
	}
	return v, nil
}

// EmbedText computes the vector without consulting the cache.
func (e *HashEmbedder) EmbedText(text string) Vector {
	tokens := Tokenize(text)

	// distinct tokens in first-seen order keep float summation order stable
	tf := make(map[string]int, len(tokens))
	var order []string
	for _, tok := range tokens {
		if tf[tok] == 0 {
			order = append(order, tok)
		}
		tf[tok]++
	}

	acc := make([]float64, e.dims)
	for _, tok := range order {
		freq := float64(tf[tok])
		acc[bucketOf(tok, e.dims)] += freq * idfWeight(tok, freq)
	}

	var sum float64
	for _, x := range acc {
		sum += x * x
	}
	v := make(Vector, e.dims)
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i, x := range acc {
		v[i] = float32(x / norm)
	}
	return v
}

func (e *HashEmbedder) Dims() int { return e.dims }

// idfWeight treats curated vocabulary as common (weight 1) and scores unknown
// tokens higher the rarer they are within the text.
func idfWeight(tok string, freq float64) float64 {
	if vocabulary[tok] {
		return 1.0
	}
	return math.Log(1000 / (freq + 1))
}

func bucketOf(tok string, dims int) int {
	h := fnv.New32a()
	h.Write([]byte(tok))
	return int(h.Sum32() % uint32(dims))
}
