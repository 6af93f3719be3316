// Package cache provides Redis-backed caching for the RAG pipeline so that
// cache state is shared across API and worker replicas instead of being
// pinned to one process's memory.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbeddingCache caches query embedding vectors keyed by normalized query
// hash, to avoid redundant embedding calls for repeated or similar
// queries. Expiry is delegated to Redis's own TTL rather than a
// background sweep.
type EmbeddingCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	hits   int64
	misses int64
}

// NewEmbeddingCache wraps rdb with the given entry TTL.
func NewEmbeddingCache(rdb *redis.Client, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{rdb: rdb, ttl: ttl}
}

// Get returns a cached embedding vector if present and not expired.
func (c *EmbeddingCache) Get(ctx context.Context, queryHash string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, queryHash).Bytes()
	if err != nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		slog.Warn("cache: corrupt embedding entry", "key", queryHash, "error", err)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return vec, true
}

// Set stores an embedding vector in the cache with the configured TTL.
func (c *EmbeddingCache) Set(ctx context.Context, queryHash string, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("cache.Set: marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, queryHash, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache.Set: %w", err)
	}
	return nil
}

// Stats returns hit/miss counters accumulated since process start.
func (c *EmbeddingCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// EmbeddingQueryHash returns a deterministic cache key for a query string,
// normalizing by lowercasing and trimming whitespace before hashing.
func EmbeddingQueryHash(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("emb:%x", h[:16])
}
