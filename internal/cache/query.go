package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vaultline/core/internal/model"
)

// QueryResult is the cached shape of a retrieval answer: the ranked chunks
// that were used plus the model's confidence, so a repeated identical
// query within the TTL window skips retrieval and generation entirely.
type QueryResult struct {
	Chunks     []model.RankedChunk `json:"chunks"`
	Confidence float64             `json:"confidence"`
}

// QueryCache caches QueryResult values by (tenant, user, query text).
// Backed by Redis so cached answers are visible to every API replica.
type QueryCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	hits   int64
	misses int64
}

// NewQueryCache wraps rdb with the given entry TTL.
func NewQueryCache(rdb *redis.Client, ttl time.Duration) *QueryCache {
	return &QueryCache{rdb: rdb, ttl: ttl}
}

// Get returns a cached QueryResult if present and not expired.
func (c *QueryCache) Get(ctx context.Context, tenantID, userID, query string) (*QueryResult, bool) {
	key := cacheKey(tenantID, userID, query)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var result QueryResult
	if err := json.Unmarshal(raw, &result); err != nil {
		slog.Warn("cache: corrupt query entry", "key", key, "error", err)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return &result, true
}

// Set stores a QueryResult in the cache with the configured TTL.
func (c *QueryCache) Set(ctx context.Context, tenantID, userID, query string, result *QueryResult) error {
	key := cacheKey(tenantID, userID, query)
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache.Set: marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache.Set: %w", err)
	}
	return nil
}

// InvalidateTenant removes all cached query results for a tenant. Call
// this after a document is uploaded, deleted, or re-indexed, since the
// retrieval corpus for that tenant has changed.
func (c *QueryCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	pattern := "qc:" + tenantID + ":*"
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache.InvalidateTenant: scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache.InvalidateTenant: del: %w", err)
	}
	slog.Info("cache: invalidated tenant", "tenant_id", tenantID, "entries_removed", len(keys))
	return nil
}

// Stats returns hit/miss counters accumulated since process start.
func (c *QueryCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// cacheKey builds a deterministic key: "qc:{tenantID}:{userID}:{hex of the first 8 bytes of sha256(query)}"
func cacheKey(tenantID, userID, query string) string {
	h := sha256.Sum256([]byte(query))
	return fmt.Sprintf("qc:%s:%s:%x", tenantID, userID, h[:8])
}
