// Package authn verifies RS256-signed bearer JWTs against a cached JWKS
// document and extracts the tenant/user/role claims that bind a request to
// internal/tenant.Principal.
package authn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// JWKSStats is a point-in-time snapshot of cache activity for one issuer:
// hit and miss counts, the number of key-set refetches, and the time of the
// last fetch.
type JWKSStats struct {
	Hits      int64
	Misses    int64
	Refetches int64
	LastFetch time.Time
}

type jwksEntry struct {
	keys      map[string]jose.JSONWebKey
	fetchedAt time.Time
}

// JWKSCache fetches and caches a JSON Web Key Set keyed by the issuer's
// JWKS endpoint URL. A key lookup miss triggers exactly one refetch before
// giving up, so a single rotated key doesn't cause a refetch storm.
type JWKSCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	client  *http.Client
	entries map[string]*jwksEntry
	stats   map[string]*JWKSStats
	stopCh  chan struct{}
}

// NewJWKSCache creates a JWKSCache with the given TTL and starts a
// background cleanup goroutine, matching internal/cache's TTL+mutex+
// cleanup-goroutine pattern.
func NewJWKSCache(ttl time.Duration) *JWKSCache {
	c := &JWKSCache{
		ttl:     ttl,
		client:  &http.Client{Timeout: 10 * time.Second},
		entries: make(map[string]*jwksEntry),
		stats:   make(map[string]*JWKSStats),
		stopCh:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Stop halts the background cleanup goroutine.
func (c *JWKSCache) Stop() {
	close(c.stopCh)
}

// Stats returns a copy of the cache statistics for the given JWKS URL.
func (c *JWKSCache) Stats(jwksURL string) JWKSStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.stats[jwksURL]; ok {
		return *s
	}
	return JWKSStats{}
}

// Key returns the signing key for kid, fetching (or refetching once on a
// cache miss) the JWKS document at jwksURL as needed.
func (c *JWKSCache) Key(ctx context.Context, jwksURL, kid string) (jose.JSONWebKey, error) {
	key, hit, err := c.lookup(jwksURL, kid)
	if err != nil {
		return jose.JSONWebKey{}, err
	}
	if hit {
		c.recordHit(jwksURL)
		return key, nil
	}

	// Miss: refetch once, then give up.
	c.recordMiss(jwksURL)
	if err := c.refresh(ctx, jwksURL); err != nil {
		return jose.JSONWebKey{}, fmt.Errorf("authn.Key: refresh: %w", err)
	}
	c.recordRefetch(jwksURL)

	key, hit, err = c.lookup(jwksURL, kid)
	if err != nil {
		return jose.JSONWebKey{}, err
	}
	if !hit {
		return jose.JSONWebKey{}, fmt.Errorf("authn.Key: kid %q not found after refetch", kid)
	}
	return key, nil
}

func (c *JWKSCache) lookup(jwksURL, kid string) (jose.JSONWebKey, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[jwksURL]
	expired := ok && time.Since(entry.fetchedAt) > c.ttl
	c.mu.RUnlock()

	if !ok || expired {
		return jose.JSONWebKey{}, false, nil
	}
	key, ok := entry.keys[kid]
	return key, ok, nil
}

func (c *JWKSCache) refresh(ctx context.Context, jwksURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return fmt.Errorf("authn.refresh: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("authn.refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authn.refresh: jwks endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("authn.refresh: read body: %w", err)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("authn.refresh: unmarshal jwks: %w", err)
	}

	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, k := range set.Keys {
		keys[k.KeyID] = k
	}

	c.mu.Lock()
	c.entries[jwksURL] = &jwksEntry{keys: keys, fetchedAt: time.Now()}
	c.mu.Unlock()

	slog.Info("authn: jwks refreshed", "url", jwksURL, "keys", len(keys))
	return nil
}

func (c *JWKSCache) recordHit(url string)      { c.bumpStat(url, func(s *JWKSStats) { s.Hits++ }) }
func (c *JWKSCache) recordMiss(url string)     { c.bumpStat(url, func(s *JWKSStats) { s.Misses++ }) }
func (c *JWKSCache) recordRefetch(url string) {
	c.bumpStat(url, func(s *JWKSStats) { s.Refetches++; s.LastFetch = time.Now() })
}

func (c *JWKSCache) bumpStat(url string, fn func(*JWKSStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[url]
	if !ok {
		s = &JWKSStats{}
		c.stats[url] = s
	}
	fn(s)
}

// cleanup evicts JWKS documents that have been stale for more than 2*ttl,
// so a permanently-gone issuer doesn't pin memory forever.
func (c *JWKSCache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * c.ttl)
			c.mu.Lock()
			for url, entry := range c.entries {
				if entry.fetchedAt.Before(cutoff) {
					delete(c.entries, url)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}
