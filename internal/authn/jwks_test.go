package authn

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
)

func testJWKSServer(t *testing.T, kid string, pub *rsa.PublicKey) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
		{Key: pub, KeyID: kid, Algorithm: "RS256", Use: "sig"},
	}}
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestJWKSCache_FetchAndHit(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv, hits := testJWKSServer(t, "kid-1", &key.PublicKey)

	c := NewJWKSCache(1 * time.Minute)
	defer c.Stop()

	if _, err := c.Key(context.Background(), srv.URL, "kid-1"); err != nil {
		t.Fatalf("first Key: %v", err)
	}
	if _, err := c.Key(context.Background(), srv.URL, "kid-1"); err != nil {
		t.Fatalf("second Key: %v", err)
	}

	if got := atomic.LoadInt32(hits); got != 1 {
		t.Fatalf("expected exactly one fetch, got %d", got)
	}

	stats := c.Stats(srv.URL)
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestJWKSCache_RefetchOnceOnUnknownKid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv, hits := testJWKSServer(t, "kid-1", &key.PublicKey)

	c := NewJWKSCache(1 * time.Minute)
	defer c.Stop()

	if _, err := c.Key(context.Background(), srv.URL, "unknown-kid"); err == nil {
		t.Fatal("expected error for unknown kid")
	}

	if got := atomic.LoadInt32(hits); got != 1 {
		t.Fatalf("expected exactly one refetch attempt, got %d", got)
	}
}

func TestJWKSCache_ExpiresAfterTTL(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv, hits := testJWKSServer(t, "kid-1", &key.PublicKey)

	c := NewJWKSCache(10 * time.Millisecond)
	defer c.Stop()

	if _, err := c.Key(context.Background(), srv.URL, "kid-1"); err != nil {
		t.Fatalf("first Key: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := c.Key(context.Background(), srv.URL, "kid-1"); err != nil {
		t.Fatalf("second Key after expiry: %v", err)
	}

	if got := atomic.LoadInt32(hits); got != 2 {
		t.Fatalf("expected a refetch after TTL expiry, got %d fetches", got)
	}
}
