// Package embedding batches document chunks into a Vertex AI embedding
// client with bounded concurrency and retry, then L2-normalizes the
// resulting vectors before they reach the vector store.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vaultline/core/internal/model"
)

// Dimensions is the expected embedding vector width for the configured
// Vertex AI model (text-embedding-004).
const Dimensions = 768

// Client abstracts the embedding backend. Document and query text use
// different task types under the hood, which text-embedding-004 treats as
// distinct vector spaces optimized for asymmetric retrieval.
type Client interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Pipeline batches, parallelizes and retries embedding calls.
type Pipeline struct {
	client      Client
	batchSize   int
	concurrency int
	maxRetries  int
	baseDelay   time.Duration
}

// New builds a Pipeline. batchSize<=0 defaults to 100, concurrency<=0
// defaults to 4, maxRetries<0 defaults to 3.
func New(client Client, batchSize, concurrency, maxRetries int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 100
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if maxRetries < 0 {
		maxRetries = 3
	}
	return &Pipeline{client: client, batchSize: batchSize, concurrency: concurrency, maxRetries: maxRetries, baseDelay: 2 * time.Second}
}

// SetBaseDelay overrides the retry backoff base (default 2s). Intended for
// tests that need to exercise the retry path without waiting real seconds.
func (p *Pipeline) SetBaseDelay(d time.Duration) {
	p.baseDelay = d
}

// EmbedChunks embeds the content of each chunk, preserving order, and
// L2-normalizes every resulting vector.
func (p *Pipeline) EmbedChunks(ctx context.Context, chunks []model.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return p.EmbedTexts(ctx, texts)
}

// EmbedTexts embeds texts in batches of p.batchSize, running up to
// p.concurrency batches at once.
func (p *Pipeline) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	numBatches := (len(texts) + p.batchSize - 1) / p.batchSize
	results := make([][][]float32, numBatches)

	sem := semaphore.NewWeighted(int64(p.concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for b := 0; b < numBatches; b++ {
		b := b
		start := b * p.batchSize
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			vectors, err := p.embedWithRetry(gctx, batch)
			if err != nil {
				return fmt.Errorf("embedding.EmbedTexts: batch %d: %w", b, err)
			}
			for i, v := range vectors {
				vectors[i] = l2Normalize(v)
			}
			results[b] = vectors
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := make([][]float32, 0, len(texts))
	for _, batch := range results {
		all = append(all, batch...)
	}
	if len(all) != len(texts) {
		return nil, fmt.Errorf("embedding.EmbedTexts: got %d vectors for %d texts", len(all), len(texts))
	}
	return all, nil
}

// embedWithRetry calls the client up to maxRetries+1 times, backing off
// 2*2^n seconds between attempts, capped at 60s.
func (p *Pipeline) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		vectors, err := p.client.EmbedDocuments(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if attempt == p.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.backoffDelay(attempt)):
		}
	}
	return nil, fmt.Errorf("exhausted %d attempts: %w", p.maxRetries+1, lastErr)
}

func (p *Pipeline) backoffDelay(attempt int) time.Duration {
	return backoffDelay(attempt, p.baseDelay)
}

// backoffDelay computes base*2^attempt, capped at 60s. With the default
// base of 2s this is the spec's 2*2^n backoff schedule.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	const ceiling = 60 * time.Second
	d := base * time.Duration(uint64(1)<<uint(attempt))
	if d > ceiling {
		d = ceiling
	}
	return d
}

func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
