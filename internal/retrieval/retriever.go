package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Retriever runs the hybrid dense + lexical + rerank pipeline for a tenant.
type Retriever struct {
	embedder QueryEmbedder
	dense    DenseSearcher
	reranker Reranker // nil disables the rerank stage
}

// New creates a Retriever. reranker may be nil, in which case results stop
// at the fused RRF order.
func New(embedder QueryEmbedder, dense DenseSearcher, reranker Reranker) *Retriever {
	return &Retriever{embedder: embedder, dense: dense, reranker: reranker}
}

// Retrieve runs the full pipeline for req, scoped to tenantID.
func (r *Retriever) Retrieve(ctx context.Context, tenantID string, req Request) (*Result, error) {
	if req.QueryText == "" {
		return nil, fmt.Errorf("retrieval.Retrieve: query is empty")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	queryVec, err := r.embedder.EmbedQuery(ctx, req.QueryText)
	if err != nil {
		return nil, fmt.Errorf("retrieval.Retrieve: embed query: %w", err)
	}

	fetchN := denseFetchSize(topK)
	ranked, err := r.dense.Query(ctx, tenantID, queryVec, fetchN)
	if err != nil {
		return nil, fmt.Errorf("retrieval.Retrieve: dense search: %w", err)
	}

	if len(ranked) == 0 {
		return &Result{Candidates: []Candidate{}}, nil
	}

	candidates := make([]Candidate, len(ranked))
	texts := make([]string, len(ranked))
	for i, rc := range ranked {
		candidates[i] = Candidate{
			Chunk:      rc.Chunk,
			Document:   rc.Document,
			DenseScore: rc.DenseScore,
			DenseRank:  i + 1,
		}
		texts[i] = rc.Chunk.Content
	}

	// Lexical fetch: build an in-memory BM25 index over the dense
	// candidates and rank them against the query. A corpus with no
	// tokenizable content degrades to dense-only, per spec.
	if idx, err := newBM25Index(texts); err == nil {
		bm25Results := idx.score(req.QueryText)
		candidates = reciprocalRankFusion(candidates, bm25Results)
	} else {
		slog.Warn("retrieval: bm25 index build failed, degrading to dense-only", "error", err, "tenant_id", tenantID)
		for i := range candidates {
			candidates[i].FusedScore = candidates[i].DenseScore
		}
	}

	blendSecondarySignals(candidates, time.Now().UTC())

	candidates = permissionFilter(candidates, req.DocumentPermissions)

	candidates = r.rerank(ctx, req.QueryText, candidates, topK)

	limit := topK
	if limit > 5 {
		limit = 5
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}

	return &Result{Candidates: candidates[:limit]}, nil
}

// rerank sends candidates through the cross-encoder reranker, if any,
// returning the candidates re-sorted by rerank score. On any failure or a
// nil reranker, candidates are returned unchanged in fused order.
func (r *Retriever) rerank(ctx context.Context, query string, candidates []Candidate, topK int) []Candidate {
	if r.reranker == nil || len(candidates) == 0 {
		return candidates
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Chunk.Content
	}

	scores, err := r.reranker.Rerank(ctx, query, texts)
	if err != nil || len(scores) != len(candidates) {
		slog.Warn("retrieval: reranker unavailable, returning fused order", "error", err)
		return candidates
	}

	for i := range candidates {
		candidates[i].RerankScore = scores[i]
		candidates[i].RerankOriginalRank = i + 1
		candidates[i].Reranked = true
	}

	sortByRerankScore(candidates)
	return candidates
}
