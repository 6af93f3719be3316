// Package retrieval combines dense vector search with an in-memory lexical
// pass, fuses the two rankings, applies a permission filter, and hands the
// survivors to a cross-encoder reranker. Every stage degrades gracefully:
// a failed lexical index falls back to dense-only, a missing reranker
// returns the fused order unchanged.
package retrieval

import (
	"context"

	"github.com/vaultline/core/internal/model"
)

// Request is a single retrieval query, scoped to the caller's tenant by
// the caller (Retriever never sees a tenant ID it wasn't handed).
type Request struct {
	QueryText           string
	TopK                int
	DocumentPermissions []string // caller's allowed permission tags; empty means no filter
}

// Candidate is a chunk moving through the retrieval pipeline, accumulating
// scores as it passes each stage.
type Candidate struct {
	Chunk              model.Chunk
	Document           model.Document
	DenseScore         float64
	DenseRank          int
	BM25Score          float64
	BM25Rank           int
	FusedScore         float64
	RerankScore        float64
	RerankOriginalRank int
	Reranked           bool
}

// Result is the ordered response of a retrieval request.
type Result struct {
	Candidates []Candidate
}

// DenseSearcher abstracts the tenant's vector store for testability.
type DenseSearcher interface {
	Query(ctx context.Context, tenantID string, queryVec []float32, topK int) ([]model.RankedChunk, error)
}

// QueryEmbedder embeds a query string into the vector space used for
// dense search.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Reranker scores (query, candidate text) pairs with a cross-encoder or
// similar model. It returns one score per candidate, same order as input.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
}

const (
	defaultTopK    = 5
	maxTopK        = 20
	denseFetchMult = 4
	rrfK           = 60
)

// denseFetchSize is the number of candidates pulled from the vector store
// before lexical fusion, per spec: max(top_k * 4, 20).
func denseFetchSize(topK int) int {
	n := topK * denseFetchMult
	if n < 20 {
		n = 20
	}
	return n
}
