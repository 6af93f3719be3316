// Package vectorstore persists chunk embeddings and serves nearest-
// neighbor search, always scoped to a tenant namespace so one tenant's
// vectors can never surface in another tenant's retrieval.
package vectorstore

import (
	"context"

	"github.com/vaultline/core/internal/model"
)

// Store is the interface the retrieval and ingestion pipelines depend on.
// Every method takes tenantID explicitly rather than trusting a caller-set
// filter, so a missing WHERE clause fails loudly instead of leaking rows.
type Store interface {
	Upsert(ctx context.Context, tenantID string, chunks []model.Chunk, vectors [][]float32) error
	Query(ctx context.Context, tenantID string, queryVec []float32, topK int) ([]model.RankedChunk, error)
	DeleteByDocument(ctx context.Context, tenantID, documentID string) error
}
