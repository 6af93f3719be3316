package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/vaultline/core/internal/model"
)

// NamespacedStore keeps every tenant's chunks in one shared table,
// partitioned logically by a tenant_id column that every query filters on.
// This is the single-table alternative to CollectionStore, which both
// binaries use: cheaper to operate than a table per tenant, at the cost of
// every query needing the tenant_id predicate to be correct.
type NamespacedStore struct {
	pool *pgxpool.Pool
}

// NewNamespacedStore wraps pool.
func NewNamespacedStore(pool *pgxpool.Pool) *NamespacedStore {
	return &NamespacedStore{pool: pool}
}

// Upsert stores chunks with their embedding vectors using pgx batching.
func (s *NamespacedStore) Upsert(ctx context.Context, tenantID string, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("vectorstore.Upsert: chunk count (%d) != vector count (%d)", len(chunks), len(vectors))
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()

	for i, c := range chunks {
		embedding := pgvector.NewVector(vectors[i])
		batch.Queue(`
			INSERT INTO chunks (id, tenant_id, document_id, chunk_index, content, char_count, page_number, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding`,
			c.ID, tenantID, c.DocumentID, c.Index, c.Content, c.CharCount, c.PageNumber, embedding, now,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("vectorstore.Upsert: chunk %d: %w", i, err)
		}
	}
	return nil
}

// Query runs a cosine-distance nearest-neighbor search over chunks owned
// by tenantID.
func (s *NamespacedStore) Query(ctx context.Context, tenantID string, queryVec []float32, topK int) ([]model.RankedChunk, error) {
	embedding := pgvector.NewVector(queryVec)

	rows, err := s.pool.Query(ctx, `
		SELECT
			c.id, c.tenant_id, c.document_id, c.chunk_index, c.content, c.char_count, c.page_number, c.created_at,
			1 - (c.embedding <=> $1::vector) AS dense_score,
			d.id, d.tenant_id, d.filename, d.mime_type, d.status, d.created_at
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.tenant_id = $2 AND d.status != 'deleted'
		ORDER BY c.embedding <=> $1::vector
		LIMIT $3`,
		embedding, tenantID, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("vectorstore.Query: %w", err)
	}
	defer rows.Close()

	var results []model.RankedChunk
	for rows.Next() {
		var rc model.RankedChunk
		if err := rows.Scan(
			&rc.Chunk.ID, &rc.Chunk.TenantID, &rc.Chunk.DocumentID, &rc.Chunk.Index,
			&rc.Chunk.Content, &rc.Chunk.CharCount, &rc.Chunk.PageNumber, &rc.Chunk.CreatedAt,
			&rc.DenseScore,
			&rc.Document.ID, &rc.Document.TenantID, &rc.Document.Filename,
			&rc.Document.MimeType, &rc.Document.Status, &rc.Document.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("vectorstore.Query: scan: %w", err)
		}
		results = append(results, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore.Query: %w", err)
	}
	return results, nil
}

// DeleteByDocument removes every chunk belonging to a document, scoped to
// tenantID so a cross-tenant document ID collision can't delete the wrong
// rows.
func (s *NamespacedStore) DeleteByDocument(ctx context.Context, tenantID, documentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE tenant_id = $1 AND document_id = $2`, tenantID, documentID)
	if err != nil {
		return fmt.Errorf("vectorstore.DeleteByDocument: %w", err)
	}
	return nil
}

var _ Store = (*NamespacedStore)(nil)
