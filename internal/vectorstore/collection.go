package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/vaultline/core/internal/model"
)

// CollectionStore gives each tenant its own chunks table instead of a
// shared one, trading operational overhead (one table per tenant) for
// isolation that holds even if a query forgets its tenant_id predicate —
// there is no predicate to forget, the table itself is the boundary.
type CollectionStore struct {
	pool *pgxpool.Pool
}

// NewCollectionStore wraps pool.
func NewCollectionStore(pool *pgxpool.Pool) *CollectionStore {
	return &CollectionStore{pool: pool}
}

// tableName derives a tenant's table name from a hash of its ID rather
// than the ID itself, so an adversarial tenant ID can never be used to
// smuggle SQL into an identifier position.
func tableName(tenantID string) string {
	h := sha256.Sum256([]byte(tenantID))
	return "chunks_" + hex.EncodeToString(h[:8])
}

func (s *CollectionStore) ensureTable(ctx context.Context, table string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			char_count INT NOT NULL,
			page_number INT,
			embedding vector(768) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, table))
	if err != nil {
		return fmt.Errorf("vectorstore.ensureTable: %w", err)
	}
	return nil
}

// Upsert stores chunks in tenantID's dedicated table, creating it on
// first use.
func (s *CollectionStore) Upsert(ctx context.Context, tenantID string, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("vectorstore.Upsert: chunk count (%d) != vector count (%d)", len(chunks), len(vectors))
	}

	table := tableName(tenantID)
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	insert := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, chunk_index, content, char_count, page_number, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding`, table)

	for i, c := range chunks {
		embedding := pgvector.NewVector(vectors[i])
		batch.Queue(insert, c.ID, c.DocumentID, c.Index, c.Content, c.CharCount, c.PageNumber, embedding, now)
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

// Query runs nearest-neighbor search within tenantID's own table.
func (s *CollectionStore) Query(ctx context.Context, tenantID string, queryVec []float32, topK int) ([]model.RankedChunk, error) {
	table := tableName(tenantID)
	embedding := pgvector.NewVector(queryVec)

	query := fmt.Sprintf(`
		SELECT
			c.id, c.document_id, c.chunk_index, c.content, c.char_count, c.page_number, c.created_at,
			1 - (c.embedding <=> $1::vector) AS dense_score,
			d.id, d.tenant_id, d.filename, d.mime_type, d.status, d.created_at
		FROM %s c
		JOIN documents d ON d.id = c.document_id
		WHERE d.tenant_id = $2 AND d.status != 'deleted'
		ORDER BY c.embedding <=> $1::vector
		LIMIT $3`, table)

	rows, err := s.pool.Query(ctx, query, embedding, tenantID, topK)
	if err != nil {
		return nil, fmt.Errorf("vectorstore.Query: %w", err)
	}
	defer rows.Close()

	var results []model.RankedChunk
	for rows.Next() {
		var rc model.RankedChunk
		rc.Chunk.TenantID = tenantID
		if err := rows.Scan(
			&rc.Chunk.ID, &rc.Chunk.DocumentID, &rc.Chunk.Index,
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

// DeleteByDocument removes every chunk for a document from tenantID's table.
func (s *CollectionStore) DeleteByDocument(ctx context.Context, tenantID, documentID string) error {
	table := tableName(tenantID)
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, table), documentID)
	if err != nil {
		return fmt.Errorf("vectorstore.DeleteByDocument: %w", err)
	}
	return nil
}

var _ Store = (*CollectionStore)(nil)
