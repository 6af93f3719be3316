package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultline/core/internal/model"
)

// QueryRepo persists the per-question record each /query call produces,
// separate from the evaluation scores that are attached to it later.
type QueryRepo struct {
	pool *pgxpool.Pool
}

// NewQueryRepo creates a QueryRepo.
func NewQueryRepo(pool *pgxpool.Pool) *QueryRepo {
	return &QueryRepo{pool: pool}
}

// Create inserts one query record.
func (r *QueryRepo) Create(ctx context.Context, q *model.Query) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO queries
			(id, tenant_id, user_id, query_text, confidence_score, outcome, chunks_used, latency_ms, model_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, q.ID, q.TenantID, q.UserID, q.QueryText, q.ConfidenceScore, string(q.Outcome),
		q.ChunksUsed, q.LatencyMs, q.ModelUsed, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.QueryCreate: %w", err)
	}
	return nil
}
