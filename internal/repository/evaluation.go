package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultline/core/internal/model"
)

// EvaluationRepo persists RAGAS-style judge scores and reads them back
// per tenant as an aggregate summary and a paged results list.
type EvaluationRepo struct {
	pool *pgxpool.Pool
}

// NewEvaluationRepo creates an EvaluationRepo.
func NewEvaluationRepo(pool *pgxpool.Pool) *EvaluationRepo {
	return &EvaluationRepo{pool: pool}
}

// Create inserts one evaluation result.
func (r *EvaluationRepo) Create(ctx context.Context, res *model.EvaluationResult) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO evaluation_results
			(id, tenant_id, query_id, faithfulness, answer_relevance, context_precision, composite, judge_model, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, res.ID, res.TenantID, res.QueryID, res.Faithfulness, res.AnswerRelevance,
		res.ContextPrecision, res.Composite, res.JudgeModel, nullableString(res.Error), res.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.EvaluationCreate: %w", err)
	}
	return nil
}

// Summary aggregates tenantID's evaluated queries, mirroring the original
// Python dashboard's GET /admin/evaluation/summary.
type EvaluationSummary struct {
	TotalQueries        int64
	EvaluatedQueries    int64
	AvgFaithfulness     *float64
	AvgAnswerRelevance  *float64
	AvgContextPrecision *float64
	AvgComposite        *float64
}

// Summary computes tenantID's aggregate evaluation metrics across all
// evaluated queries.
func (r *EvaluationRepo) Summary(ctx context.Context, tenantID string) (EvaluationSummary, error) {
	var s EvaluationSummary
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(composite),
			AVG(faithfulness),
			AVG(answer_relevance),
			AVG(context_precision),
			AVG(composite)
		FROM evaluation_results
		WHERE tenant_id = $1
	`, tenantID).Scan(&s.TotalQueries, &s.EvaluatedQueries, &s.AvgFaithfulness,
		&s.AvgAnswerRelevance, &s.AvgContextPrecision, &s.AvgComposite)
	if err != nil {
		return EvaluationSummary{}, fmt.Errorf("repository.EvaluationSummary: %w", err)
	}
	return s, nil
}

// ListResults returns tenantID's most recent evaluation results, newest
// first.
func (r *EvaluationRepo) ListResults(ctx context.Context, tenantID string, limit, offset int) ([]model.EvaluationResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, query_id, faithfulness, answer_relevance, context_precision, composite, judge_model, COALESCE(error, ''), created_at
		FROM evaluation_results
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("repository.EvaluationListResults: %w", err)
	}
	defer rows.Close()

	var results []model.EvaluationResult
	for rows.Next() {
		var res model.EvaluationResult
		if err := rows.Scan(&res.ID, &res.TenantID, &res.QueryID, &res.Faithfulness,
			&res.AnswerRelevance, &res.ContextPrecision, &res.Composite, &res.JudgeModel,
			&res.Error, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.EvaluationListResults: scan: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
