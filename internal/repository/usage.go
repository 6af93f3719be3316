package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultline/core/internal/llm"
	"github.com/vaultline/core/internal/model"
)

// UsageRepo implements llm.UsageRecorder, upserting one row per
// tenant/user/model/provider/month.
type UsageRepo struct {
	pool *pgxpool.Pool
}

// NewUsageRepo creates a UsageRepo.
func NewUsageRepo(pool *pgxpool.Pool) *UsageRepo {
	return &UsageRepo{pool: pool}
}

var _ llm.UsageRecorder = (*UsageRepo)(nil)

// RecordUsage accumulates inputTokens/outputTokens into the current
// calendar month's row for (tenantID, userID, modelID, provider).
func (r *UsageRepo) RecordUsage(ctx context.Context, tenantID, userID, modelID, provider string, inputTokens, outputTokens int) error {
	month := time.Now().UTC().Format("2006-01")

	_, err := r.pool.Exec(ctx, `
		INSERT INTO token_usage_logs (tenant_id, user_id, model, provider, month, prompt_tokens, output_tokens, request_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, NOW())
		ON CONFLICT (tenant_id, user_id, model, provider, month)
		DO UPDATE SET
			prompt_tokens = token_usage_logs.prompt_tokens + EXCLUDED.prompt_tokens,
			output_tokens = token_usage_logs.output_tokens + EXCLUDED.output_tokens,
			request_count = token_usage_logs.request_count + 1,
			updated_at = NOW()
	`, tenantID, userID, modelID, provider, month, inputTokens, outputTokens)
	if err != nil {
		return fmt.Errorf("repository.RecordUsage: %w", err)
	}
	return nil
}

// MonthlyUsage returns tenantID's token usage for the given month
// ("2006-01"), one row per user/model/provider combination, for billing
// and dashboard surfaces.
func (r *UsageRepo) MonthlyUsage(ctx context.Context, tenantID, month string) ([]model.TokenUsageLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tenant_id, user_id, model, provider, month, prompt_tokens, output_tokens, request_count, updated_at
		FROM token_usage_logs
		WHERE tenant_id = $1 AND month = $2
		ORDER BY model, provider
	`, tenantID, month)
	if err != nil {
		return nil, fmt.Errorf("repository.MonthlyUsage: %w", err)
	}
	defer rows.Close()

	var records []model.TokenUsageLog
	for rows.Next() {
		var rec model.TokenUsageLog
		if err := rows.Scan(&rec.TenantID, &rec.UserID, &rec.Model, &rec.Provider, &rec.Month,
			&rec.PromptTokens, &rec.OutputTokens, &rec.RequestCount, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository.MonthlyUsage: scan: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
