package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultline/core/internal/model"
	"github.com/vaultline/core/internal/prompt"
)

// PromptTemplateRepo implements prompt.TemplateRepository with pgx.
type PromptTemplateRepo struct {
	pool *pgxpool.Pool
}

// NewPromptTemplateRepo creates a PromptTemplateRepo.
func NewPromptTemplateRepo(pool *pgxpool.Pool) *PromptTemplateRepo {
	return &PromptTemplateRepo{pool: pool}
}

// Compile-time check.
var _ prompt.TemplateRepository = (*PromptTemplateRepo)(nil)

// ListActive returns active prompt_templates rows for (tenantID, name).
// An empty tenantID selects platform-wide (tenant_id IS NULL) rows.
func (r *PromptTemplateRepo) ListActive(ctx context.Context, tenantID, name string) ([]model.PromptTemplate, error) {
	var rows pgx.Rows
	var err error

	if tenantID == "" {
		rows, err = r.pool.Query(ctx, `
			SELECT id, tenant_id, name, version, body, weight, active, created_at
			FROM prompt_templates
			WHERE tenant_id IS NULL AND name = $1 AND active = true`, name)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT id, tenant_id, name, version, body, weight, active, created_at
			FROM prompt_templates
			WHERE tenant_id = $1 AND name = $2 AND active = true`, tenantID, name)
	}
	if err != nil {
		return nil, fmt.Errorf("repository.ListActive: %w", err)
	}
	defer rows.Close()

	var templates []model.PromptTemplate
	for rows.Next() {
		var t model.PromptTemplate
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Name, &t.Version, &t.Body, &t.Weight, &t.Active, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.ListActive: scan: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ListActive: %w", err)
	}
	return templates, nil
}
