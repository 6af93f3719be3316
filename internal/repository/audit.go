package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultline/core/internal/audit"
	"github.com/vaultline/core/internal/model"
)

// AuditRepo implements audit.Repository and audit.RangeRepository with pgx.
// The audit_logs table MUST be configured with a storage role that denies
// UPDATE and DELETE, since this package never issues either.
type AuditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepo creates an AuditRepo.
func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

var (
	_ audit.Repository      = (*AuditRepo)(nil)
	_ audit.RangeRepository = (*AuditRepo)(nil)
)

// Create inserts a new audit log entry.
func (r *AuditRepo) Create(ctx context.Context, entry *model.AuditLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, tenant_id, actor_id, action, resource_id, details, prev_hash, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.TenantID, entry.ActorID, entry.Action, entry.ResourceID,
		entry.Details, entry.PrevHash, entry.Hash, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository.AuditCreate: %w", err)
	}
	return nil
}

// LatestHash returns the Hash of tenantID's most recent audit entry, or ""
// if the tenant has none yet (the chain's genesis state).
func (r *AuditRepo) LatestHash(ctx context.Context, tenantID string) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, `
		SELECT hash FROM audit_logs WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT 1`,
		tenantID,
	).Scan(&hash)
	if err != nil {
		return "", nil
	}
	return hash, nil
}

// Range returns tenantID's audit entries between startID and endID
// (inclusive) ordered by creation time.
func (r *AuditRepo) Range(ctx context.Context, tenantID, startID, endID string) ([]model.AuditLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, actor_id, action, resource_id, details, prev_hash, hash, created_at
		FROM audit_logs
		WHERE tenant_id = $1
		  AND created_at >= (SELECT created_at FROM audit_logs WHERE id = $2)
		  AND created_at <= (SELECT created_at FROM audit_logs WHERE id = $3)
		ORDER BY created_at ASC`,
		tenantID, startID, endID)
	if err != nil {
		return nil, fmt.Errorf("repository.AuditRange: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditLog
	for rows.Next() {
		var e model.AuditLog
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorID, &e.Action, &e.ResourceID,
			&e.Details, &e.PrevHash, &e.Hash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.AuditRange: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.AuditRange: %w", err)
	}
	return entries, nil
}

// List returns paginated audit logs for a tenant matching filters, for the
// audit-review surface (not part of the public query/ingest API, but kept
// for operational/compliance inspection).
type ListFilter struct {
	TenantID string
	Action   string
	Limit    int
	Offset   int
}

// List returns entries matching f, newest first.
func (r *AuditRepo) List(ctx context.Context, f ListFilter) ([]model.AuditLog, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.TenantID == "" {
		return nil, 0, fmt.Errorf("repository.AuditList: tenant id is required")
	}

	query := `SELECT id, tenant_id, actor_id, action, resource_id, details, prev_hash, hash, created_at FROM audit_logs WHERE tenant_id = $1`
	countQuery := `SELECT count(*) FROM audit_logs WHERE tenant_id = $1`
	args := []interface{}{f.TenantID}
	argIdx := 2

	if f.Action != "" {
		clause := fmt.Sprintf(` AND action = $%d`, argIdx)
		query += clause
		countQuery += clause
		args = append(args, f.Action)
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository.AuditList: count: %w", err)
	}

	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.AuditList: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditLog
	for rows.Next() {
		var e model.AuditLog
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorID, &e.Action, &e.ResourceID,
			&e.Details, &e.PrevHash, &e.Hash, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("repository.AuditList: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, total, nil
}
