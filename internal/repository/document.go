package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultline/core/internal/ingest"
	"github.com/vaultline/core/internal/model"
	"github.com/vaultline/core/internal/worker"
)

// DocumentRepo implements ingest.DocumentRepository and
// worker.DocumentRepository/worker.ScannerRepository with pgx.
type DocumentRepo struct {
	pool *pgxpool.Pool
}

// NewDocumentRepo creates a DocumentRepo.
func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

var (
	_ ingest.DocumentRepository  = (*DocumentRepo)(nil)
	_ worker.DocumentRepository  = (*DocumentRepo)(nil)
	_ worker.ScannerRepository   = (*DocumentRepo)(nil)
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint
// breach, distinguishing a duplicate-checksum race from any other
// insert failure.
const uniqueViolation = "23505"

// Create inserts a new document row. A concurrent insert racing on the
// same (tenant_id, md5_checksum) unique constraint surfaces as
// ingest.ErrDuplicateKey so the caller can resolve the race by looking
// the winning row back up.
func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (
			id, tenant_id, uploaded_by, filename, mime_type, size_bytes,
			storage_uri, md5_checksum, sha256_checksum, status, chunk_count,
			metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`,
		doc.ID, doc.TenantID, doc.UploadedBy, doc.Filename, doc.MimeType, doc.SizeBytes,
		doc.StorageURI, doc.MD5Checksum, doc.SHA256Sum, string(doc.Status), doc.ChunkCount,
		nullableJSON(doc.Metadata), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ingest.ErrDuplicateKey
		}
		return fmt.Errorf("repository.Create: %w", err)
	}
	return nil
}

// FindByChecksum looks up a tenant's existing document by MD5 checksum,
// used both for the pre-insert duplicate probe and to resolve a
// duplicate-insert race after the fact.
func (r *DocumentRepo) FindByChecksum(ctx context.Context, tenantID, md5Checksum string) (*model.Document, error) {
	return r.scanOne(ctx, `
		SELECT id, tenant_id, uploaded_by, filename, mime_type, size_bytes,
			storage_uri, md5_checksum, sha256_checksum, extracted_text, status,
			failure_reason, chunk_count, metadata, deleted_at, created_at, updated_at
		FROM documents WHERE tenant_id = $1 AND md5_checksum = $2 AND deleted_at IS NULL`,
		tenantID, md5Checksum,
	)
}

// GetByID fetches one tenant's document by id. Returns an error (not a
// nil, nil) when the document doesn't exist or belongs to a different
// tenant, which worker.Processor treats as a skip-this-task signal.
func (r *DocumentRepo) GetByID(ctx context.Context, tenantID, documentID string) (*model.Document, error) {
	return r.scanOne(ctx, `
		SELECT id, tenant_id, uploaded_by, filename, mime_type, size_bytes,
			storage_uri, md5_checksum, sha256_checksum, extracted_text, status,
			failure_reason, chunk_count, metadata, deleted_at, created_at, updated_at
		FROM documents WHERE tenant_id = $1 AND id = $2`,
		tenantID, documentID,
	)
}

func (r *DocumentRepo) scanOne(ctx context.Context, query string, args ...interface{}) (*model.Document, error) {
	doc := &model.Document{}
	var status string
	var metaJSON []byte

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&doc.ID, &doc.TenantID, &doc.UploadedBy, &doc.Filename, &doc.MimeType, &doc.SizeBytes,
		&doc.StorageURI, &doc.MD5Checksum, &doc.SHA256Sum, &doc.ExtractedText, &status,
		&doc.FailureReason, &doc.ChunkCount, &metaJSON, &doc.DeletedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("repository.scanOne: %w", err)
	}
	doc.Status = model.DocumentStatus(status)
	if metaJSON != nil {
		doc.Metadata = json.RawMessage(metaJSON)
	}
	return doc, nil
}

// ListOpts paginates a tenant's document listing.
type ListOpts struct {
	Limit  int
	Offset int
}

// ListByTenant returns a page of a tenant's non-deleted documents plus
// the total matching count.
func (r *DocumentRepo) ListByTenant(ctx context.Context, tenantID string, opts ListOpts) ([]model.Document, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM documents WHERE tenant_id = $1 AND deleted_at IS NULL`,
		tenantID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository.ListByTenant: count: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, uploaded_by, filename, mime_type, size_bytes,
			storage_uri, status, chunk_count, created_at, updated_at
		FROM documents WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.ListByTenant: query: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		var status string
		if err := rows.Scan(
			&d.ID, &d.TenantID, &d.UploadedBy, &d.Filename, &d.MimeType, &d.SizeBytes,
			&d.StorageURI, &status, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("repository.ListByTenant: scan: %w", err)
		}
		d.Status = model.DocumentStatus(status)
		docs = append(docs, d)
	}
	return docs, total, nil
}

// UpdateStatus transitions a document's lifecycle status, recording a
// failure reason when status is model.StatusFailed (nil otherwise).
func (r *DocumentRepo) UpdateStatus(ctx context.Context, tenantID, documentID string, status model.DocumentStatus, failureReason *string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE documents SET status = $1, failure_reason = $2, updated_at = $3 WHERE tenant_id = $4 AND id = $5`,
		string(status), failureReason, time.Now().UTC(), tenantID, documentID,
	)
	if err != nil {
		return fmt.Errorf("repository.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository.UpdateStatus: no document %s for tenant %s", documentID, tenantID)
	}
	return nil
}

// UpdateChunkCount records how many chunks a completed processing run
// produced.
func (r *DocumentRepo) UpdateChunkCount(ctx context.Context, tenantID, documentID string, count int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE documents SET chunk_count = $1, updated_at = $2 WHERE tenant_id = $3 AND id = $4`,
		count, time.Now().UTC(), tenantID, documentID,
	)
	if err != nil {
		return fmt.Errorf("repository.UpdateChunkCount: %w", err)
	}
	return nil
}

// FindStalePending finds documents still pending after olderThan,
// across all tenants, for the worker package's stuck-task scanner.
func (r *DocumentRepo) FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]model.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, mime_type, storage_uri, status, created_at, updated_at
		FROM documents
		WHERE status = $1 AND updated_at < $2 AND deleted_at IS NULL
		ORDER BY updated_at ASC LIMIT $3`,
		string(model.StatusPending), olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.FindStalePending: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		var status string
		if err := rows.Scan(&d.ID, &d.TenantID, &d.MimeType, &d.StorageURI, &status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository.FindStalePending: scan: %w", err)
		}
		d.Status = model.DocumentStatus(status)
		docs = append(docs, d)
	}
	return docs, nil
}

// SoftDelete marks a document deleted without removing its row,
// matching the audit trail's append-only retention requirement.
func (r *DocumentRepo) SoftDelete(ctx context.Context, tenantID, documentID string) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx,
		`UPDATE documents SET status = $1, deleted_at = $2, updated_at = $2 WHERE tenant_id = $3 AND id = $4 AND deleted_at IS NULL`,
		string(model.StatusDeleted), now, tenantID, documentID,
	)
	if err != nil {
		return fmt.Errorf("repository.SoftDelete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository.SoftDelete: no document %s for tenant %s", documentID, tenantID)
	}
	return nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if raw == nil {
		return nil
	}
	return []byte(raw)
}
