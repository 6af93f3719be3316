// Package ingest orchestrates the nine-step document upload pipeline:
// name/size/type validation, streaming upload, duplicate detection,
// persistence and async-task enqueue. It owns none of those concerns
// itself — it sequences the collaborators in internal/objectstore,
// internal/audit and internal/worker behind small interfaces so each can
// be swapped or stubbed independently.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/vaultline/core/internal/audit"
	"github.com/vaultline/core/internal/model"
	"github.com/vaultline/core/internal/objectstore"
)

// Sentinel failure modes, matching the orchestrator's typed outcomes.
var (
	ErrInvalidName     = errors.New("ingest: invalid document name")
	ErrPayloadTooLarge = errors.New("ingest: payload exceeds maximum size")
	ErrMissing         = errors.New("ingest: empty upload stream")
	ErrUnsupportedType = errors.New("ingest: unsupported file type")
	ErrStorageFailure  = errors.New("ingest: storage failure")
	ErrInternal        = errors.New("ingest: internal error")

	// ErrDuplicateKey is returned by DocumentRepository.Create when the
	// relational (tenant_id, md5) unique constraint rejects a row the
	// duplicate probe missed due to a race.
	ErrDuplicateKey = errors.New("ingest: duplicate key")
)

// DuplicateError reports that a document with the same content already
// exists for the tenant.
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("ingest: duplicate of existing document %s", e.ExistingID)
}

const maxNameChars = 255

var forbiddenNameChars = map[rune]bool{
	'/': true, '\\': true, '<': true, '>': true,
	':': true, '"': true, '|': true, '?': true, '*': true,
}

// Uploader streams document bytes into object storage. It is the subset
// of objectstore.Store the orchestrator needs.
type Uploader interface {
	Upload(ctx context.Context, bucket, object string, r io.Reader, contentType string, totalBytes int64, progress chan<- objectstore.Progress) (objectstore.UploadResult, error)
	Delete(ctx context.Context, bucket, object string) error
}

// DocumentRepository persists and probes document rows, tenant-scoped.
type DocumentRepository interface {
	FindByChecksum(ctx context.Context, tenantID, md5 string) (*model.Document, error)
	Create(ctx context.Context, doc *model.Document) error
}

// Task is the payload handed to the async worker runtime.
type Task struct {
	DocumentID  string
	TenantID    string
	StorageKey  string
	ContentType string
}

// Publisher enqueues a processing task. Publish failure is treated as
// non-fatal by the orchestrator; the worker's stuck-task scanner
// recovers documents whose enqueue never landed.
type Publisher interface {
	Enqueue(ctx context.Context, task Task) error
}

// AuditLogger is the subset of *audit.Logger the orchestrator depends on.
type AuditLogger interface {
	Log(ctx context.Context, e audit.Entry) error
}

// Result is returned on a successful ingest.
type Result struct {
	DocumentID       string
	Status           model.DocumentStatus
	Checksum         string
	ProcessingStatus string
	StorageKey       string
	SizeBytes        int64
	MimeType         string
	CreatedAt        time.Time
}

// Orchestrator runs the upload pipeline for one tenant's documents.
type Orchestrator struct {
	store     Uploader
	repo      DocumentRepository
	audit     AuditLogger
	publisher Publisher
	bucket    string
}

// New builds an Orchestrator.
func New(store Uploader, repo DocumentRepository, auditLogger AuditLogger, publisher Publisher, bucket string) *Orchestrator {
	return &Orchestrator{store: store, repo: repo, audit: auditLogger, publisher: publisher, bucket: bucket}
}

// Ingest runs the nine-step pipeline for one uploaded file. declaredSize
// is the client-supplied content-length hint (used for early rejection
// before any bytes are read); it may be -1 if unknown.
func (o *Orchestrator) Ingest(ctx context.Context, tenantID, uploadedBy, filename string, declaredSize int64, r io.Reader) (*Result, error) {
	// Step 1: name validation.
	name := strings.TrimSpace(filename)
	if err := validateName(name); err != nil {
		return nil, err
	}

	// Step 2: early size rejection, before any body bytes are read.
	if declaredSize > model.MaxFileSizeBytes {
		return nil, ErrPayloadTooLarge
	}

	o.logAudit(ctx, tenantID, uploadedBy, "document.upload_attempt", "", map[string]interface{}{"filename": name})

	// Step 3: magic-byte sniff, rewinding the stream for the upload step.
	header := make([]byte, 8)
	n, _ := io.ReadFull(r, header)
	header = header[:n]

	sniffed, ok, err := sniff(header, r, strings.ToLower(filepath.Ext(name)))
	if err != nil {
		o.logAudit(ctx, tenantID, uploadedBy, "document.upload_failed", "", map[string]interface{}{"filename": name, "error": err.Error()})
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		o.logAudit(ctx, tenantID, uploadedBy, "document.upload_failed", "", map[string]interface{}{"filename": name, "reason": "unsupported_type"})
		return nil, ErrUnsupportedType
	}
	mimeType := sniffed.mimeType
	r = sniffed.body

	// Step 4: allowlist check.
	if !model.AllowedMimeTypes[mimeType] {
		o.logAudit(ctx, tenantID, uploadedBy, "document.upload_failed", "", map[string]interface{}{"filename": name, "reason": "unsupported_type"})
		return nil, ErrUnsupportedType
	}

	docID := uuid.New().String()
	ext := strings.ToLower(filepath.Ext(name))
	objectKey := fmt.Sprintf("tenants/%s/documents/%s%s", tenantID, docID, ext)

	// Step 5: streaming upload.
	uploaded, err := o.store.Upload(ctx, o.bucket, objectKey, r, mimeType, declaredSize, nil)
	if err != nil {
		o.logAudit(ctx, tenantID, uploadedBy, "document.upload_failed", "", map[string]interface{}{"filename": name, "error": err.Error()})
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if uploaded.SizeBytes == 0 {
		_ = o.store.Delete(ctx, o.bucket, objectKey)
		return nil, ErrMissing
	}

	// Step 6: duplicate probe (early-exit optimization; the unique
	// constraint in step 7 is the authoritative guard).
	if existing, err := o.repo.FindByChecksum(ctx, tenantID, uploaded.MD5Checksum); err == nil && existing != nil && existing.DeletedAt == nil {
		o.logAudit(ctx, tenantID, uploadedBy, "document.duplicate_rejected", existing.ID, map[string]interface{}{"md5": uploaded.MD5Checksum})
		_ = o.store.Delete(ctx, o.bucket, objectKey) // best-effort cleanup
		return nil, &DuplicateError{ExistingID: existing.ID}
	}

	// Step 7: persist document row.
	now := time.Now().UTC()
	doc := &model.Document{
		ID:          docID,
		TenantID:    tenantID,
		UploadedBy:  uploadedBy,
		Filename:    name,
		MimeType:    mimeType,
		SizeBytes:   uploaded.SizeBytes,
		StorageURI:  uploaded.StorageURI,
		MD5Checksum: uploaded.MD5Checksum,
		SHA256Sum:   uploaded.SHA256Sum,
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.repo.Create(ctx, doc); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			_ = o.store.Delete(ctx, o.bucket, objectKey)
			existing, lookupErr := o.repo.FindByChecksum(ctx, tenantID, uploaded.MD5Checksum)
			if lookupErr == nil && existing != nil {
				o.logAudit(ctx, tenantID, uploadedBy, "document.duplicate_rejected", existing.ID, nil)
				return nil, &DuplicateError{ExistingID: existing.ID}
			}
			return nil, &DuplicateError{}
		}
		o.logAudit(ctx, tenantID, uploadedBy, "document.upload_failed", docID, map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	// Step 8: audit success.
	o.logAudit(ctx, tenantID, uploadedBy, "document.uploaded", docID, map[string]interface{}{
		"size_bytes": uploaded.SizeBytes,
		"md5":        uploaded.MD5Checksum,
		"sha256":     uploaded.SHA256Sum,
		"mime_type":  mimeType,
	})

	// Step 9: enqueue async task. Non-fatal: the stuck-task scanner
	// recovers any document that never made it onto the queue.
	if o.publisher != nil {
		if err := o.publisher.Enqueue(ctx, Task{DocumentID: docID, TenantID: tenantID, StorageKey: objectKey, ContentType: mimeType}); err != nil {
			o.logAudit(ctx, tenantID, uploadedBy, "document.queue_failed", docID, map[string]interface{}{"error": err.Error()})
		}
	}

	return &Result{
		DocumentID:       docID,
		Status:           model.StatusPending,
		Checksum:         uploaded.MD5Checksum,
		ProcessingStatus: "queued",
		StorageKey:       objectKey,
		SizeBytes:        uploaded.SizeBytes,
		MimeType:         mimeType,
		CreatedAt:        now,
	}, nil
}

func (o *Orchestrator) logAudit(ctx context.Context, tenantID, actorID, action, resourceID string, details map[string]interface{}) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Log(ctx, audit.Entry{TenantID: tenantID, ActorID: actorID, Action: action, ResourceID: resourceID, Details: details}); err != nil {
		// Audit write failure never blocks the ingestion response; the
		// error is discarded here.
		_ = err
	}
}

func validateName(name string) error {
	if name == "" || len(name) > maxNameChars {
		return ErrInvalidName
	}
	for _, r := range name {
		if forbiddenNameChars[r] || unicode.IsControl(r) {
			return ErrInvalidName
		}
	}
	return nil
}
