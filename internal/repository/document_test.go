package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vaultline/core/internal/ingest"
	"github.com/vaultline/core/internal/model"
)

func setupDocRepo(t *testing.T) (*DocumentRepo, string, func()) {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, dbURL, 5)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	migrationSQL, err := os.ReadFile("../../migrations/001_initial_schema.up.sql")
	if err != nil {
		pool.Close()
		t.Fatalf("read migration: %v", err)
	}

	tenantID := "tenant-doc-test-" + uuid.New().String()
	ensureSchema := func() error {
		if _, err := pool.Exec(ctx, string(migrationSQL)); err != nil {
			return err
		}
		_, err := pool.Exec(ctx,
			`INSERT INTO tenants (id, name) VALUES ($1, 'doc repo test tenant') ON CONFLICT (id) DO NOTHING`,
			tenantID,
		)
		return err
	}

	for attempt := 0; attempt < 5; attempt++ {
		err = ensureSchema()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * time.Second)
	}
	if err != nil {
		pool.Close()
		t.Fatalf("setup schema after retries: %v", err)
	}

	repo := NewDocumentRepo(pool)
	return repo, tenantID, func() { pool.Close() }
}

func newTestDoc(tenantID string) *model.Document {
	id := uuid.New().String()
	now := time.Now().UTC()
	return &model.Document{
		ID:          id,
		TenantID:    tenantID,
		UploadedBy:  "user-1",
		Filename:    "test.pdf",
		MimeType:    "application/pdf",
		SizeBytes:   1024,
		StorageURI:  "gs://bucket/tenants/" + tenantID + "/documents/" + id + ".pdf",
		MD5Checksum: uuid.New().String(),
		SHA256Sum:   uuid.New().String(),
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestDocumentRepo_CreateAndGetByID(t *testing.T) {
	repo, tenantID, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	doc := newTestDoc(tenantID)

	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := repo.GetByID(ctx, tenantID, doc.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.ID != doc.ID {
		t.Errorf("ID = %q, want %q", got.ID, doc.ID)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusPending)
	}
	if got.Filename != "test.pdf" {
		t.Errorf("Filename = %q, want %q", got.Filename, "test.pdf")
	}
}

func TestDocumentRepo_GetByID_WrongTenantNotFound(t *testing.T) {
	repo, tenantID, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	doc := newTestDoc(tenantID)
	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if _, err := repo.GetByID(ctx, "some-other-tenant", doc.ID); err == nil {
		t.Error("expected error fetching a document under the wrong tenant")
	}
}

func TestDocumentRepo_DuplicateChecksumReturnsErrDuplicateKey(t *testing.T) {
	repo, tenantID, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	first := newTestDoc(tenantID)
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() first error: %v", err)
	}

	second := newTestDoc(tenantID)
	second.MD5Checksum = first.MD5Checksum

	err := repo.Create(ctx, second)
	if !errors.Is(err, ingest.ErrDuplicateKey) {
		t.Fatalf("Create() error = %v, want ingest.ErrDuplicateKey", err)
	}
}

func TestDocumentRepo_FindByChecksum(t *testing.T) {
	repo, tenantID, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	doc := newTestDoc(tenantID)
	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	found, err := repo.FindByChecksum(ctx, tenantID, doc.MD5Checksum)
	if err != nil {
		t.Fatalf("FindByChecksum() error: %v", err)
	}
	if found.ID != doc.ID {
		t.Errorf("FindByChecksum() ID = %q, want %q", found.ID, doc.ID)
	}

	if _, err := repo.FindByChecksum(ctx, tenantID, "nonexistent"); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("FindByChecksum() for missing checksum error = %v, want pgx.ErrNoRows", err)
	}
}

func TestDocumentRepo_UpdateStatus(t *testing.T) {
	repo, tenantID, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	doc := newTestDoc(tenantID)
	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	reason := "extraction produced no text"
	if err := repo.UpdateStatus(ctx, tenantID, doc.ID, model.StatusFailed, &reason); err != nil {
		t.Fatalf("UpdateStatus() error: %v", err)
	}

	got, err := repo.GetByID(ctx, tenantID, doc.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusFailed)
	}
	if got.FailureReason == nil || *got.FailureReason != reason {
		t.Errorf("FailureReason = %v, want %q", got.FailureReason, reason)
	}
}

func TestDocumentRepo_UpdateChunkCount(t *testing.T) {
	repo, tenantID, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	doc := newTestDoc(tenantID)
	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := repo.UpdateChunkCount(ctx, tenantID, doc.ID, 42); err != nil {
		t.Fatalf("UpdateChunkCount() error: %v", err)
	}

	got, err := repo.GetByID(ctx, tenantID, doc.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.ChunkCount != 42 {
		t.Errorf("ChunkCount = %d, want 42", got.ChunkCount)
	}
}

func TestDocumentRepo_FindStalePending(t *testing.T) {
	repo, tenantID, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	stale := newTestDoc(tenantID)
	if err := repo.Create(ctx, stale); err != nil {
		t.Fatalf("Create() stale error: %v", err)
	}
	fresh := newTestDoc(tenantID)
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("Create() fresh error: %v", err)
	}

	cutoff := time.Now().UTC().Add(time.Minute)
	docs, err := repo.FindStalePending(ctx, cutoff, 50)
	if err != nil {
		t.Fatalf("FindStalePending() error: %v", err)
	}

	var found bool
	for _, d := range docs {
		if d.ID == stale.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected stale pending document to be returned")
	}
}

func TestDocumentRepo_SoftDelete(t *testing.T) {
	repo, tenantID, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	doc := newTestDoc(tenantID)
	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := repo.SoftDelete(ctx, tenantID, doc.ID); err != nil {
		t.Fatalf("SoftDelete() error: %v", err)
	}

	if _, err := repo.GetByID(ctx, tenantID, doc.ID); err != nil {
		t.Fatalf("GetByID() after soft delete error: %v", err)
	}

	docs, _, err := repo.ListByTenant(ctx, tenantID, ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListByTenant() error: %v", err)
	}
	for _, d := range docs {
		if d.ID == doc.ID {
			t.Error("soft-deleted document should not appear in ListByTenant")
		}
	}
}

func TestDocumentRepo_ListByTenant(t *testing.T) {
	repo, tenantID, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := repo.Create(ctx, newTestDoc(tenantID)); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	docs, total, err := repo.ListByTenant(ctx, tenantID, ListOpts{Limit: 10, Offset: 0})
	if err != nil {
		t.Fatalf("ListByTenant() error: %v", err)
	}
	if total < 3 {
		t.Errorf("total = %d, want >= 3", total)
	}
	if len(docs) < 3 {
		t.Errorf("docs count = %d, want >= 3", len(docs))
	}
}
