package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vaultline/core/internal/ingest"
	"github.com/vaultline/core/internal/model"
)

const (
	scanInterval = 60 * time.Second
	scanStaleAge = 5 * time.Minute
	scanBatch    = 50
)

// ScannerRepository finds documents stuck in pending, crossing tenant
// boundaries intentionally: a single sweep recovers every tenant's
// orphaned uploads, with each re-queued task still carrying its own
// tenant id.
type ScannerRepository interface {
	FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]model.Document, error)
}

// Scanner periodically re-queues documents whose enqueue step
// (ingest.Orchestrator step 9) never landed.
type Scanner struct {
	repo      ScannerRepository
	publisher ingest.Publisher
	now       func() time.Time
}

// NewScanner builds a Scanner.
func NewScanner(repo ScannerRepository, publisher ingest.Publisher) *Scanner {
	return &Scanner{repo: repo, publisher: publisher, now: time.Now}
}

// Run blocks, scanning every scanInterval until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *Scanner) scanOnce(ctx context.Context) {
	cutoff := s.now().UTC().Add(-scanStaleAge)
	stale, err := s.repo.FindStalePending(ctx, cutoff, scanBatch)
	if err != nil {
		slog.Error("worker: stuck-task scan failed", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	slog.Info("worker: re-queuing stale pending documents", "count", len(stale))
	for _, doc := range stale {
		task := ingest.Task{DocumentID: doc.ID, TenantID: doc.TenantID, StorageKey: doc.StorageURI, ContentType: doc.MimeType}
		if err := s.publisher.Enqueue(ctx, task); err != nil {
			slog.Error("worker: failed to re-queue stale document", "document_id", doc.ID, "tenant_id", doc.TenantID, "error", err)
		}
	}
}
