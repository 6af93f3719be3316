// Package worker runs the async document-processing task that the
// ingestion orchestrator (internal/ingest) hands off after a successful
// upload: download, extract, chunk, embed, index, then flip the
// document to ready. It also runs the periodic scanner that re-queues
// documents whose enqueue never landed.
package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vaultline/core/internal/audit"
	"github.com/vaultline/core/internal/extraction"
	"github.com/vaultline/core/internal/model"
)

// Task is the process_document payload, published by internal/ingest
// and (for re-queued documents) by the stuck-task scanner.
type Task struct {
	DocumentID  string `json:"document_id"`
	TenantID    string `json:"tenant_id"`
	StorageKey  string `json:"storage_key"`
	ContentType string `json:"content_type"`
}

const (
	maxRetries          = 3
	retryInitialBackoff = 30 * time.Second
	retryMultiplier     = 2.0
)

// DocumentRepository is the subset of document persistence the
// processor needs.
type DocumentRepository interface {
	GetByID(ctx context.Context, tenantID, documentID string) (*model.Document, error)
	UpdateStatus(ctx context.Context, tenantID, documentID string, status model.DocumentStatus, failureReason *string) error
	UpdateChunkCount(ctx context.Context, tenantID, documentID string, count int) error
}

// ObjectDownloader fetches a document's bytes back out of storage.
type ObjectDownloader interface {
	Download(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// Extractor turns raw bytes into text, mirroring extraction.Cascade.
type Extractor interface {
	Extract(ctx context.Context, localContent io.Reader, gcsURI, mimeType string) (extraction.Result, error)
}

// Chunker splits extracted text into chunks, mirroring chunking.Chunker.
type Chunker interface {
	Chunk(tenantID, documentID, text string) ([]model.Chunk, error)
}

// Embedder embeds chunk content, mirroring embedding.Pipeline.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []model.Chunk) ([][]float32, error)
}

// VectorUpserter indexes chunk vectors alongside their content, mirroring
// vectorstore.Store.Upsert: one call persists both the chunk rows and
// their embeddings, so there is no separate chunk-row persistence step.
type VectorUpserter interface {
	Upsert(ctx context.Context, tenantID string, chunks []model.Chunk, vectors [][]float32) error
}

// AuditLogger is the subset of *audit.Logger the processor depends on.
type AuditLogger interface {
	Log(ctx context.Context, e audit.Entry) error
}

// Processor runs the process_document task.
type Processor struct {
	bucket         string
	documents      DocumentRepository
	store          ObjectDownloader
	extractor      Extractor
	chunker        Chunker
	embedder       Embedder
	vectors        VectorUpserter
	audit          AuditLogger
	initialBackoff time.Duration
}

// NewProcessor builds a Processor. bucket is the object storage bucket
// documents are downloaded from.
func NewProcessor(bucket string, documents DocumentRepository, store ObjectDownloader, extractor Extractor, chunker Chunker, embedder Embedder, vectors VectorUpserter, auditLogger AuditLogger) *Processor {
	return &Processor{
		bucket:         bucket,
		documents:      documents,
		store:          store,
		extractor:      extractor,
		chunker:        chunker,
		embedder:       embedder,
		vectors:        vectors,
		audit:          auditLogger,
		initialBackoff: retryInitialBackoff,
	}
}

// SetInitialBackoff overrides the retry loop's starting backoff
// interval, mirroring embedding.Pipeline.SetBaseDelay. Tests use this to
// avoid real 30s+ sleeps.
func (p *Processor) SetInitialBackoff(d time.Duration) {
	p.initialBackoff = d
}

// Process runs one process_document task to completion, retrying the
// extract/chunk/embed/index sequence up to maxRetries times with
// exponential backoff (30s, 60s, 120s) before dead-lettering. skipped
// reports the idempotency-gate outcome: true means the task required no
// work (already processed, or the document no longer exists for this
// tenant).
func (p *Processor) Process(ctx context.Context, task Task) (skipped bool, err error) {
	doc, err := p.documents.GetByID(ctx, task.TenantID, task.DocumentID)
	if err != nil {
		slog.Warn("worker: document not found for tenant, skipping", "document_id", task.DocumentID, "tenant_id", task.TenantID, "error", err)
		return true, nil
	}
	if doc.Status == model.StatusReady || doc.Status == model.StatusProcessing {
		slog.Info("worker: document already processed or in flight, skipping", "document_id", task.DocumentID, "status", doc.Status)
		return true, nil
	}

	if err := p.documents.UpdateStatus(ctx, task.TenantID, task.DocumentID, model.StatusProcessing, nil); err != nil {
		return false, fmt.Errorf("worker.Process: mark processing: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initialBackoff
	bo.Multiplier = retryMultiplier
	bo.MaxElapsedTime = 0 // bounded by the explicit attempt count below, not elapsed wall time

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := bo.NextBackOff()
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}

		if runErr := p.runSteps(ctx, doc, task); runErr != nil {
			lastErr = runErr
			slog.Warn("worker: process_document attempt failed", "document_id", task.DocumentID, "attempt", attempt+1, "error", runErr)
			continue
		}
		return false, nil
	}

	p.failDocument(ctx, task.TenantID, task.DocumentID, lastErr)
	p.logAudit(ctx, task.TenantID, "document.dead_lettered", task.DocumentID, map[string]interface{}{
		"error":    lastErr.Error(),
		"attempts": maxRetries + 1,
	})
	return false, fmt.Errorf("worker.Process: exhausted retries: %w", lastErr)
}

// runSteps executes steps 3-10 of §4.M once, with no retry of its own.
func (p *Processor) runSteps(ctx context.Context, doc *model.Document, task Task) error {
	timings := map[string]interface{}{}
	start := func() time.Time { return time.Now() }
	record := func(stage string, t0 time.Time) { timings[stage+"_ms"] = time.Since(t0).Milliseconds() }

	// Step 3: download, with a defence-in-depth key-prefix check against
	// tenant-bound storage key tampering.
	t0 := start()
	bucket, key, err := parseStorageURI(doc.StorageURI)
	if err != nil {
		return fmt.Errorf("worker.runSteps: %w", err)
	}
	wantPrefix := fmt.Sprintf("tenants/%s/", task.TenantID)
	if !strings.HasPrefix(key, wantPrefix) {
		return fmt.Errorf("worker.runSteps: storage key %q does not belong to tenant %s", key, task.TenantID)
	}
	rc, err := p.store.Download(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("worker.runSteps: download: %w", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("worker.runSteps: read downloaded content: %w", err)
	}
	record("download", t0)

	// Step 4: extract.
	t0 = start()
	result, err := p.extractor.Extract(ctx, strings.NewReader(string(content)), doc.StorageURI, task.ContentType)
	if err != nil {
		return fmt.Errorf("worker.runSteps: extract: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return fmt.Errorf("worker.runSteps: extraction produced no text")
	}
	record("extract", t0)

	// Step 5: chunk.
	t0 = start()
	chunks, err := p.chunker.Chunk(task.TenantID, task.DocumentID, result.Text)
	if err != nil {
		return fmt.Errorf("worker.runSteps: chunk: %w", err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("worker.runSteps: chunking produced no chunks")
	}
	record("chunk", t0)

	// Step 6: embed.
	t0 = start()
	vectors, err := p.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return fmt.Errorf("worker.runSteps: embed: %w", err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("worker.runSteps: embedding produced no vectors")
	}
	record("embed", t0)

	// Step 7+8: upsert vectors, which persists chunk content and
	// embeddings together; there is no separate chunk-row write.
	t0 = start()
	if err := p.vectors.Upsert(ctx, task.TenantID, chunks, vectors); err != nil {
		return fmt.Errorf("worker.runSteps: vector upsert: %w", err)
	}
	record("vector_upsert", t0)

	// Step 9: mark ready.
	if err := p.documents.UpdateStatus(ctx, task.TenantID, task.DocumentID, model.StatusReady, nil); err != nil {
		return fmt.Errorf("worker.runSteps: mark ready: %w", err)
	}
	if err := p.documents.UpdateChunkCount(ctx, task.TenantID, task.DocumentID, len(chunks)); err != nil {
		return fmt.Errorf("worker.runSteps: update chunk count: %w", err)
	}

	// Step 10: audit with timing breakdown.
	timings["chunk_count"] = len(chunks)
	p.logAudit(ctx, task.TenantID, "document.processed", task.DocumentID, timings)

	return nil
}

func (p *Processor) failDocument(ctx context.Context, tenantID, documentID string, cause error) {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	if err := p.documents.UpdateStatus(ctx, tenantID, documentID, model.StatusFailed, &reason); err != nil {
		slog.Error("worker: failed to mark document failed", "document_id", documentID, "error", err)
	}
}

func (p *Processor) logAudit(ctx context.Context, tenantID, action, resourceID string, details map[string]interface{}) {
	if p.audit == nil {
		return
	}
	if err := p.audit.Log(ctx, audit.Entry{TenantID: tenantID, Action: action, ResourceID: resourceID, Details: details}); err != nil {
		slog.Warn("worker: audit log failed", "action", action, "document_id", resourceID, "error", err)
	}
}

// parseStorageURI splits a "gs://bucket/key" storage URI.
func parseStorageURI(uri string) (bucket, key string, err error) {
	const prefix = "gs://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", fmt.Errorf("parseStorageURI: %q is not a gs:// uri", uri)
	}
	rest := uri[len(prefix):]
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("parseStorageURI: %q is missing bucket or key", uri)
	}
	return parts[0], parts[1], nil
}
