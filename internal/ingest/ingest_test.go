package ingest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/vaultline/core/internal/audit"
	"github.com/vaultline/core/internal/model"
	"github.com/vaultline/core/internal/objectstore"
)

type fakeStore struct {
	uploadErr error
	deleted   []string
	lastBytes []byte
}

func (f *fakeStore) Upload(ctx context.Context, bucket, object string, r io.Reader, contentType string, totalBytes int64, progress chan<- objectstore.Progress) (objectstore.UploadResult, error) {
	if f.uploadErr != nil {
		return objectstore.UploadResult{}, f.uploadErr
	}
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 512)
	for {
		n, err := r.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	f.lastBytes = buf
	sum := md5.Sum(buf)
	return objectstore.UploadResult{
		StorageURI:  "gs://bucket/" + object,
		MD5Checksum: hex.EncodeToString(sum[:]),
		SHA256Sum:   "sha256-" + object,
		SizeBytes:   int64(len(buf)),
	}, nil
}

func (f *fakeStore) Delete(ctx context.Context, bucket, object string) error {
	f.deleted = append(f.deleted, object)
	return nil
}

type fakeDocRepo struct {
	byChecksum map[string]*model.Document
	created    *model.Document
	createErr  error
}

func (f *fakeDocRepo) FindByChecksum(ctx context.Context, tenantID, md5 string) (*model.Document, error) {
	if d, ok := f.byChecksum[md5]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeDocRepo) Create(ctx context.Context, doc *model.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = doc
	return nil
}

type fakePublisher struct {
	tasks []Task
	err   error
}

func (f *fakePublisher) Enqueue(ctx context.Context, task Task) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

type noopAudit struct{ entries []audit.Entry }

func (n *noopAudit) Log(ctx context.Context, e audit.Entry) error {
	n.entries = append(n.entries, e)
	return nil
}

func newTestOrchestrator(store *fakeStore, repo *fakeDocRepo, pub *fakePublisher, aud *noopAudit) *Orchestrator {
	return New(store, repo, aud, pub, "test-bucket")
}

func TestIngest_RejectsInvalidName(t *testing.T) {
	o := newTestOrchestrator(&fakeStore{}, &fakeDocRepo{byChecksum: map[string]*model.Document{}}, &fakePublisher{}, &noopAudit{})

	_, err := o.Ingest(context.Background(), "tenant-a", "user-1", "bad/name.pdf", 10, strings.NewReader("%PDF-1.4 body"))
	if !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestIngest_RejectsOversizedDeclaredLength(t *testing.T) {
	o := newTestOrchestrator(&fakeStore{}, &fakeDocRepo{byChecksum: map[string]*model.Document{}}, &fakePublisher{}, &noopAudit{})

	_, err := o.Ingest(context.Background(), "tenant-a", "user-1", "doc.pdf", model.MaxFileSizeBytes+1, strings.NewReader(""))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestIngest_RejectsUnsupportedType(t *testing.T) {
	o := newTestOrchestrator(&fakeStore{}, &fakeDocRepo{byChecksum: map[string]*model.Document{}}, &fakePublisher{}, &noopAudit{})

	_, err := o.Ingest(context.Background(), "tenant-a", "user-1", "doc.exe", 100, strings.NewReader("MZ\x90\x00binary"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestIngest_SuccessfulPDFUpload(t *testing.T) {
	store := &fakeStore{}
	repo := &fakeDocRepo{byChecksum: map[string]*model.Document{}}
	pub := &fakePublisher{}
	aud := &noopAudit{}
	o := newTestOrchestrator(store, repo, pub, aud)

	content := "%PDF-1.4 some pdf content here"
	result, err := o.Ingest(context.Background(), "tenant-a", "user-1", "report.pdf", int64(len(content)), strings.NewReader(content))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.MimeType != "application/pdf" {
		t.Fatalf("expected application/pdf, got %s", result.MimeType)
	}
	if repo.created == nil {
		t.Fatal("expected document row to be created")
	}
	if repo.created.Status != model.StatusPending {
		t.Fatalf("expected pending status, got %s", repo.created.Status)
	}
	if len(pub.tasks) != 1 || pub.tasks[0].DocumentID != result.DocumentID {
		t.Fatalf("expected one enqueued task for the new document, got %+v", pub.tasks)
	}
	if !bytes.Equal(store.lastBytes, []byte(content)) {
		t.Fatalf("expected full content to reach object storage, got %q", store.lastBytes)
	}

	var sawUploaded bool
	for _, e := range aud.entries {
		if e.Action == "document.uploaded" {
			sawUploaded = true
		}
	}
	if !sawUploaded {
		t.Fatal("expected a document.uploaded audit entry")
	}
}

func TestIngest_DuplicateDetectedByChecksumProbe(t *testing.T) {
	store := &fakeStore{}
	repo := &fakeDocRepo{byChecksum: map[string]*model.Document{}}
	o := newTestOrchestrator(store, repo, &fakePublisher{}, &noopAudit{})

	content := "%PDF-1.4 duplicate content"
	first, err := o.Ingest(context.Background(), "tenant-a", "user-1", "a.pdf", int64(len(content)), strings.NewReader(content))
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	sum := md5.Sum([]byte(content))
	repo.byChecksum[hex.EncodeToString(sum[:])] = &model.Document{ID: first.DocumentID}

	_, err = o.Ingest(context.Background(), "tenant-a", "user-1", "b.pdf", int64(len(content)), strings.NewReader(content))
	var dupErr *DuplicateError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
}

func TestIngest_QueueFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{}
	repo := &fakeDocRepo{byChecksum: map[string]*model.Document{}}
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	aud := &noopAudit{}
	o := newTestOrchestrator(store, repo, pub, aud)

	content := "%PDF-1.4 content"
	result, err := o.Ingest(context.Background(), "tenant-a", "user-1", "a.pdf", int64(len(content)), strings.NewReader(content))
	if err != nil {
		t.Fatalf("expected success despite queue failure, got %v", err)
	}
	if result.ProcessingStatus != "queued" {
		t.Fatalf("expected queued processing status, got %s", result.ProcessingStatus)
	}

	var sawQueueFailed bool
	for _, e := range aud.entries {
		if e.Action == "document.queue_failed" {
			sawQueueFailed = true
		}
	}
	if !sawQueueFailed {
		t.Fatal("expected a document.queue_failed audit entry")
	}
}

func TestIngest_DocxRequiresWordDocumentXMLPart(t *testing.T) {
	o := newTestOrchestrator(&fakeStore{}, &fakeDocRepo{byChecksum: map[string]*model.Document{}}, &fakePublisher{}, &noopAudit{})

	// Bare ZIP magic bytes with no real zip structure behind them.
	fake := "PK\x03\x04" + strings.Repeat("x", 40)
	_, err := o.Ingest(context.Background(), "tenant-a", "user-1", "trick.docx", int64(len(fake)), strings.NewReader(fake))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType for a non-DOCX zip, got %v", err)
	}
}
