package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vaultline/core/internal/ingest"
	"github.com/vaultline/core/internal/middleware"
	"github.com/vaultline/core/internal/model"
	"github.com/vaultline/core/internal/repository"
)

const maxUploadMemory = 32 << 20 // 32 MiB held in memory before multipart spills to disk

// DocumentStatusRepo is the subset of persistence the status/list/delete
// handlers need.
type DocumentStatusRepo interface {
	GetByID(ctx context.Context, tenantID, documentID string) (*model.Document, error)
	ListByTenant(ctx context.Context, tenantID string, opts repository.ListOpts) ([]model.Document, int, error)
	SoftDelete(ctx context.Context, tenantID, documentID string) error
}

// DocumentDeps bundles the dependencies every document handler needs.
type DocumentDeps struct {
	Orchestrator *ingest.Orchestrator
	Repo         DocumentStatusRepo
	Tracker      *InMemoryUploadTracker
}

// UploadDocument handles POST /documents/upload. The request must be
// multipart/form-data with a "file" part and a "document_name" field;
// "document_permissions" and "upload_token" are optional fields, the
// latter enabling the caller to poll GET /documents/upload-progress/{token}
// concurrently with this blocking call.
func UploadDocument(deps DocumentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())

		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeError(w, r, http.StatusBadRequest, CodeMissingFile, "could not parse multipart form", nil)
			return
		}

		name := r.FormValue("document_name")
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeMissingFile, "file part is required", nil)
			return
		}
		defer file.Close()
		if name == "" {
			name = header.Filename
		}

		if raw := r.FormValue("document_permissions"); raw != "" {
			var perms []string
			if err := json.Unmarshal([]byte(raw), &perms); err != nil {
				writeError(w, r, http.StatusBadRequest, CodeInvalidPermissionsShape, "document_permissions must be a JSON array of strings", nil)
				return
			}
		}

		var body io.Reader = file
		uploadToken := r.FormValue("upload_token")
		if uploadToken != "" && deps.Tracker != nil {
			deps.Tracker.Register(uploadToken, header.Size)
			defer deps.Tracker.Finish(uploadToken)
			body = &countingReader{r: file, tracker: deps.Tracker, uploadToken: uploadToken}
		}

		result, err := deps.Orchestrator.Ingest(r.Context(), principal.TenantID, principal.UserID, name, header.Size, body)
		if err != nil {
			writeIngestError(w, r, err)
			return
		}

		w.Header().Set("X-Document-ID", result.DocumentID)
		w.Header().Set("X-Tenant-ID", principal.TenantID)
		w.Header().Set("Location", fmt.Sprintf("/api/v1/documents/%s/status", result.DocumentID))
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"document_id":       result.DocumentID,
			"status":            result.Status,
			"processing_status": result.ProcessingStatus,
			"checksum":          result.Checksum,
			"size_bytes":        result.SizeBytes,
			"mime_type":         result.MimeType,
			"created_at":        result.CreatedAt,
		})
	}
}

func writeIngestError(w http.ResponseWriter, r *http.Request, err error) {
	var dup *ingest.DuplicateError
	switch {
	case errors.As(err, &dup):
		writeError(w, r, http.StatusConflict, CodeDuplicateDocument, "a document with identical content already exists",
			map[string]interface{}{"existing_document_id": dup.ExistingID})
	case errors.Is(err, ingest.ErrInvalidName):
		writeError(w, r, http.StatusBadRequest, CodeInvalidDocumentName, "document name is empty, too long, or contains invalid characters", nil)
	case errors.Is(err, ingest.ErrPayloadTooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, CodeFileTooLarge, "file exceeds the maximum upload size", nil)
	case errors.Is(err, ingest.ErrMissing):
		writeError(w, r, http.StatusBadRequest, CodeMissingFile, "upload stream was empty", nil)
	case errors.Is(err, ingest.ErrUnsupportedType):
		writeError(w, r, http.StatusBadRequest, CodeUnsupportedFileType, "file type is not supported", nil)
	case errors.Is(err, ingest.ErrStorageFailure):
		writeError(w, r, http.StatusServiceUnavailable, CodeStorageError, "storage backend is unavailable", nil)
	default:
		writeError(w, r, http.StatusInternalServerError, CodeInternalError, "internal error", nil)
	}
}

// DocumentStatus handles GET /documents/{id}/status.
func DocumentStatus(deps DocumentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())
		docID := chi.URLParam(r, "id")

		doc, err := deps.Repo.GetByID(r.Context(), principal.TenantID, docID)
		if err != nil {
			writeError(w, r, http.StatusNotFound, CodeDocumentNotFound, "document not found", nil)
			return
		}

		body := map[string]interface{}{
			"document_id":        doc.ID,
			"processing_status":  string(doc.Status),
			"chunk_count":        doc.ChunkCount,
			"vector_count":       doc.ChunkCount,
			"updated_at":         doc.UpdatedAt,
		}
		if doc.FailureReason != nil {
			body["error_message"] = *doc.FailureReason
		}
		writeJSON(w, http.StatusOK, body)
	}
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListDocuments handles GET /documents/.
func ListDocuments(deps DocumentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())
		q := r.URL.Query()

		page, _ := strconv.Atoi(q.Get("page"))
		if page < 1 {
			page = 1
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		if limit <= 0 {
			limit = defaultListLimit
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}

		docs, total, err := deps.Repo.ListByTenant(r.Context(), principal.TenantID, repository.ListOpts{
			Limit:  limit,
			Offset: (page - 1) * limit,
		})
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, CodeInternalError, "failed to list documents", nil)
			return
		}

		statusFilter := model.DocumentStatus(q.Get("status"))
		if statusFilter != "" {
			filtered := make([]model.Document, 0, len(docs))
			for _, d := range docs {
				if d.Status == statusFilter {
					filtered = append(filtered, d)
				}
			}
			docs = filtered
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"documents": docs,
			"total":     total,
			"page":      page,
			"limit":     limit,
		})
	}
}

// DeleteDocument handles DELETE /documents/{id} (soft delete, admin+).
func DeleteDocument(deps DocumentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())
		docID := chi.URLParam(r, "id")

		if _, err := deps.Repo.GetByID(r.Context(), principal.TenantID, docID); err != nil {
			writeError(w, r, http.StatusNotFound, CodeDocumentNotFound, "document not found", nil)
			return
		}

		if err := deps.Repo.SoftDelete(r.Context(), principal.TenantID, docID); err != nil {
			writeError(w, r, http.StatusInternalServerError, CodeInternalError, "failed to delete document", nil)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// UploadTracker reports the current byte progress of an in-flight upload
// registered by its client-supplied upload token, and whether it has
// finished. A token the tracker has never seen (the upload already
// completed and was evicted, or never started) reports ok=false.
type UploadTracker interface {
	Progress(uploadToken string) (bytesWritten, totalBytes int64, done, ok bool)
}

// UploadProgress handles GET /documents/upload-progress/{upload_token} as
// a server-sent-events stream, polling tracker once a second until the
// upload finishes, the client disconnects, or the stream times out.
func UploadProgress(tracker UploadTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "upload_token")

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, r, http.StatusInternalServerError, CodeInternalError, "streaming unsupported", nil)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		fmt.Fprintf(w, "event: connected\ndata: {\"upload_token\":%q}\n\n", token)
		flusher.Flush()

		heartbeat := time.NewTicker(1 * time.Second)
		defer heartbeat.Stop()
		timeout := time.NewTimer(5 * time.Minute)
		defer timeout.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-timeout.C:
				fmt.Fprint(w, "event: timeout\ndata: {}\n\n")
				flusher.Flush()
				return
			case <-heartbeat.C:
				written, total, done, ok := tracker.Progress(token)
				if !ok {
					fmt.Fprint(w, ": keep-alive\n\n")
					flusher.Flush()
					continue
				}
				if done {
					fmt.Fprintf(w, "event: done\ndata: {\"upload_token\":%q}\n\n", token)
					flusher.Flush()
					return
				}
				percent := 0.0
				if total > 0 {
					percent = float64(written) / float64(total) * 100
				}
				fmt.Fprintf(w, "event: upload_progress\ndata: {\"stage\":\"uploading\",\"bytes_received\":%d,\"bytes_total\":%d,\"percent\":%.2f}\n\n",
					written, total, percent)
				flusher.Flush()
			}
		}
	}
}
