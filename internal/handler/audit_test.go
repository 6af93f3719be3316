package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vaultline/core/internal/model"
	"github.com/vaultline/core/internal/rbac"
	"github.com/vaultline/core/internal/repository"
	"github.com/vaultline/core/internal/tenant"
)

type stubAuditLister struct {
	entries []model.AuditLog
	total   int
	err     error
	gotFilter repository.ListFilter
}

func (s *stubAuditLister) List(ctx context.Context, f repository.ListFilter) ([]model.AuditLog, int, error) {
	s.gotFilter = f
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.entries, s.total, nil
}

func testAuditEntries() []model.AuditLog {
	actor := "user-1"
	return []model.AuditLog{
		{ID: "entry-1", TenantID: "tenant-a", ActorID: &actor, Action: model.ActionDocumentUploaded, CreatedAt: time.Now().Add(-time.Hour)},
		{ID: "entry-2", TenantID: "tenant-a", ActorID: &actor, Action: model.ActionQueryAnswered, CreatedAt: time.Now()},
	}
}

func auditRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	ctx := tenant.WithPrincipal(req.Context(), tenant.Principal{TenantID: "tenant-a", UserID: "user-1", Role: rbac.Admin})
	return req.WithContext(ctx)
}

func TestListAudit_Success(t *testing.T) {
	lister := &stubAuditLister{entries: testAuditEntries(), total: 2}
	handler := ListAudit(AuditDeps{Lister: lister})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, auditRequest("/audit"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if lister.gotFilter.TenantID != "tenant-a" {
		t.Errorf("filter scoped to tenant %q, want tenant-a", lister.gotFilter.TenantID)
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if total, ok := resp["total"].(float64); !ok || int(total) != 2 {
		t.Errorf("total = %v, want 2", resp["total"])
	}
}

func TestListAudit_WithFilters(t *testing.T) {
	lister := &stubAuditLister{}
	handler := ListAudit(AuditDeps{Lister: lister})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, auditRequest("/audit?action=query.answered&limit=10&offset=5"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if lister.gotFilter.Action != "query.answered" || lister.gotFilter.Limit != 10 || lister.gotFilter.Offset != 5 {
		t.Errorf("filter = %+v, want action=query.answered limit=10 offset=5", lister.gotFilter)
	}
}

func TestListAudit_DefaultsAndCapsLimit(t *testing.T) {
	lister := &stubAuditLister{}
	handler := ListAudit(AuditDeps{Lister: lister})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, auditRequest("/audit?limit=100000"))

	if lister.gotFilter.Limit != maxAuditLimit {
		t.Errorf("limit = %d, want capped to %d", lister.gotFilter.Limit, maxAuditLimit)
	}
}

func TestListAudit_RepoError(t *testing.T) {
	lister := &stubAuditLister{err: context.DeadlineExceeded}
	handler := ListAudit(AuditDeps{Lister: lister})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, auditRequest("/audit"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
