package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vaultline/core/internal/handler"
	"github.com/vaultline/core/internal/model"
	"github.com/vaultline/core/internal/rbac"
	"github.com/vaultline/core/internal/repository"
	"github.com/vaultline/core/internal/tenant"
)

type mockDB struct{ err error }

func (m *mockDB) Ping(ctx context.Context) error { return m.err }

type mockVerifier struct {
	principal tenant.Principal
	err       error
}

func (m *mockVerifier) VerifyToken(ctx context.Context, rawToken string) (tenant.Principal, error) {
	if m.err != nil {
		return tenant.Principal{}, m.err
	}
	return m.principal, nil
}

type mockDocumentRepo struct{}

func (m *mockDocumentRepo) GetByID(ctx context.Context, tenantID, documentID string) (*model.Document, error) {
	return nil, fmt.Errorf("not found")
}

func (m *mockDocumentRepo) ListByTenant(ctx context.Context, tenantID string, opts repository.ListOpts) ([]model.Document, int, error) {
	return nil, 0, nil
}

func (m *mockDocumentRepo) SoftDelete(ctx context.Context, tenantID, documentID string) error {
	return nil
}

type mockAuditLister struct{}

func (m *mockAuditLister) List(ctx context.Context, f repository.ListFilter) ([]model.AuditLog, int, error) {
	return nil, 0, nil
}

type mockUsageReporter struct{}

func (m *mockUsageReporter) MonthlyUsage(ctx context.Context, tenantID, month string) ([]model.TokenUsageLog, error) {
	return nil, nil
}

func newTestRouter(verifyErr error, role rbac.Role) http.Handler {
	deps := &Dependencies{
		DB:          &mockDB{},
		Verifier:    &mockVerifier{principal: tenant.Principal{TenantID: "tenant-a", UserID: "user-1", Role: role}, err: verifyErr},
		FrontendURL: "http://localhost:3000",
		Version:     "0.1.0",
		Documents:   handler.DocumentDeps{Repo: &mockDocumentRepo{}},
		Audit:       handler.AuditDeps{Lister: &mockAuditLister{}},
		Usage:       handler.UsageDeps{Usage: &mockUsageReporter{}},
	}
	return New(deps)
}

func bearer(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer token")
	return req
}

func TestHealthz_IsPublic(t *testing.T) {
	r := newTestRouter(nil, rbac.Viewer)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestDocumentsList_RequiresAuth(t *testing.T) {
	r := newTestRouter(fmt.Errorf("invalid token"), rbac.Viewer)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestDocumentsList_WithAuth(t *testing.T) {
	r := newTestRouter(nil, rbac.Viewer)

	req := bearer(httptest.NewRequest(http.MethodGet, "/api/v1/documents/", nil))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestDeleteDocument_RequiresAdmin(t *testing.T) {
	r := newTestRouter(nil, rbac.Viewer)

	req := bearer(httptest.NewRequest(http.MethodDelete, "/api/v1/documents/doc-1", nil))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestDeleteDocument_AllowsAdmin(t *testing.T) {
	r := newTestRouter(nil, rbac.Admin)

	req := bearer(httptest.NewRequest(http.MethodDelete, "/api/v1/documents/doc-1", nil))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// The document doesn't exist in the stub repo, so this still resolves
	// through the handler as a 404, proving the RBAC gate let it through.
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAudit_RequiresAdmin(t *testing.T) {
	r := newTestRouter(nil, rbac.Member)

	req := bearer(httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestUsage_AllowsViewer(t *testing.T) {
	r := newTestRouter(nil, rbac.Viewer)

	req := bearer(httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	r := newTestRouter(nil, rbac.Viewer)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nonexistent", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error_code"] != "NOT_FOUND" {
		t.Errorf("error_code = %v, want NOT_FOUND", body["error_code"])
	}
}
