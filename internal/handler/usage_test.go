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
	"github.com/vaultline/core/internal/tenant"
)

type stubUsageReporter struct {
	records  []model.TokenUsageLog
	err      error
	gotTenant string
	gotMonth  string
}

func (s *stubUsageReporter) MonthlyUsage(ctx context.Context, tenantID, month string) ([]model.TokenUsageLog, error) {
	s.gotTenant = tenantID
	s.gotMonth = month
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func usageRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	ctx := tenant.WithPrincipal(req.Context(), tenant.Principal{TenantID: "tenant-a", UserID: "user-1", Role: rbac.Member})
	return req.WithContext(ctx)
}

func TestGetUsage_DefaultsToCurrentMonth(t *testing.T) {
	reporter := &stubUsageReporter{records: []model.TokenUsageLog{{TenantID: "tenant-a", Model: "gemini-1.5-pro"}}}
	handler := GetUsage(UsageDeps{Usage: reporter})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, usageRequest("/usage"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if reporter.gotTenant != "tenant-a" {
		t.Errorf("tenant = %q, want tenant-a", reporter.gotTenant)
	}
	if reporter.gotMonth != time.Now().UTC().Format("2006-01") {
		t.Errorf("month = %q, want current month", reporter.gotMonth)
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["month"] != reporter.gotMonth {
		t.Errorf("response month = %v, want %v", resp["month"], reporter.gotMonth)
	}
}

func TestGetUsage_ExplicitMonth(t *testing.T) {
	reporter := &stubUsageReporter{}
	handler := GetUsage(UsageDeps{Usage: reporter})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, usageRequest("/usage?month=2026-01"))

	if reporter.gotMonth != "2026-01" {
		t.Errorf("month = %q, want 2026-01", reporter.gotMonth)
	}
}

func TestGetUsage_RepoError(t *testing.T) {
	reporter := &stubUsageReporter{err: context.DeadlineExceeded}
	handler := GetUsage(UsageDeps{Usage: reporter})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, usageRequest("/usage"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
