package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/vaultline/core/internal/middleware"
	"github.com/vaultline/core/internal/model"
)

// UsageReporter abstracts the monthly token-usage lookup the cost
// dashboard needs.
type UsageReporter interface {
	MonthlyUsage(ctx context.Context, tenantID, month string) ([]model.TokenUsageLog, error)
}

// UsageDeps bundles dependencies for the usage handler.
type UsageDeps struct {
	Usage UsageReporter
}

// GetUsage handles GET /usage, returning the calling tenant's current (or
// an explicitly requested "2006-01"-formatted) month of LLM token usage.
func GetUsage(deps UsageDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())

		month := r.URL.Query().Get("month")
		if month == "" {
			month = time.Now().UTC().Format("2006-01")
		}

		records, err := deps.Usage.MonthlyUsage(r.Context(), principal.TenantID, month)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, CodeInternalError, "failed to get usage", nil)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"month":   month,
			"records": records,
		})
	}
}
