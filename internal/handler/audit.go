package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/vaultline/core/internal/middleware"
	"github.com/vaultline/core/internal/model"
	"github.com/vaultline/core/internal/repository"
)

// AuditLister abstracts the paginated, tenant-scoped audit query the
// operational/compliance review surface needs.
type AuditLister interface {
	List(ctx context.Context, f repository.ListFilter) ([]model.AuditLog, int, error)
}

// AuditDeps bundles dependencies for the audit handler.
type AuditDeps struct {
	Lister AuditLister
}

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// ListAudit handles GET /audit, an admin+ surface for reviewing a
// tenant's hash-chained audit trail.
func ListAudit(deps AuditDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())
		q := r.URL.Query()

		limit, _ := strconv.Atoi(q.Get("limit"))
		if limit <= 0 {
			limit = defaultAuditLimit
		}
		if limit > maxAuditLimit {
			limit = maxAuditLimit
		}
		offset, _ := strconv.Atoi(q.Get("offset"))

		entries, total, err := deps.Lister.List(r.Context(), repository.ListFilter{
			TenantID: principal.TenantID,
			Action:   q.Get("action"),
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, CodeInternalError, "failed to list audit logs", nil)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"entries": entries,
			"total":   total,
			"limit":   limit,
			"offset":  offset,
		})
	}
}
