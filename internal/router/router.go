package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vaultline/core/internal/handler"
	"github.com/vaultline/core/internal/middleware"
	"github.com/vaultline/core/internal/rbac"
)

// Dependencies holds every service the router wires into a handler.
type Dependencies struct {
	DB          handler.DBPinger
	Verifier    middleware.TokenVerifier
	FrontendURL string
	Version     string
	Metrics     *middleware.Metrics
	MetricsReg  *prometheus.Registry

	Documents handler.DocumentDeps
	Tracker   handler.UploadTracker

	Query handler.QueryDeps

	Audit handler.AuditDeps
	Usage handler.UsageDeps

	// GeneralRateLimiter bounds every authenticated route; nil disables it.
	GeneralRateLimiter *middleware.RateLimiter
	// QueryRateLimiter additionally bounds the generation endpoints, which
	// are the most expensive calls this service serves.
	QueryRateLimiter *middleware.RateLimiter
}

// New builds the Chi router for the ingestion and retrieval API described
// by the external interface contract: document upload/status/list/delete,
// upload progress over SSE, and blocking/streaming query.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	r.Get("/healthz", handler.Health(deps.DB, deps.Version))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Verifier))
		if deps.GeneralRateLimiter != nil {
			r.Use(middleware.RateLimit(deps.GeneralRateLimiter))
		}

		timeout30s := middleware.Timeout(30 * time.Second)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rbac.Member))
			r.With(middleware.Timeout(120 * time.Second)).Post("/documents/upload", handler.UploadDocument(deps.Documents))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rbac.Viewer))
			r.With(timeout30s).Get("/documents/{id}/status", handler.DocumentStatus(deps.Documents))
			r.Get("/documents/upload-progress/{upload_token}", handler.UploadProgress(deps.Tracker))
			r.With(timeout30s).Get("/documents/", handler.ListDocuments(deps.Documents))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rbac.Admin))
			r.With(timeout30s).Delete("/documents/{id}", handler.DeleteDocument(deps.Documents))
			r.With(timeout30s).Get("/audit", handler.ListAudit(deps.Audit))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rbac.Viewer))
			queryMiddleware := []func(http.Handler) http.Handler{middleware.Timeout(60 * time.Second)}
			if deps.QueryRateLimiter != nil {
				queryMiddleware = append(queryMiddleware, middleware.RateLimit(deps.QueryRateLimiter))
			}
			r.With(queryMiddleware...).Post("/query", handler.Query(deps.Query))
			// Streaming responses manage their own deadline; no write timeout.
			if deps.QueryRateLimiter != nil {
				r.With(middleware.RateLimit(deps.QueryRateLimiter)).Post("/query/stream", handler.QueryStream(deps.Query))
			} else {
				r.Post("/query/stream", handler.QueryStream(deps.Query))
			}
			r.With(timeout30s).Get("/usage", handler.GetUsage(deps.Usage))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error_code": "NOT_FOUND",
			"message":    "route not found",
		})
	})

	return r
}
