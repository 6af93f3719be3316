package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vaultline/core/internal/rbac"
	"github.com/vaultline/core/internal/tenant"
)

// TokenVerifier is the subset of authn.Verifier the auth middleware depends
// on, kept as an interface so handler tests can fake it without a real JWKS
// endpoint.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, rawToken string) (tenant.Principal, error)
}

// Auth returns Chi middleware that verifies the bearer token on every
// request with verifier, binding the resolved tenant.Principal onto the
// request context for downstream handlers. Requests with no or an invalid
// token receive 401.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				respondAuthError(w, http.StatusUnauthorized, "missing authorization token")
				return
			}

			principal, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				respondAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := tenant.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns Chi middleware that rejects requests whose bound
// Principal does not outrank min. Must run after Auth.
func RequireRole(min rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := tenant.FromContext(r.Context())
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "missing authorization token")
				return
			}
			if !rbac.AtLeast(principal.Role, min) {
				respondAuthError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext retrieves the authenticated principal bound by Auth,
// replacing the teacher's UserIDFromContext now that identity carries a
// tenant and role alongside the user ID. Callers outside an authenticated
// request path (e.g. the rate limiter's fallback key) get a zero value.
func PrincipalFromContext(ctx context.Context) tenant.Principal {
	p, _ := tenant.FromContext(ctx)
	return p
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func respondAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
