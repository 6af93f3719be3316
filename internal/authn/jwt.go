package authn

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"github.com/vaultline/core/internal/rbac"
	"github.com/vaultline/core/internal/tenant"
)

// Claims is the set of JWT claims this platform expects an identity
// provider to issue: which tenant the token authorizes access to, and what
// role the subject holds there.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Verifier validates bearer tokens against a configured issuer, audience
// and JWKS endpoint, and resolves them into a tenant.Principal.
type Verifier struct {
	issuer   string
	audience string
	jwksURL  string
	jwks     *JWKSCache
}

// NewVerifier builds a Verifier backed by jwks. audience may be empty to
// skip audience validation.
func NewVerifier(issuer, audience, jwksURL string, jwks *JWKSCache) *Verifier {
	return &Verifier{issuer: issuer, audience: audience, jwksURL: jwksURL, jwks: jwks}
}

// VerifyToken parses and verifies rawToken, returning the bound Principal
// on success.
func (v *Verifier) VerifyToken(ctx context.Context, rawToken string) (tenant.Principal, error) {
	var claims Claims

	token, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("authn: unexpected signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("authn: token missing kid header")
		}
		jwk, err := v.jwks.Key(ctx, v.jwksURL, kid)
		if err != nil {
			return nil, fmt.Errorf("authn: resolve key: %w", err)
		}
		pub, ok := jwk.Key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("authn: jwk %q is not an RSA public key", kid)
		}
		return pub, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return tenant.Principal{}, fmt.Errorf("authn.VerifyToken: %w", err)
	}
	if !token.Valid {
		return tenant.Principal{}, fmt.Errorf("authn.VerifyToken: token invalid")
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return tenant.Principal{}, fmt.Errorf("authn.VerifyToken: issuer %q does not match expected %q", claims.Issuer, v.issuer)
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return tenant.Principal{}, fmt.Errorf("authn.VerifyToken: audience does not match expected %q", v.audience)
	}
	if claims.TenantID == "" {
		return tenant.Principal{}, fmt.Errorf("authn.VerifyToken: token missing tenant_id claim")
	}
	if claims.Subject == "" {
		return tenant.Principal{}, fmt.Errorf("authn.VerifyToken: token missing sub claim")
	}

	role, ok := rbac.ParseRole(claims.Role)
	if !ok {
		return tenant.Principal{}, fmt.Errorf("authn.VerifyToken: unrecognized role %q", claims.Role)
	}

	return tenant.Principal{
		TenantID: claims.TenantID,
		UserID:   claims.Subject,
		Role:     role,
	}, nil
}
