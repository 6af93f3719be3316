package authn

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func baseClaims(issuer, tenantID, sub, role string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: tenantID,
		Role:     role,
	}
}

func TestVerifier_VerifyToken_Success(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv, _ := testJWKSServer(t, "kid-1", &key.PublicKey)

	jwks := NewJWKSCache(time.Minute)
	defer jwks.Stop()
	v := NewVerifier("https://auth.example.com/", "", srv.URL, jwks)

	raw := signToken(t, key, "kid-1", baseClaims("https://auth.example.com/", "tenant-1", "user-1", "admin"))

	p, err := v.VerifyToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if p.TenantID != "tenant-1" || p.UserID != "user-1" || string(p.Role) != "admin" {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestVerifier_VerifyToken_WrongIssuer(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv, _ := testJWKSServer(t, "kid-1", &key.PublicKey)

	jwks := NewJWKSCache(time.Minute)
	defer jwks.Stop()
	v := NewVerifier("https://auth.example.com/", "", srv.URL, jwks)

	raw := signToken(t, key, "kid-1", baseClaims("https://rogue.example.com/", "tenant-1", "user-1", "admin"))

	if _, err := v.VerifyToken(context.Background(), raw); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestVerifier_VerifyToken_UnrecognizedRole(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv, _ := testJWKSServer(t, "kid-1", &key.PublicKey)

	jwks := NewJWKSCache(time.Minute)
	defer jwks.Stop()
	v := NewVerifier("https://auth.example.com/", "", srv.URL, jwks)

	raw := signToken(t, key, "kid-1", baseClaims("https://auth.example.com/", "tenant-1", "user-1", "superuser"))

	if _, err := v.VerifyToken(context.Background(), raw); err == nil {
		t.Fatal("expected error for unrecognized role")
	}
}

func TestVerifier_VerifyToken_MissingTenant(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv, _ := testJWKSServer(t, "kid-1", &key.PublicKey)

	jwks := NewJWKSCache(time.Minute)
	defer jwks.Stop()
	v := NewVerifier("https://auth.example.com/", "", srv.URL, jwks)

	raw := signToken(t, key, "kid-1", baseClaims("https://auth.example.com/", "", "user-1", "admin"))

	if _, err := v.VerifyToken(context.Background(), raw); err == nil {
		t.Fatal("expected error for missing tenant_id claim")
	}
}

func TestVerifier_VerifyToken_ExpiredToken(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv, _ := testJWKSServer(t, "kid-1", &key.PublicKey)

	jwks := NewJWKSCache(time.Minute)
	defer jwks.Stop()
	v := NewVerifier("https://auth.example.com/", "", srv.URL, jwks)

	claims := baseClaims("https://auth.example.com/", "tenant-1", "user-1", "admin")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	raw := signToken(t, key, "kid-1", claims)

	if _, err := v.VerifyToken(context.Background(), raw); err == nil {
		t.Fatal("expected error for expired token")
	}
}
