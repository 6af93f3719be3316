package tenant

import (
	"context"
	"testing"

	"github.com/vaultline/core/internal/rbac"
)

func TestWithPrincipal_RoundTrip(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{TenantID: "t1", UserID: "u1", Role: rbac.Admin})

	p, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected principal to be present")
	}
	if p.TenantID != "t1" || p.UserID != "u1" || p.Role != rbac.Admin {
		t.Errorf("got %+v", p)
	}
}

func TestFromContext_Absent(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected no principal in empty context")
	}
}

func TestRequire_Absent(t *testing.T) {
	if _, err := Require(context.Background()); err == nil {
		t.Error("expected error when no principal bound")
	}
}

func TestWithPrincipal_Replaces(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{TenantID: "t1"})
	ctx = WithPrincipal(ctx, Principal{TenantID: "t2"})

	p, _ := FromContext(ctx)
	if p.TenantID != "t2" {
		t.Errorf("TenantID = %q, want t2 (replaced, not merged)", p.TenantID)
	}
}
