package tenantctx

import (
	"context"
	"testing"
)

func TestWithAndFrom(t *testing.T) {
	if _, ok := From(context.Background()); ok {
		t.Fatal("expected no tenant on empty context")
	}
	ctx := With(context.Background(), TenantContext{TenantID: 42, Slug: "acme"})
	tc, ok := From(ctx)
	if !ok || tc.TenantID != 42 || tc.Slug != "acme" {
		t.Fatalf("unexpected tenant context %+v", tc)
	}
	if _, ok := From(With(context.Background(), TenantContext{Slug: "acme"})); ok {
		t.Fatal("expected zero tenant id to be invalid")
	}
}
