package context

import (
	"context"
	"testing"
)

func TestCorrelationFields(t *testing.T) {
	ctx := context.Background()
	if got := RequestIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}

	ctx = WithRequestID(ctx, " req-1 ")
	ctx = WithTenant(ctx, "acme")
	ctx = WithActor(ctx, "user", "42")

	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected trimmed request id, got %q", got)
	}
	if got := TenantFromContext(ctx); got != "acme" {
		t.Fatalf("expected tenant acme, got %q", got)
	}
	actorType, actorID := ActorFromContext(ctx)
	if actorType != "user" || actorID != "42" {
		t.Fatalf("unexpected actor %q/%q", actorType, actorID)
	}
}
