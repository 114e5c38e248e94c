package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "wompi"),
		attribute.String("tenant_id", "456"),
		attribute.String("transition", "plan_applied"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "tenant_id" {
			t.Fatalf("expected tenant_id to be dropped")
		}
	}
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	m.RecordRelayHop(ctx, "apex", "redirected")
	m.RecordPaymentEvent(ctx, "wompi", "transaction.updated")
	m.RecordBillingTransition(ctx, "invoice_paid")
	m.RecordRateLimitAllowed(ctx, "session_relay")
	m.RecordRateLimitDenied(ctx, "session_relay", "burst")

	var nilMetrics *Metrics
	nilMetrics.RecordRelayHop(ctx, "tenant", "session_set")
}
