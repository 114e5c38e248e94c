package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/washbay/internal/payment/domain"
	"github.com/stripe/stripe-go/v82/webhook"
)

func signedHeader(secret string, payload []byte) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","object":"event","type":"invoice.paid","data":{"object":{}}}`)

	adapter := &Adapter{webhookSecret: secret}
	headers := http.Header{}
	headers.Set(signatureHeader, signedHeader(secret, payload))
	if err := adapter.Verify(context.Background(), payload, headers); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	headers.Set(signatureHeader, signedHeader("wrong", payload))
	if err := adapter.Verify(context.Background(), payload, headers); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	if err := adapter.Verify(context.Background(), payload, http.Header{}); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected missing header to fail, got %v", err)
	}
}

func TestParseEvents(t *testing.T) {
	adapter := &Adapter{webhookSecret: "whsec_test"}

	deleted, _ := json.Marshal(map[string]any{
		"id":      "evt_sub",
		"object":  "event",
		"type":    "customer.subscription.deleted",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{"id": "sub_123", "object": "subscription"},
		},
	})
	event, err := adapter.Parse(context.Background(), deleted)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if event.Type != paymentdomain.EventTypeSubscriptionEnded || event.SubscriptionID != "sub_123" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.ProviderEventID != "evt_sub" {
		t.Fatalf("expected provider event id, got %s", event.ProviderEventID)
	}

	paid, _ := json.Marshal(map[string]any{
		"id":     "evt_paid",
		"object": "event",
		"type":   "invoice.paid",
		"data":   map[string]any{"object": map[string]any{"id": "in_1"}},
	})
	if _, err := adapter.Parse(context.Background(), paid); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected other events to be ignored, got %v", err)
	}
}
