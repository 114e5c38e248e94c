// Package stripe handles tenants still billed through legacy external
// subscriptions: webhook deliveries and hosted billing portal sessions.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	"github.com/smallbiznis/washbay/internal/config"
	paymentdomain "github.com/smallbiznis/washbay/internal/payment/domain"
	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	Provider        = "stripe"
	signatureHeader = "Stripe-Signature"

	eventSubscriptionDeleted = "customer.subscription.deleted"
)

type Adapter struct {
	secretKey     string
	webhookSecret string
}

func New(cfg config.StripeConfig) *Adapter {
	if key := strings.TrimSpace(cfg.SecretKey); key != "" {
		stripe.Key = key
	}
	return &Adapter{
		secretKey:     strings.TrimSpace(cfg.SecretKey),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
	}
}

func (a *Adapter) Provider() string {
	return Provider
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return paymentdomain.ErrInvalidConfig
	}
	sigHeader := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if _, err := a.construct(payload, sigHeader); err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) construct(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, a.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// Parse maps subscription deletions to EventTypeSubscriptionEnded. Every other
// event type is acknowledged and ignored.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if string(event.Type) != eventSubscriptionDeleted {
		return nil, paymentdomain.ErrEventIgnored
	}
	if event.Data == nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	return &paymentdomain.PaymentEvent{
		Provider:        Provider,
		ProviderEventID: event.ID,
		Type:            paymentdomain.EventTypeSubscriptionEnded,
		SubscriptionID:  sub.ID,
		OccurredAt:      timestamp(event.Created),
		RawPayload:      payload,
	}, nil
}

// CreatePortalSession opens a hosted portal where the customer manages the
// legacy subscription.
func (a *Adapter) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if a.secretKey == "" {
		return "", billingdomain.ErrPortalUnavailable
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return "", errors.New("missing_customer")
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	session, err := portalsession.New(params)
	if err != nil {
		return "", err
	}
	return session.URL, nil
}

func timestamp(created int64) time.Time {
	if created <= 0 {
		return time.Time{}
	}
	return time.Unix(created, 0).UTC()
}
