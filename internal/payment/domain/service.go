package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
	"gorm.io/gorm"
)

// Gateway creates and looks up redirect-style transactions.
type Gateway interface {
	Provider() string
	CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error)
	GetTransaction(ctx context.Context, transactionID string) (*Transaction, error)
}

// WebhookAdapter authenticates and parses a provider's webhook deliveries.
type WebhookAdapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

type CreatePaymentRequest struct {
	InvoiceID     snowflake.ID
	Method        billingdomain.PaymentMethod
	CustomerEmail string
	RedirectURL   string
	Source        map[string]any
}

type CreatePaymentResult struct {
	Payment     billingdomain.Payment
	RedirectURL string
	// Confirmation is set when the gateway answered with a terminal status.
	Confirmation *billingdomain.ConfirmResult
}

type Service interface {
	CreatePayment(ctx context.Context, tc tenantctx.TenantContext, req CreatePaymentRequest) (*CreatePaymentResult, error)
	// SyncPayment polls the gateway and applies the result like a webhook would.
	SyncPayment(ctx context.Context, tc tenantctx.TenantContext, reference string) (*billingdomain.Payment, error)
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
