package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	"gorm.io/datatypes"
)

// EventRecord is one webhook delivery, keyed by the provider's event id.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Reference       *string        `json:"reference,omitempty"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypeTransactionUpdated = "transaction_updated"
	EventTypeSubscriptionEnded  = "subscription_ended"
)

// PaymentEvent is the canonical event parsed by webhook adapters.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	// Reference is our external reference code for transaction events.
	Reference      string
	TransactionID  string
	Status         billingdomain.PaymentStatus
	Message        string
	SubscriptionID string
	OccurredAt     time.Time
	RawPayload     []byte
}

// TransactionRequest is what a redirect gateway needs to open a transaction.
type TransactionRequest struct {
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	Method        billingdomain.PaymentMethod
	CustomerEmail string
	RedirectURL   string
	// Source carries the method specific fields (bank, document, card token).
	Source map[string]any
}

// Transaction is the gateway's view of a payment attempt.
type Transaction struct {
	ID          string
	Reference   string
	Status      billingdomain.PaymentStatus
	RedirectURL string
	Message     string
}
