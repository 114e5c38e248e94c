package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
)

type Service interface {
	ListPlans(ctx context.Context) ([]Plan, error)
	PlanStatus(ctx context.Context, tenantID snowflake.ID) (PlanStatus, error)

	// ChangePlan moves the tenant to planID. A nil planID disconnects the tenant.
	ChangePlan(ctx context.Context, tc tenantctx.TenantContext, req ChangePlanRequest) (*ChangePlanResult, error)
	Disconnect(ctx context.Context, tc tenantctx.TenantContext) error

	GetInvoice(ctx context.Context, tc tenantctx.TenantContext, id snowflake.ID) (*Invoice, error)
	// PayableInvoice returns the invoice when a new payment attempt may attach to it.
	PayableInvoice(ctx context.Context, tc tenantctx.TenantContext, id snowflake.ID) (*Invoice, error)
	RecordPayment(ctx context.Context, payment Payment) error
	// AttachTransaction stores the gateway transaction id and redirect URL on a
	// recorded payment.
	AttachTransaction(ctx context.Context, reference string, update PaymentUpdate) error
	// AbandonPayment moves a PENDING payment the gateway never accepted to ERROR.
	AbandonPayment(ctx context.Context, reference, message string) error
	FindPayment(ctx context.Context, reference string) (*Payment, error)

	// ConfirmPayment applies a gateway status to the payment identified by its reference.
	// Only PENDING payments transition; repeated confirmations are no-ops.
	ConfirmPayment(ctx context.Context, reference string, update PaymentUpdate) (*ConfirmResult, error)
	EndLegacySubscription(ctx context.Context, subscriptionID string) (bool, error)

	// DueScheduledChanges returns due changes ordered by (effective date, id),
	// starting after the cursor.
	DueScheduledChanges(ctx context.Context, after Cursor, limit int) ([]ScheduledPlanChange, error)
	ApplyScheduledChange(ctx context.Context, id snowflake.ID) (ChangeOutcome, error)
	DueReminders(ctx context.Context, after Cursor, limit int) ([]InvoiceReminder, error)
	ProcessReminder(ctx context.Context, id snowflake.ID) (ReminderOutcome, error)
}

type ChangePlanRequest struct {
	PlanID *snowflake.ID
	// ReturnURL is where the legacy billing portal sends the user back to.
	ReturnURL string
}

type ChangePlanKind string

const (
	ChangeKindPortal    ChangePlanKind = "portal"
	ChangeKindInvoice   ChangePlanKind = "invoice"
	ChangeKindFree      ChangePlanKind = "free"
	ChangeKindScheduled ChangePlanKind = "scheduled"
	ChangeKindRemoved   ChangePlanKind = "disconnected"
)

type ChangePlanResult struct {
	Kind          ChangePlanKind
	URL           string
	Invoice       *Invoice
	Change        *ScheduledPlanChange
	EffectiveDate *time.Time
	Message       string
}

type PaymentUpdate struct {
	Status        PaymentStatus
	TransactionID string
	Message       string
	RedirectURL   string
}

type ConfirmResult struct {
	Payment     Payment
	Transitions bool
	InvoicePaid bool
	Activated   bool
	Overdue     bool
}

// Cursor is the position of the last row a batched scan returned. The zero
// value starts from the beginning.
type Cursor struct {
	At time.Time
	ID snowflake.ID
}

func (c Cursor) IsZero() bool { return c.ID == 0 }

type ChangeOutcome string

const (
	ChangeOutcomeApplied   ChangeOutcome = "applied"
	ChangeOutcomeCancelled ChangeOutcome = "cancelled"
	ChangeOutcomePending   ChangeOutcome = "pending"
	ChangeOutcomeSkipped   ChangeOutcome = "skipped"
)

type ReminderOutcome string

const (
	ReminderOutcomeSent    ReminderOutcome = "sent"
	ReminderOutcomeNoop    ReminderOutcome = "noop"
	ReminderOutcomeSkipped ReminderOutcome = "skipped"
	ReminderOutcomeFailed  ReminderOutcome = "failed"
)

// PortalSessions opens a hosted billing portal for legacy external subscriptions.
type PortalSessions interface {
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

type ReminderNotice struct {
	TenantID     snowflake.ID
	TenantName   string
	TenantSlug   string
	BillingEmail string
	Type         ReminderType
	InvoiceID    snowflake.ID
	Number       string
	Total        decimal.Decimal
	Currency     string
	DueDate      time.Time
}

// Notifier delivers invoice reminders.
type Notifier interface {
	SendInvoiceReminder(ctx context.Context, notice ReminderNotice) error
}
