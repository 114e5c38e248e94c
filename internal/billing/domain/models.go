// Package domain holds the plan and billing state machine: plans, invoices,
// payments, scheduled plan changes and invoice reminders.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Interval string

const (
	IntervalMonthly Interval = "MONTHLY"
	IntervalYearly  Interval = "YEARLY"
)

type Plan struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	Code      string          `gorm:"type:text;not null" json:"code"`
	Name      string          `gorm:"type:text;not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"price"`
	Interval  Interval        `gorm:"column:billing_interval;type:text;not null" json:"interval"`
	IsActive  bool            `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (Plan) TableName() string { return "plans" }

// IsFree reports whether the plan is a free or trial plan. Only an exact zero price counts.
func (p Plan) IsFree() bool {
	return p.Price.IsZero()
}

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// IsOpen reports whether the status is non-terminal.
func (s InvoiceStatus) IsOpen() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusOverdue
}

type Invoice struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	PlanID      snowflake.ID    `gorm:"not null" json:"plan_id"`
	Number      string          `gorm:"type:text;not null" json:"number"`
	Status      InvoiceStatus   `gorm:"type:text;not null" json:"status"`
	PeriodStart time.Time       `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time       `gorm:"not null" json:"period_end"`
	DueDate     time.Time       `gorm:"not null" json:"due_date"`
	Currency    string          `gorm:"type:text;not null" json:"currency"`
	Subtotal    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"subtotal"`
	TaxAmount   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"tax_amount"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_amount"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusApproved PaymentStatus = "APPROVED"
	PaymentStatusDeclined PaymentStatus = "DECLINED"
	PaymentStatusExpired  PaymentStatus = "EXPIRED"
	PaymentStatusError    PaymentStatus = "ERROR"
)

func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusApproved, PaymentStatusDeclined, PaymentStatusExpired, PaymentStatusError:
		return true
	default:
		return false
	}
}

// ParsePaymentStatus normalizes gateway statuses. VOIDED is treated as a decline.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch PaymentStatus(upper(raw)) {
	case PaymentStatusPending:
		return PaymentStatusPending, true
	case PaymentStatusApproved:
		return PaymentStatusApproved, true
	case PaymentStatusDeclined, "VOIDED":
		return PaymentStatusDeclined, true
	case PaymentStatusExpired:
		return PaymentStatusExpired, true
	case PaymentStatusError:
		return PaymentStatusError, true
	default:
		return "", false
	}
}

type PaymentMethod string

const (
	PaymentMethodPSE        PaymentMethod = "PSE"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
)

func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch PaymentMethod(upper(raw)) {
	case PaymentMethodPSE:
		return PaymentMethodPSE, true
	case PaymentMethodCreditCard, "CARD":
		return PaymentMethodCreditCard, true
	default:
		return "", false
	}
}

type Payment struct {
	ID                    snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID             snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	TenantID              snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	Status                PaymentStatus   `gorm:"type:text;not null" json:"status"`
	Method                PaymentMethod   `gorm:"type:text;not null" json:"method"`
	Provider              string          `gorm:"type:text;not null" json:"provider"`
	Amount                decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	ExternalReferenceCode string          `gorm:"type:text;not null" json:"external_reference_code"`
	ExternalTransactionID *string         `json:"external_transaction_id,omitempty"`
	RedirectURL           *string         `json:"redirect_url,omitempty"`
	StatusMessage         *string         `json:"status_message,omitempty"`
	PaidAt                *time.Time      `json:"paid_at,omitempty"`
	CreatedAt             time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

type ChangeStatus string

const (
	ChangeStatusScheduled ChangeStatus = "SCHEDULED"
	ChangeStatusApplied   ChangeStatus = "APPLIED"
	ChangeStatusCancelled ChangeStatus = "CANCELLED"
)

// ScheduledPlanChange defers a plan switch until its invoice is paid and the current period ends.
type ScheduledPlanChange struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID  `gorm:"not null;index" json:"tenant_id"`
	FromPlanID    *snowflake.ID `json:"from_plan_id,omitempty"`
	ToPlanID      snowflake.ID  `gorm:"not null" json:"to_plan_id"`
	InvoiceID     snowflake.ID  `gorm:"not null" json:"invoice_id"`
	EffectiveDate time.Time     `gorm:"not null" json:"effective_date"`
	Status        ChangeStatus  `gorm:"type:text;not null" json:"status"`
	AppliedAt     *time.Time    `json:"applied_at,omitempty"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null" json:"updated_at"`
}

func (ScheduledPlanChange) TableName() string { return "scheduled_plan_changes" }

type ReminderType string

const (
	ReminderBeforeDue ReminderType = "BEFORE_DUE"
	ReminderDue       ReminderType = "DUE"
	ReminderExpired   ReminderType = "EXPIRED"
)

type InvoiceReminder struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID    snowflake.ID `gorm:"not null" json:"invoice_id"`
	TenantID     snowflake.ID `gorm:"not null" json:"tenant_id"`
	Type         ReminderType `gorm:"type:text;not null" json:"type"`
	ScheduledFor time.Time    `gorm:"not null" json:"scheduled_for"`
	SentAt       *time.Time   `json:"sent_at,omitempty"`
	Outcome      *string      `json:"outcome,omitempty"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

func (InvoiceReminder) TableName() string { return "invoice_reminders" }
