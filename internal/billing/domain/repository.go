package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreatePlan(ctx context.Context, plan Plan) error
	FindPlan(ctx context.Context, id snowflake.ID) (*Plan, error)
	ListActivePlans(ctx context.Context) ([]Plan, error)

	FindTenant(ctx context.Context, id snowflake.ID) (*tenantdomain.Tenant, error)
	// LockTenant reads the tenant row FOR UPDATE; it serializes billing transitions per tenant.
	LockTenant(ctx context.Context, id snowflake.ID) (*tenantdomain.Tenant, error)
	SetTenantPlan(ctx context.Context, tenantID snowflake.ID, planID *snowflake.ID, periodEnd *time.Time, now time.Time) error
	ClearSubscriptionRef(ctx context.Context, subscriptionID string, now time.Time) (bool, error)

	CreateInvoice(ctx context.Context, invoice Invoice) error
	FindInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	FindOpenInvoice(ctx context.Context, tenantID snowflake.ID) (*Invoice, error)
	FindOpenInvoiceForPlan(ctx context.Context, tenantID, planID snowflake.ID) (*Invoice, error)
	MarkInvoicePaid(ctx context.Context, id snowflake.ID, paidAt time.Time) (bool, error)
	MarkInvoiceOverdue(ctx context.Context, id snowflake.ID, now time.Time) (bool, error)
	CancelPendingInvoices(ctx context.Context, tenantID snowflake.ID, now time.Time) (int64, error)

	CreateScheduledChange(ctx context.Context, change ScheduledPlanChange) error
	FindScheduledChange(ctx context.Context, id snowflake.ID) (*ScheduledPlanChange, error)
	FindScheduledChangeByInvoice(ctx context.Context, invoiceID snowflake.ID) (*ScheduledPlanChange, error)
	DueScheduledChanges(ctx context.Context, now time.Time, after Cursor, limit int) ([]ScheduledPlanChange, error)
	ResolveScheduledChange(ctx context.Context, id snowflake.ID, status ChangeStatus, now time.Time) (bool, error)
	CancelScheduledChanges(ctx context.Context, tenantID snowflake.ID, now time.Time) (int64, error)

	CreateReminders(ctx context.Context, reminders []InvoiceReminder) error
	FindReminder(ctx context.Context, id snowflake.ID) (*InvoiceReminder, error)
	DueReminders(ctx context.Context, now time.Time, after Cursor, limit int) ([]InvoiceReminder, error)
	MarkReminderSent(ctx context.Context, id snowflake.ID, now time.Time, outcome string) (bool, error)
	SetReminderOutcome(ctx context.Context, id snowflake.ID, outcome string) error

	CreatePayment(ctx context.Context, payment Payment) error
	FindPaymentByReference(ctx context.Context, reference string) (*Payment, error)
	LockPaymentByReference(ctx context.Context, reference string) (*Payment, error)
	TransitionPayment(ctx context.Context, id snowflake.ID, update PaymentUpdate, now time.Time) (bool, error)
	AttachPaymentTransaction(ctx context.Context, reference string, update PaymentUpdate, now time.Time) (bool, error)
	CountPendingPayments(ctx context.Context, invoiceID snowflake.ID) (int64, error)
}
