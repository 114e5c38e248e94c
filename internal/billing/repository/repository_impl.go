package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/washbay/internal/billing/domain"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func take[T any](q *gorm.DB) (*T, error) {
	var item T
	err := q.Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

var openInvoiceStatuses = []domain.InvoiceStatus{domain.InvoiceStatusPending, domain.InvoiceStatusOverdue}

func (r *repository) CreatePlan(ctx context.Context, plan domain.Plan) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO plans (id, code, name, price, billing_interval, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.Code,
		plan.Name,
		plan.Price,
		plan.Interval,
		plan.IsActive,
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}

func (r *repository) FindPlan(ctx context.Context, id snowflake.ID) (*domain.Plan, error) {
	return take[domain.Plan](r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) ListActivePlans(ctx context.Context) ([]domain.Plan, error) {
	var plans []domain.Plan
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price ASC").
		Find(&plans).Error
	return plans, err
}

func (r *repository) FindTenant(ctx context.Context, id snowflake.ID) (*tenantdomain.Tenant, error) {
	return take[tenantdomain.Tenant](r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) LockTenant(ctx context.Context, id snowflake.ID) (*tenantdomain.Tenant, error) {
	return take[tenantdomain.Tenant](r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repository) SetTenantPlan(ctx context.Context, tenantID snowflake.ID, planID *snowflake.ID, periodEnd *time.Time, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE tenants SET plan_id = ?, trial_ends_at = ?, updated_at = ? WHERE id = ?`,
		planID,
		periodEnd,
		now,
		tenantID,
	).Error
}

func (r *repository) ClearSubscriptionRef(ctx context.Context, subscriptionID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE tenants SET stripe_subscription_id = NULL, updated_at = ? WHERE stripe_subscription_id = ?`,
		now,
		subscriptionID,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) CreateInvoice(ctx context.Context, invoice domain.Invoice) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, tenant_id, plan_id, number, status, period_start, period_end, due_date,
			currency, subtotal, tax_amount, total_amount, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.TenantID,
		invoice.PlanID,
		invoice.Number,
		invoice.Status,
		invoice.PeriodStart,
		invoice.PeriodEnd,
		invoice.DueDate,
		invoice.Currency,
		invoice.Subtotal,
		invoice.TaxAmount,
		invoice.TotalAmount,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repository) FindInvoice(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	return take[domain.Invoice](r.db.WithContext(ctx).Where("id = ?", id))
}

// FindOpenInvoice returns the most recent PENDING or OVERDUE invoice.
func (r *repository) FindOpenInvoice(ctx context.Context, tenantID snowflake.ID) (*domain.Invoice, error) {
	return take[domain.Invoice](r.db.WithContext(ctx).
		Where("tenant_id = ? AND status IN ?", tenantID, openInvoiceStatuses).
		Order("created_at DESC"))
}

func (r *repository) FindOpenInvoiceForPlan(ctx context.Context, tenantID, planID snowflake.ID) (*domain.Invoice, error) {
	return take[domain.Invoice](r.db.WithContext(ctx).
		Where("tenant_id = ? AND plan_id = ? AND status IN ?", tenantID, planID, openInvoiceStatuses))
}

// MarkInvoicePaid moves any unpaid invoice to PAID. A payment captured after
// cancellation still settles the invoice.
func (r *repository) MarkInvoicePaid(ctx context.Context, id snowflake.ID, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.InvoiceStatusPaid,
		paidAt,
		paidAt,
		id,
		domain.InvoiceStatusPaid,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) MarkInvoiceOverdue(ctx context.Context, id snowflake.ID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.InvoiceStatusOverdue,
		now,
		id,
		domain.InvoiceStatusPending,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) CancelPendingInvoices(ctx context.Context, tenantID snowflake.ID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE tenant_id = ? AND status = ?`,
		domain.InvoiceStatusCancelled,
		now,
		tenantID,
		domain.InvoiceStatusPending,
	)
	return res.RowsAffected, res.Error
}

func (r *repository) CreateScheduledChange(ctx context.Context, change domain.ScheduledPlanChange) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO scheduled_plan_changes (
			id, tenant_id, from_plan_id, to_plan_id, invoice_id, effective_date, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		change.ID,
		change.TenantID,
		change.FromPlanID,
		change.ToPlanID,
		change.InvoiceID,
		change.EffectiveDate,
		change.Status,
		change.CreatedAt,
		change.UpdatedAt,
	).Error
}

func (r *repository) FindScheduledChange(ctx context.Context, id snowflake.ID) (*domain.ScheduledPlanChange, error) {
	return take[domain.ScheduledPlanChange](r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindScheduledChangeByInvoice(ctx context.Context, invoiceID snowflake.ID) (*domain.ScheduledPlanChange, error) {
	return take[domain.ScheduledPlanChange](r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID))
}

// DueScheduledChanges skips rows another runner holds locked.
func (r *repository) DueScheduledChanges(ctx context.Context, now time.Time, after domain.Cursor, limit int) ([]domain.ScheduledPlanChange, error) {
	var changes []domain.ScheduledPlanChange
	err := seek(r.db.WithContext(ctx), "effective_date", after).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND effective_date <= ?", domain.ChangeStatusScheduled, now).
		Order("effective_date ASC, id ASC").
		Limit(limit).
		Find(&changes).Error
	return changes, err
}

// ResolveScheduledChange moves a SCHEDULED change to a terminal status. It reports
// false when the row was already resolved by someone else.
func (r *repository) ResolveScheduledChange(ctx context.Context, id snowflake.ID, status domain.ChangeStatus, now time.Time) (bool, error) {
	column := "cancelled_at"
	if status == domain.ChangeStatusApplied {
		column = "applied_at"
	}
	res := r.db.WithContext(ctx).Exec(
		`UPDATE scheduled_plan_changes SET status = ?, `+column+` = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		now,
		now,
		id,
		domain.ChangeStatusScheduled,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) CancelScheduledChanges(ctx context.Context, tenantID snowflake.ID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE scheduled_plan_changes SET status = ?, cancelled_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND status = ?`,
		domain.ChangeStatusCancelled,
		now,
		now,
		tenantID,
		domain.ChangeStatusScheduled,
	)
	return res.RowsAffected, res.Error
}

// CreateReminders ignores reminders that already exist for the invoice.
func (r *repository) CreateReminders(ctx context.Context, reminders []domain.InvoiceReminder) error {
	if len(reminders) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(&reminders).Error
}

func (r *repository) FindReminder(ctx context.Context, id snowflake.ID) (*domain.InvoiceReminder, error) {
	return take[domain.InvoiceReminder](r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) DueReminders(ctx context.Context, now time.Time, after domain.Cursor, limit int) ([]domain.InvoiceReminder, error) {
	var reminders []domain.InvoiceReminder
	err := seek(r.db.WithContext(ctx), "scheduled_for", after).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("sent_at IS NULL AND scheduled_for <= ?", now).
		Order("scheduled_for ASC, id ASC").
		Limit(limit).
		Find(&reminders).Error
	return reminders, err
}

// seek restricts a scan ordered by (column, id) to rows after the cursor.
func seek(db *gorm.DB, column string, after domain.Cursor) *gorm.DB {
	if after.IsZero() {
		return db
	}
	return db.Where("("+column+" > ? OR ("+column+" = ? AND id > ?))", after.At, after.At, after.ID)
}

// MarkReminderSent claims the reminder. Only the first caller gets true.
func (r *repository) MarkReminderSent(ctx context.Context, id snowflake.ID, now time.Time, outcome string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE invoice_reminders SET sent_at = ?, outcome = ? WHERE id = ? AND sent_at IS NULL`,
		now,
		outcome,
		id,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) SetReminderOutcome(ctx context.Context, id snowflake.ID, outcome string) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE invoice_reminders SET outcome = ? WHERE id = ?`,
		outcome,
		id,
	).Error
}

func (r *repository) CreatePayment(ctx context.Context, payment domain.Payment) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, invoice_id, tenant_id, status, method, provider, amount, external_reference_code,
			external_transaction_id, redirect_url, status_message, paid_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.InvoiceID,
		payment.TenantID,
		payment.Status,
		payment.Method,
		payment.Provider,
		payment.Amount,
		payment.ExternalReferenceCode,
		payment.ExternalTransactionID,
		payment.RedirectURL,
		payment.StatusMessage,
		payment.PaidAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repository) FindPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	return take[domain.Payment](r.db.WithContext(ctx).Where("external_reference_code = ?", reference))
}

func (r *repository) LockPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	return take[domain.Payment](r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_reference_code = ?", reference))
}

// TransitionPayment applies a gateway status only while the payment is still PENDING.
func (r *repository) TransitionPayment(ctx context.Context, id snowflake.ID, update domain.PaymentUpdate, now time.Time) (bool, error) {
	var paidAt *time.Time
	if update.Status == domain.PaymentStatusApproved {
		paidAt = &now
	}
	res := r.db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?,
			 external_transaction_id = COALESCE(?, external_transaction_id),
			 status_message = COALESCE(?, status_message),
			 paid_at = ?,
			 updated_at = ?
		 WHERE id = ? AND status = ?`,
		update.Status,
		nullable(update.TransactionID),
		nullable(update.Message),
		paidAt,
		now,
		id,
		domain.PaymentStatusPending,
	)
	return res.RowsAffected > 0, res.Error
}

// AttachPaymentTransaction keeps a transaction id a webhook may have stored first.
func (r *repository) AttachPaymentTransaction(ctx context.Context, reference string, update domain.PaymentUpdate, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET external_transaction_id = COALESCE(external_transaction_id, ?),
			 redirect_url = COALESCE(?, redirect_url),
			 updated_at = ?
		 WHERE external_reference_code = ?`,
		nullable(update.TransactionID),
		nullable(update.RedirectURL),
		now,
		reference,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) CountPendingPayments(ctx context.Context, invoiceID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("invoice_id = ? AND status = ?", invoiceID, domain.PaymentStatusPending).
		Count(&count).Error
	return count, err
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
