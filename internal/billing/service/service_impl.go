package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/washbay/internal/billing/domain"
	"github.com/smallbiznis/washbay/internal/clock"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/observability/logger"
	"github.com/smallbiznis/washbay/internal/observability/metrics"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
	"github.com/smallbiznis/washbay/pkg/db"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Repo     domain.Repository
	GenID    *snowflake.Node
	Clock    clock.Clock
	Billing  *config.BillingConfigHolder
	Log      *zap.Logger
	Portal   domain.PortalSessions `optional:"true"`
	Notifier domain.Notifier       `optional:"true"`
	Metrics  *metrics.Metrics      `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	repo     domain.Repository
	genID    *snowflake.Node
	clock    clock.Clock
	billing  *config.BillingConfigHolder
	log      *zap.Logger
	portal   domain.PortalSessions
	notifier domain.Notifier
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		repo:     p.Repo,
		genID:    p.GenID,
		clock:    p.Clock,
		billing:  p.Billing,
		log:      p.Log.Named("billing.service"),
		portal:   p.Portal,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

func (s *Service) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	return s.repo.ListActivePlans(ctx)
}

func (s *Service) PlanStatus(ctx context.Context, tenantID snowflake.ID) (domain.PlanStatus, error) {
	tenant, err := s.repo.FindTenant(ctx, tenantID)
	if err != nil {
		return domain.PlanStatus{}, err
	}
	if tenant == nil {
		return domain.PlanStatus{}, tenantdomain.ErrTenantNotFound
	}

	var plan *domain.Plan
	if tenant.PlanID != nil {
		plan, err = s.repo.FindPlan(ctx, *tenant.PlanID)
		if err != nil {
			return domain.PlanStatus{}, err
		}
	}
	pending, err := s.repo.FindOpenInvoice(ctx, tenant.ID)
	if err != nil {
		return domain.PlanStatus{}, err
	}

	return domain.GetTenantPlanStatus(*tenant, plan, pending, s.clock.Now(), s.billing.Get().ExpiryWarningDays), nil
}

func (s *Service) ChangePlan(ctx context.Context, tc tenantctx.TenantContext, req domain.ChangePlanRequest) (*domain.ChangePlanResult, error) {
	if req.PlanID == nil {
		if err := s.Disconnect(ctx, tc); err != nil {
			return nil, err
		}
		return &domain.ChangePlanResult{Kind: domain.ChangeKindRemoved, Message: "Plan disconnected"}, nil
	}

	plan, err := s.repo.FindPlan(ctx, *req.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil || !plan.IsActive {
		return nil, domain.ErrPlanNotFound
	}

	tenant, err := s.repo.FindTenant(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, tenantdomain.ErrTenantNotFound
	}
	if tenant.HasStripeCustomer() && tenant.HasActiveSubscription() && s.portal != nil {
		url, err := s.portal.CreatePortalSession(ctx, *tenant.StripeCustomerID, req.ReturnURL)
		if err != nil {
			s.log.Warn("billing portal session failed", zap.String("tenant", tc.Slug), zap.Error(err))
			return nil, domain.ErrPortalUnavailable
		}
		return &domain.ChangePlanResult{Kind: domain.ChangeKindPortal, URL: url}, nil
	}

	cfg := s.billing.Get()
	var result *domain.ChangePlanResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockTenant(ctx, tc.TenantID)
		if err != nil {
			return err
		}
		if locked == nil {
			return tenantdomain.ErrTenantNotFound
		}

		now := s.clock.Now()
		if plan.IsFree() {
			periodEnd := now.AddDate(0, 0, cfg.FreePlanDays)
			if err := repo.SetTenantPlan(ctx, locked.ID, &plan.ID, &periodEnd, now); err != nil {
				return err
			}
			result = &domain.ChangePlanResult{
				Kind:          domain.ChangeKindFree,
				EffectiveDate: &now,
				Message:       fmt.Sprintf("Plan %s activated", plan.Name),
			}
			return nil
		}

		result, err = s.invoicePlanChange(ctx, repo, *locked, *plan, cfg, now)
		return err
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateInvoice
		}
		return nil, err
	}

	s.metrics.RecordBillingTransition(ctx, "plan_change_"+string(result.Kind))
	logger.WithContext(ctx, s.log).Info("plan change requested",
		zap.String("tenant", tc.Slug),
		zap.String("plan_id", plan.ID.String()),
		zap.String("kind", string(result.Kind)),
	)
	return result, nil
}

// invoicePlanChange bills a paid plan. With an active paid period the invoice
// covers the next period and the switch is deferred to its start.
func (s *Service) invoicePlanChange(ctx context.Context, repo domain.Repository, tenant tenantdomain.Tenant, plan domain.Plan, cfg config.BillingConfig, now time.Time) (*domain.ChangePlanResult, error) {
	existing, err := repo.FindOpenInvoiceForPlan(ctx, tenant.ID, plan.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateInvoice
	}

	active, err := s.hasActivePaidPeriod(ctx, repo, tenant, now)
	if err != nil {
		return nil, err
	}

	start := domain.StartOfDay(now)
	if active {
		start = *tenant.TrialEndsAt
	}
	periodStart, periodEnd := domain.Period(start, plan.Interval)
	totals := domain.ComputeTotals(plan.Price, cfg.TaxRate)
	dueDate := now.AddDate(0, 0, cfg.InvoiceDueDays)

	invoice := domain.Invoice{
		ID:          s.genID.Generate(),
		TenantID:    tenant.ID,
		PlanID:      plan.ID,
		Number:      invoiceNumber(cfg.InvoiceNumberPrefix, periodStart),
		Status:      domain.InvoiceStatusPending,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		DueDate:     dueDate,
		Currency:    cfg.Currency,
		Subtotal:    totals.Subtotal,
		TaxAmount:   totals.Tax,
		TotalAmount: totals.Total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.CreateInvoice(ctx, invoice); err != nil {
		return nil, err
	}

	schedule := domain.ReminderSchedule(dueDate, cfg.ReminderBeforeDays, cfg.ExpiredGraceDays)
	reminders := make([]domain.InvoiceReminder, 0, len(schedule))
	for _, kind := range []domain.ReminderType{domain.ReminderBeforeDue, domain.ReminderDue, domain.ReminderExpired} {
		reminders = append(reminders, domain.InvoiceReminder{
			ID:           s.genID.Generate(),
			InvoiceID:    invoice.ID,
			TenantID:     tenant.ID,
			Type:         kind,
			ScheduledFor: schedule[kind],
			CreatedAt:    now,
		})
	}
	if err := repo.CreateReminders(ctx, reminders); err != nil {
		return nil, err
	}

	result := &domain.ChangePlanResult{Kind: domain.ChangeKindInvoice, Invoice: &invoice}
	if !active {
		return result, nil
	}

	change := domain.ScheduledPlanChange{
		ID:            s.genID.Generate(),
		TenantID:      tenant.ID,
		FromPlanID:    tenant.PlanID,
		ToPlanID:      plan.ID,
		InvoiceID:     invoice.ID,
		EffectiveDate: periodStart,
		Status:        domain.ChangeStatusScheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.CreateScheduledChange(ctx, change); err != nil {
		return nil, err
	}
	result.Kind = domain.ChangeKindScheduled
	result.Change = &change
	result.EffectiveDate = &change.EffectiveDate
	return result, nil
}

func (s *Service) hasActivePaidPeriod(ctx context.Context, repo domain.Repository, tenant tenantdomain.Tenant, now time.Time) (bool, error) {
	if tenant.PlanID == nil || tenant.TrialEndsAt == nil || !tenant.TrialEndsAt.After(now) {
		return false, nil
	}
	current, err := repo.FindPlan(ctx, *tenant.PlanID)
	if err != nil {
		return false, err
	}
	return current != nil && current.Price.IsPositive(), nil
}

func invoiceNumber(prefix string, periodStart time.Time) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "WB"
	}
	return fmt.Sprintf("%s-%s-%s", prefix, periodStart.Format("200601"), ulid.Make().String())
}

// Disconnect detaches the plan and cancels pending invoices and scheduled changes.
func (s *Service) Disconnect(ctx context.Context, tc tenantctx.TenantContext) error {
	var cancelledInvoices, cancelledChanges int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		tenant, err := repo.LockTenant(ctx, tc.TenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return tenantdomain.ErrTenantNotFound
		}

		now := s.clock.Now()
		if err := repo.SetTenantPlan(ctx, tenant.ID, nil, nil, now); err != nil {
			return err
		}
		if cancelledInvoices, err = repo.CancelPendingInvoices(ctx, tenant.ID, now); err != nil {
			return err
		}
		cancelledChanges, err = repo.CancelScheduledChanges(ctx, tenant.ID, now)
		return err
	})
	if err != nil {
		return err
	}

	s.metrics.RecordBillingTransition(ctx, "plan_disconnected")
	logger.WithContext(ctx, s.log).Info("plan disconnected",
		zap.String("tenant", tc.Slug),
		zap.Int64("cancelled_invoices", cancelledInvoices),
		zap.Int64("cancelled_changes", cancelledChanges),
	)
	return nil
}

func (s *Service) GetInvoice(ctx context.Context, tc tenantctx.TenantContext, id snowflake.ID) (*domain.Invoice, error) {
	invoice, err := s.repo.FindInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil || invoice.TenantID != tc.TenantID {
		return nil, domain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) PayableInvoice(ctx context.Context, tc tenantctx.TenantContext, id snowflake.ID) (*domain.Invoice, error) {
	invoice, err := s.GetInvoice(ctx, tc, id)
	if err != nil {
		return nil, err
	}
	switch invoice.Status {
	case domain.InvoiceStatusPaid:
		return nil, domain.ErrInvoiceAlreadyPaid
	case domain.InvoiceStatusCancelled:
		return nil, domain.ErrInvoiceNotPayable
	}
	return invoice, nil
}

// RecordPayment stores a PENDING payment before the gateway is contacted. The
// invoice is re-checked so a payment never attaches to an invoice that got paid
// or cancelled meanwhile.
func (s *Service) RecordPayment(ctx context.Context, payment domain.Payment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invoice, err := repo.FindInvoice(ctx, payment.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil || invoice.TenantID != payment.TenantID {
			return domain.ErrInvoiceNotFound
		}
		switch invoice.Status {
		case domain.InvoiceStatusPaid:
			return domain.ErrInvoiceAlreadyPaid
		case domain.InvoiceStatusCancelled:
			return domain.ErrInvoiceNotPayable
		}
		return repo.CreatePayment(ctx, payment)
	})
}

func (s *Service) AttachTransaction(ctx context.Context, reference string, update domain.PaymentUpdate) error {
	attached, err := s.repo.AttachPaymentTransaction(ctx, strings.TrimSpace(reference), update, s.clock.Now())
	if err != nil {
		return err
	}
	if !attached {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// AbandonPayment does not touch the invoice.
func (s *Service) AbandonPayment(ctx context.Context, reference, message string) error {
	payment, err := s.FindPayment(ctx, reference)
	if err != nil {
		return err
	}
	update := domain.PaymentUpdate{Status: domain.PaymentStatusError, Message: message}
	moved, err := s.repo.TransitionPayment(ctx, payment.ID, update, s.clock.Now())
	if err != nil {
		return err
	}
	if moved {
		s.metrics.RecordBillingTransition(ctx, "payment_abandoned")
	}
	return nil
}

func (s *Service) FindPayment(ctx context.Context, reference string) (*domain.Payment, error) {
	payment, err := s.repo.FindPaymentByReference(ctx, strings.TrimSpace(reference))
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) ConfirmPayment(ctx context.Context, reference string, update domain.PaymentUpdate) (*domain.ConfirmResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.ErrPaymentNotFound
	}
	if update.Status == "" {
		return nil, domain.ErrInvalidPaymentStatus
	}

	result := &domain.ConfirmResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.LockPaymentByReference(ctx, reference)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrPaymentNotFound
		}
		result.Payment = *payment
		if payment.Status.IsTerminal() || update.Status == domain.PaymentStatusPending {
			return nil
		}

		now := s.clock.Now()
		moved, err := repo.TransitionPayment(ctx, payment.ID, update, now)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		result.Transitions = true
		result.Payment.Status = update.Status
		if update.Status == domain.PaymentStatusApproved {
			result.Payment.PaidAt = &now
		}

		invoice, err := repo.FindInvoice(ctx, payment.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrInvoiceNotFound
		}

		if update.Status == domain.PaymentStatusApproved {
			return s.settleInvoice(ctx, repo, *invoice, now, result)
		}
		return s.handleFailedPayment(ctx, repo, *invoice, now, result)
	})
	if err != nil {
		return nil, err
	}

	if result.Transitions {
		s.metrics.RecordBillingTransition(ctx, "payment_"+strings.ToLower(string(result.Payment.Status)))
		logger.WithContext(ctx, s.log).Info("payment confirmed",
			zap.String("payment_id", result.Payment.ID.String()),
			zap.String("invoice_id", result.Payment.InvoiceID.String()),
			zap.String("status", string(result.Payment.Status)),
			zap.Bool("invoice_paid", result.InvoicePaid),
			zap.Bool("activated", result.Activated),
		)
	}
	return result, nil
}

// settleInvoice marks the invoice paid and activates its plan in the caller's
// transaction. A next-period invoice backed by a scheduled change is activated
// by reconciliation once the change becomes effective.
func (s *Service) settleInvoice(ctx context.Context, repo domain.Repository, invoice domain.Invoice, now time.Time, result *domain.ConfirmResult) error {
	paid, err := repo.MarkInvoicePaid(ctx, invoice.ID, now)
	if err != nil {
		return err
	}
	if !paid {
		return nil
	}
	result.InvoicePaid = true

	tenant, err := repo.LockTenant(ctx, invoice.TenantID)
	if err != nil {
		return err
	}
	if tenant == nil {
		return tenantdomain.ErrTenantNotFound
	}

	change, err := repo.FindScheduledChangeByInvoice(ctx, invoice.ID)
	if err != nil {
		return err
	}
	if change != nil && change.Status == domain.ChangeStatusScheduled {
		if change.EffectiveDate.After(now) {
			return nil
		}
		if _, err := repo.ResolveScheduledChange(ctx, change.ID, domain.ChangeStatusApplied, now); err != nil {
			return err
		}
	}

	periodEnd := invoice.PeriodEnd
	if err := repo.SetTenantPlan(ctx, tenant.ID, &invoice.PlanID, &periodEnd, now); err != nil {
		return err
	}
	result.Activated = true
	return nil
}

func (s *Service) handleFailedPayment(ctx context.Context, repo domain.Repository, invoice domain.Invoice, now time.Time, result *domain.ConfirmResult) error {
	if invoice.Status != domain.InvoiceStatusPending || now.Before(invoice.DueDate) {
		return nil
	}
	pending, err := repo.CountPendingPayments(ctx, invoice.ID)
	if err != nil {
		return err
	}
	if pending > 0 {
		return nil
	}
	result.Overdue, err = repo.MarkInvoiceOverdue(ctx, invoice.ID, now)
	return err
}

func (s *Service) EndLegacySubscription(ctx context.Context, subscriptionID string) (bool, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return false, nil
	}
	cleared, err := s.repo.ClearSubscriptionRef(ctx, subscriptionID, s.clock.Now())
	if err != nil {
		return false, err
	}
	if cleared {
		s.metrics.RecordBillingTransition(ctx, "legacy_subscription_ended")
	}
	return cleared, nil
}

func (s *Service) DueScheduledChanges(ctx context.Context, after domain.Cursor, limit int) ([]domain.ScheduledPlanChange, error) {
	return s.repo.DueScheduledChanges(ctx, s.clock.Now(), after, limit)
}

// ApplyScheduledChange resolves one due change. It applies when the invoice is
// paid, cancels when the invoice went overdue or was cancelled, and otherwise
// leaves the change pending. A change resolved by a concurrent runner is skipped.
func (s *Service) ApplyScheduledChange(ctx context.Context, id snowflake.ID) (domain.ChangeOutcome, error) {
	outcome := domain.ChangeOutcomeSkipped
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		change, err := repo.FindScheduledChange(ctx, id)
		if err != nil {
			return err
		}
		if change == nil {
			return domain.ErrScheduledChangeAbsent
		}
		now := s.clock.Now()
		if change.Status != domain.ChangeStatusScheduled || change.EffectiveDate.After(now) {
			return nil
		}

		tenant, err := repo.LockTenant(ctx, change.TenantID)
		if err != nil {
			return err
		}
		invoice, err := repo.FindInvoice(ctx, change.InvoiceID)
		if err != nil {
			return err
		}

		var target domain.ChangeStatus
		switch {
		case tenant == nil || invoice == nil:
			target = domain.ChangeStatusCancelled
		case invoice.Status == domain.InvoiceStatusPaid && tenant.PlanID != nil:
			target = domain.ChangeStatusApplied
		case invoice.Status == domain.InvoiceStatusPaid:
			// Disconnected after paying; the change no longer has a plan to replace.
			target = domain.ChangeStatusCancelled
		case invoice.Status == domain.InvoiceStatusOverdue, invoice.Status == domain.InvoiceStatusCancelled:
			target = domain.ChangeStatusCancelled
		default:
			outcome = domain.ChangeOutcomePending
			return nil
		}

		resolved, err := repo.ResolveScheduledChange(ctx, change.ID, target, now)
		if err != nil || !resolved {
			return err
		}
		if target == domain.ChangeStatusCancelled {
			outcome = domain.ChangeOutcomeCancelled
			return nil
		}

		periodEnd := invoice.PeriodEnd
		if err := repo.SetTenantPlan(ctx, tenant.ID, &change.ToPlanID, &periodEnd, now); err != nil {
			return err
		}
		outcome = domain.ChangeOutcomeApplied
		return nil
	})
	if err != nil {
		return "", err
	}
	if outcome == domain.ChangeOutcomeApplied || outcome == domain.ChangeOutcomeCancelled {
		s.metrics.RecordBillingTransition(ctx, "scheduled_change_"+string(outcome))
	}
	return outcome, nil
}

func (s *Service) DueReminders(ctx context.Context, after domain.Cursor, limit int) ([]domain.InvoiceReminder, error) {
	return s.repo.DueReminders(ctx, s.clock.Now(), after, limit)
}

// ProcessReminder claims a due reminder and dispatches it at most once.
// An EXPIRED reminder on a still-pending invoice flips the invoice to OVERDUE.
func (s *Service) ProcessReminder(ctx context.Context, id snowflake.ID) (domain.ReminderOutcome, error) {
	var (
		notice  *domain.ReminderNotice
		outcome = domain.ReminderOutcomeSkipped
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		reminder, err := repo.FindReminder(ctx, id)
		if err != nil {
			return err
		}
		if reminder == nil {
			return domain.ErrReminderNotFound
		}
		now := s.clock.Now()
		if reminder.SentAt != nil || reminder.ScheduledFor.After(now) {
			return nil
		}

		invoice, err := repo.FindInvoice(ctx, reminder.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil || invoice.Status == domain.InvoiceStatusPaid || invoice.Status == domain.InvoiceStatusCancelled {
			claimed, err := repo.MarkReminderSent(ctx, reminder.ID, now, string(domain.ReminderOutcomeNoop))
			if claimed {
				outcome = domain.ReminderOutcomeNoop
			}
			return err
		}

		claimed, err := repo.MarkReminderSent(ctx, reminder.ID, now, string(domain.ReminderOutcomeSent))
		if err != nil || !claimed {
			return err
		}
		outcome = domain.ReminderOutcomeSent

		if reminder.Type == domain.ReminderExpired && invoice.Status == domain.InvoiceStatusPending {
			if _, err := repo.MarkInvoiceOverdue(ctx, invoice.ID, now); err != nil {
				return err
			}
		}

		tenant, err := repo.FindTenant(ctx, reminder.TenantID)
		if err != nil {
			return err
		}
		notice = &domain.ReminderNotice{
			TenantID:  reminder.TenantID,
			Type:      reminder.Type,
			InvoiceID: invoice.ID,
			Number:    invoice.Number,
			Total:     invoice.TotalAmount,
			Currency:  invoice.Currency,
			DueDate:   invoice.DueDate,
		}
		if tenant != nil {
			notice.TenantName = tenant.Name
			notice.TenantSlug = tenant.Slug
			if tenant.BillingEmail != nil {
				notice.BillingEmail = *tenant.BillingEmail
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if notice == nil || s.notifier == nil {
		return outcome, nil
	}

	if err := s.notifier.SendInvoiceReminder(ctx, *notice); err != nil {
		s.log.Warn("invoice reminder delivery failed",
			zap.String("reminder_id", id.String()),
			zap.String("invoice_id", notice.InvoiceID.String()),
			zap.Error(err),
		)
		if setErr := s.repo.SetReminderOutcome(ctx, id, string(domain.ReminderOutcomeFailed)); setErr != nil {
			return "", errors.Join(err, setErr)
		}
		return domain.ReminderOutcomeFailed, nil
	}
	return outcome, nil
}
