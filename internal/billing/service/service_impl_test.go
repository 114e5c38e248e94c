package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/washbay/internal/billing/domain"
	"github.com/smallbiznis/washbay/internal/billing/repository"
	"github.com/smallbiznis/washbay/internal/clock"
	"github.com/smallbiznis/washbay/internal/config"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/washbay/internal/tenant/repository"
	"github.com/smallbiznis/washbay/internal/testutil/dbtest"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	repo     domain.Repository
	svc      domain.Service
	clock    *clock.FakeClock
	node     *snowflake.Node
	notifier *fakeNotifier
	tc       tenantctx.TenantContext
	free     domain.Plan
	basic    domain.Plan
	pro      domain.Plan
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []domain.ReminderNotice
	err     error
}

func (f *fakeNotifier) SendInvoiceReminder(_ context.Context, notice domain.ReminderNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notice)
	return f.err
}

func newFixture(t *testing.T, wrap func(domain.Repository) domain.Repository) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		repo:     repository.NewRepository(db),
		clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
		node:     node,
		notifier: &fakeNotifier{},
	}
	repo := f.repo
	if wrap != nil {
		repo = wrap(repo)
	}
	f.svc = NewService(Params{
		DB:       db,
		Repo:     repo,
		GenID:    node,
		Clock:    f.clock,
		Billing:  config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Log:      zap.NewNop(),
		Notifier: f.notifier,
	})

	ctx := context.Background()
	now := f.clock.Now()
	f.free = f.createPlan(t, "free", decimal.Zero)
	f.basic = f.createPlan(t, "basic", decimal.NewFromInt(99900))
	f.pro = f.createPlan(t, "pro", decimal.NewFromInt(199900))

	tenant := tenantdomain.Tenant{ID: node.Generate(), Name: "Acme", Slug: "acme", IsActive: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, tenantrepo.NewRepository(db).Create(ctx, tenant))
	f.tc = tenantctx.TenantContext{TenantID: tenant.ID, Slug: tenant.Slug}
	return f
}

func (f *fixture) createPlan(t *testing.T, code string, price decimal.Decimal) domain.Plan {
	t.Helper()
	now := f.clock.Now()
	plan := domain.Plan{
		ID:        f.node.Generate(),
		Code:      code,
		Name:      code,
		Price:     price,
		Interval:  domain.IntervalMonthly,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.repo.CreatePlan(context.Background(), plan))
	return plan
}

func (f *fixture) tenant(t *testing.T) *tenantdomain.Tenant {
	t.Helper()
	tenant, err := f.repo.FindTenant(context.Background(), f.tc.TenantID)
	require.NoError(t, err)
	require.NotNil(t, tenant)
	return tenant
}

func (f *fixture) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Table(table).Count(&n).Error)
	return n
}

// activatePaid puts the tenant on plan with a period ending at end.
func (f *fixture) activatePaid(t *testing.T, plan domain.Plan, end time.Time) {
	t.Helper()
	require.NoError(t, f.repo.SetTenantPlan(context.Background(), f.tc.TenantID, &plan.ID, &end, f.clock.Now()))
}

func (f *fixture) addPayment(t *testing.T, invoice domain.Invoice, reference string) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.svc.RecordPayment(context.Background(), domain.Payment{
		ID:                    f.node.Generate(),
		InvoiceID:             invoice.ID,
		TenantID:              invoice.TenantID,
		Status:                domain.PaymentStatusPending,
		Method:                domain.PaymentMethodPSE,
		Provider:              "wompi",
		Amount:                invoice.TotalAmount,
		ExternalReferenceCode: reference,
		CreatedAt:             now,
		UpdatedAt:             now,
	}))
}

func TestChangePlanToFreePlan(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.free.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeKindFree, result.Kind)

	tenant := f.tenant(t)
	require.NotNil(t, tenant.PlanID)
	assert.Equal(t, f.free.ID, *tenant.PlanID)
	assert.True(t, tenant.TrialEndsAt.Equal(f.clock.Now().AddDate(0, 0, 30)))
	assert.Equal(t, int64(0), f.count(t, "invoices"))
}

func TestChangePlanWithoutActivePeriodCreatesInvoice(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.basic.ID})
	require.NoError(t, err)
	require.Equal(t, domain.ChangeKindInvoice, result.Kind)

	invoice := result.Invoice
	assert.Equal(t, domain.InvoiceStatusPending, invoice.Status)
	assert.True(t, invoice.PeriodStart.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, invoice.PeriodEnd.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, invoice.DueDate.Equal(f.clock.Now().AddDate(0, 0, 5)))
	assert.True(t, invoice.TotalAmount.Equal(decimal.NewFromInt(118881)))
	assert.Equal(t, int64(3), f.count(t, "invoice_reminders"))
	assert.Equal(t, int64(0), f.count(t, "scheduled_plan_changes"))
	assert.Nil(t, f.tenant(t).PlanID)
}

func TestChangePlanDuringActivePeriodSchedulesChange(t *testing.T) {
	f := newFixture(t, nil)
	end := f.clock.Now().AddDate(0, 0, 12)
	f.activatePaid(t, f.basic, end)

	result, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.pro.ID})
	require.NoError(t, err)
	require.Equal(t, domain.ChangeKindScheduled, result.Kind)

	assert.True(t, result.Invoice.PeriodStart.Equal(end))
	assert.Equal(t, result.Invoice.ID, result.Change.InvoiceID)
	assert.True(t, result.Change.EffectiveDate.Equal(end))
	assert.Equal(t, f.basic.ID, *result.Change.FromPlanID)

	tenant := f.tenant(t)
	assert.Equal(t, f.basic.ID, *tenant.PlanID, "tenant keeps its plan until the change applies")
}

type failingChangeRepo struct {
	domain.Repository
}

func (r failingChangeRepo) WithTx(tx *gorm.DB) domain.Repository {
	return failingChangeRepo{Repository: r.Repository.WithTx(tx)}
}

func (r failingChangeRepo) CreateScheduledChange(context.Context, domain.ScheduledPlanChange) error {
	return errors.New("boom")
}

func TestChangePlanIsAtomic(t *testing.T) {
	f := newFixture(t, func(repo domain.Repository) domain.Repository {
		return failingChangeRepo{Repository: repo}
	})
	f.activatePaid(t, f.basic, f.clock.Now().AddDate(0, 0, 12))

	_, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.pro.ID})
	require.Error(t, err)

	assert.Equal(t, int64(0), f.count(t, "invoices"))
	assert.Equal(t, int64(0), f.count(t, "invoice_reminders"))
	assert.Equal(t, int64(0), f.count(t, "scheduled_plan_changes"))
}

func TestConcurrentChangePlanCreatesOneInvoice(t *testing.T) {
	f := newFixture(t, nil)

	const workers = 4
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.basic.ID})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrDuplicateInvoice)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), f.count(t, "invoices"))
}

func TestOpenInvoiceIndexRejectsDuplicateInsert(t *testing.T) {
	f := newFixture(t, nil)
	result, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.basic.ID})
	require.NoError(t, err)

	dup := *result.Invoice
	dup.ID = f.node.Generate()
	dup.Number = "WB-dup"
	err = f.repo.CreateInvoice(context.Background(), dup)
	require.Error(t, err)
}

func TestDisconnectCancelsPendingWork(t *testing.T) {
	f := newFixture(t, nil)
	f.activatePaid(t, f.basic, f.clock.Now().AddDate(0, 0, 12))
	result, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.pro.ID})
	require.NoError(t, err)

	_, err = f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: nil})
	require.NoError(t, err)

	tenant := f.tenant(t)
	assert.Nil(t, tenant.PlanID)
	assert.Nil(t, tenant.TrialEndsAt)

	invoice, err := f.repo.FindInvoice(context.Background(), result.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCancelled, invoice.Status)

	change, err := f.repo.FindScheduledChange(context.Background(), result.Change.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeStatusCancelled, change.Status)

	status, err := f.svc.PlanStatus(context.Background(), f.tc.TenantID)
	require.NoError(t, err)
	assert.True(t, status.IsBlocked)
	assert.Equal(t, domain.ReasonNoPlan, *status.Reason)
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	result, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.basic.ID})
	require.NoError(t, err)
	f.addPayment(t, *result.Invoice, "WB-ref-1")

	update := domain.PaymentUpdate{Status: domain.PaymentStatusApproved, TransactionID: "tx-1"}
	first, err := f.svc.ConfirmPayment(context.Background(), "WB-ref-1", update)
	require.NoError(t, err)
	assert.True(t, first.Transitions)
	assert.True(t, first.InvoicePaid)
	assert.True(t, first.Activated)

	tenant := f.tenant(t)
	require.NotNil(t, tenant.PlanID)
	assert.Equal(t, f.basic.ID, *tenant.PlanID)
	assert.True(t, tenant.TrialEndsAt.Equal(result.Invoice.PeriodEnd))

	// Move the period so a second activation would be visible.
	f.clock.Advance(time.Hour)
	second, err := f.svc.ConfirmPayment(context.Background(), "WB-ref-1", update)
	require.NoError(t, err)
	assert.False(t, second.Transitions)
	assert.False(t, second.InvoicePaid)
	assert.False(t, second.Activated)

	invoice, err := f.repo.FindInvoice(context.Background(), result.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, invoice.Status)
	assert.True(t, invoice.PaidAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestConfirmPaymentRejectsPaidInvoiceForNewAttempts(t *testing.T) {
	f := newFixture(t, nil)
	result, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.basic.ID})
	require.NoError(t, err)
	f.addPayment(t, *result.Invoice, "WB-ref-1")

	_, err = f.svc.ConfirmPayment(context.Background(), "WB-ref-1", domain.PaymentUpdate{Status: domain.PaymentStatusApproved})
	require.NoError(t, err)

	_, err = f.svc.PayableInvoice(context.Background(), f.tc, result.Invoice.ID)
	assert.ErrorIs(t, err, domain.ErrInvoiceAlreadyPaid)
}

func TestDeclinedPaymentAfterDueDateMarksOverdue(t *testing.T) {
	f := newFixture(t, nil)
	result, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.basic.ID})
	require.NoError(t, err)
	f.addPayment(t, *result.Invoice, "WB-ref-1")
	f.addPayment(t, *result.Invoice, "WB-ref-2")

	f.clock.Advance(6 * 24 * time.Hour)
	first, err := f.svc.ConfirmPayment(context.Background(), "WB-ref-1", domain.PaymentUpdate{Status: domain.PaymentStatusDeclined})
	require.NoError(t, err)
	assert.False(t, first.Overdue, "another payment is still pending")

	second, err := f.svc.ConfirmPayment(context.Background(), "WB-ref-2", domain.PaymentUpdate{Status: domain.PaymentStatusExpired})
	require.NoError(t, err)
	assert.True(t, second.Overdue)

	invoice, err := f.repo.FindInvoice(context.Background(), result.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusOverdue, invoice.Status)
}

func TestScheduledChangeAppliesOnce(t *testing.T) {
	f := newFixture(t, nil)
	end := f.clock.Now().AddDate(0, 0, 3)
	f.activatePaid(t, f.basic, end)

	result, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.pro.ID})
	require.NoError(t, err)
	f.addPayment(t, *result.Invoice, "WB-ref-1")

	confirm, err := f.svc.ConfirmPayment(context.Background(), "WB-ref-1", domain.PaymentUpdate{Status: domain.PaymentStatusApproved})
	require.NoError(t, err)
	assert.True(t, confirm.InvoicePaid)
	assert.False(t, confirm.Activated, "activation waits for the effective date")
	assert.Equal(t, f.basic.ID, *f.tenant(t).PlanID)

	due, err := f.svc.DueScheduledChanges(context.Background(), domain.Cursor{}, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	f.clock.Set(end.Add(time.Minute))
	due, err = f.svc.DueScheduledChanges(context.Background(), domain.Cursor{}, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	outcome, err := f.svc.ApplyScheduledChange(context.Background(), due[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeOutcomeApplied, outcome)

	tenant := f.tenant(t)
	assert.Equal(t, f.pro.ID, *tenant.PlanID)
	assert.True(t, tenant.TrialEndsAt.Equal(result.Invoice.PeriodEnd))

	again, err := f.svc.ApplyScheduledChange(context.Background(), due[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeOutcomeSkipped, again)
}

func TestScheduledChangeOutcomes(t *testing.T) {
	f := newFixture(t, nil)
	end := f.clock.Now().AddDate(0, 0, 3)
	f.activatePaid(t, f.basic, end)

	result, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.pro.ID})
	require.NoError(t, err)

	f.clock.Set(end.Add(time.Minute))
	outcome, err := f.svc.ApplyScheduledChange(context.Background(), result.Change.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeOutcomePending, outcome)

	_, err = f.repo.MarkInvoiceOverdue(context.Background(), result.Invoice.ID, f.clock.Now())
	require.NoError(t, err)
	outcome, err = f.svc.ApplyScheduledChange(context.Background(), result.Change.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeOutcomeCancelled, outcome)
	assert.Equal(t, f.basic.ID, *f.tenant(t).PlanID)
}

func TestDisconnectWinsOverLateApply(t *testing.T) {
	f := newFixture(t, nil)
	end := f.clock.Now().AddDate(0, 0, 3)
	f.activatePaid(t, f.basic, end)

	result, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.pro.ID})
	require.NoError(t, err)
	f.addPayment(t, *result.Invoice, "WB-ref-1")
	_, err = f.svc.ConfirmPayment(context.Background(), "WB-ref-1", domain.PaymentUpdate{Status: domain.PaymentStatusApproved})
	require.NoError(t, err)

	require.NoError(t, f.svc.Disconnect(context.Background(), f.tc))
	f.clock.Set(end.Add(time.Minute))

	outcome, err := f.svc.ApplyScheduledChange(context.Background(), result.Change.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeOutcomeSkipped, outcome)
	assert.Nil(t, f.tenant(t).PlanID)
}

func TestProcessRemindersFlipsExpiredInvoices(t *testing.T) {
	f := newFixture(t, nil)
	result, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.basic.ID})
	require.NoError(t, err)

	f.clock.Set(result.Invoice.DueDate.AddDate(0, 0, 1))
	due, err := f.svc.DueReminders(context.Background(), domain.Cursor{}, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)

	for _, reminder := range due {
		outcome, err := f.svc.ProcessReminder(context.Background(), reminder.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReminderOutcomeSent, outcome)

		again, err := f.svc.ProcessReminder(context.Background(), reminder.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReminderOutcomeSkipped, again)
	}

	assert.Len(t, f.notifier.notices, 3)
	invoice, err := f.repo.FindInvoice(context.Background(), result.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusOverdue, invoice.Status)

	status, err := f.svc.PlanStatus(context.Background(), f.tc.TenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonNoPlan, *status.Reason)
	assert.Equal(t, invoice.ID, *status.PendingInvoiceID)
}

func TestProcessReminderForPaidInvoiceIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	result, err := f.svc.ChangePlan(context.Background(), f.tc, domain.ChangePlanRequest{PlanID: &f.basic.ID})
	require.NoError(t, err)
	f.addPayment(t, *result.Invoice, "WB-ref-1")
	_, err = f.svc.ConfirmPayment(context.Background(), "WB-ref-1", domain.PaymentUpdate{Status: domain.PaymentStatusApproved})
	require.NoError(t, err)

	f.clock.Set(result.Invoice.DueDate)
	due, err := f.svc.DueReminders(context.Background(), domain.Cursor{}, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	for _, reminder := range due {
		outcome, err := f.svc.ProcessReminder(context.Background(), reminder.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReminderOutcomeNoop, outcome)
	}
	assert.Empty(t, f.notifier.notices)
}

func TestPlanStatusTrialBoundary(t *testing.T) {
	f := newFixture(t, nil)
	f.activatePaid(t, f.basic, f.clock.Now().AddDate(0, 0, 10))

	status, err := f.svc.PlanStatus(context.Background(), f.tc.TenantID)
	require.NoError(t, err)
	assert.False(t, status.IsBlocked)
	assert.Equal(t, 10, *status.DaysLeft)

	f.clock.Advance(10*24*time.Hour + time.Second)
	status, err = f.svc.PlanStatus(context.Background(), f.tc.TenantID)
	require.NoError(t, err)
	assert.True(t, status.IsBlocked)
	assert.Equal(t, domain.ReasonTrialExpired, *status.Reason)
}
