package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }

func ptrID(id snowflake.ID) *snowflake.ID { return &id }

func ptrString(s string) *string { return &s }

func reasonOf(status PlanStatus) string {
	if status.Reason == nil {
		return ""
	}
	return string(*status.Reason)
}

func TestGetTenantPlanStatusRules(t *testing.T) {
	paid := &Plan{ID: 10, Price: decimal.NewFromInt(99900), Interval: IntervalMonthly, IsActive: true}
	pending := &Invoice{ID: 77, Status: InvoiceStatusPending}

	tests := []struct {
		name        string
		tenant      tenantdomain.Tenant
		plan        *Plan
		pending     *Invoice
		blocked     bool
		reason      string
		pendingID   snowflake.ID
		daysLeft    *int
		expiresSoon bool
	}{
		{
			name:    "inactive wins over everything",
			tenant:  tenantdomain.Tenant{IsActive: false, PlanID: ptrID(10), StripeSubscriptionID: ptrString("sub_1"), TrialEndsAt: ptrTime(now.Add(48 * time.Hour))},
			plan:    paid,
			pending: pending,
			blocked: true,
			reason:  "inactive",
		},
		{
			name:      "no plan carries pending invoice",
			tenant:    tenantdomain.Tenant{IsActive: true},
			pending:   pending,
			blocked:   true,
			reason:    "no_plan",
			pendingID: 77,
		},
		{
			name:    "legacy subscription bypasses expired period",
			tenant:  tenantdomain.Tenant{IsActive: true, PlanID: ptrID(10), StripeSubscriptionID: ptrString("sub_1"), TrialEndsAt: ptrTime(now.Add(-72 * time.Hour))},
			plan:    paid,
			blocked: false,
		},
		{
			name:    "subscription ref rescues lapsed free plan",
			tenant:  tenantdomain.Tenant{IsActive: true, PlanID: ptrID(11), StripeSubscriptionID: ptrString("sub_1"), TrialEndsAt: ptrTime(now.Add(-time.Second))},
			plan:    &Plan{ID: 11, Price: decimal.Zero},
			blocked: false,
		},
		{
			name:    "lapsed period without invoice",
			tenant:  tenantdomain.Tenant{IsActive: true, PlanID: ptrID(10), TrialEndsAt: ptrTime(now.Add(-time.Second))},
			plan:    paid,
			blocked: true,
			reason:  "trial_expired",
		},
		{
			name:      "lapsed period with pending invoice",
			tenant:    tenantdomain.Tenant{IsActive: true, PlanID: ptrID(10), TrialEndsAt: ptrTime(now.Add(-time.Second))},
			plan:      paid,
			pending:   pending,
			blocked:   true,
			reason:    "payment_overdue",
			pendingID: 77,
		},
		{
			name:        "active period close to expiry",
			tenant:      tenantdomain.Tenant{IsActive: true, PlanID: ptrID(10), TrialEndsAt: ptrTime(now.Add(30 * time.Minute))},
			plan:        paid,
			blocked:     false,
			expiresSoon: true,
		},
		{
			name:    "plan without period end is open",
			tenant:  tenantdomain.Tenant{IsActive: true, PlanID: ptrID(10)},
			plan:    paid,
			blocked: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := GetTenantPlanStatus(tt.tenant, tt.plan, tt.pending, now, 7)
			if status.IsBlocked != tt.blocked {
				t.Fatalf("expected blocked=%v, got %v", tt.blocked, status.IsBlocked)
			}
			if got := reasonOf(status); got != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, got)
			}
			if tt.pendingID != 0 {
				if status.PendingInvoiceID == nil || *status.PendingInvoiceID != tt.pendingID {
					t.Fatalf("expected pending invoice %d, got %v", tt.pendingID, status.PendingInvoiceID)
				}
			} else if status.PendingInvoiceID != nil {
				t.Fatalf("expected no pending invoice id, got %d", *status.PendingInvoiceID)
			}
			if status.ExpiresSoon != tt.expiresSoon {
				t.Fatalf("expected expiresSoon=%v", tt.expiresSoon)
			}
		})
	}
}

func TestInactiveTenantAlwaysBlocked(t *testing.T) {
	plans := []*Plan{nil, {Price: decimal.Zero}, {Price: decimal.NewFromInt(5)}}
	invoices := []*Invoice{nil, {ID: 1, Status: InvoiceStatusPending}}
	ends := []*time.Time{nil, ptrTime(now.Add(-time.Hour)), ptrTime(now.Add(time.Hour))}
	subs := []*string{nil, ptrString("sub_1")}

	for _, plan := range plans {
		for _, invoice := range invoices {
			for _, end := range ends {
				for _, sub := range subs {
					tenant := tenantdomain.Tenant{IsActive: false, TrialEndsAt: end, StripeSubscriptionID: sub}
					if plan != nil {
						tenant.PlanID = ptrID(1)
					}
					status := GetTenantPlanStatus(tenant, plan, invoice, now, 7)
					if !status.IsBlocked || reasonOf(status) != "inactive" {
						t.Fatalf("expected inactive block, got %+v", status)
					}
				}
			}
		}
	}
}

func TestDaysLeftUsesCeiling(t *testing.T) {
	cases := []struct {
		end  time.Time
		want int
	}{
		{now.Add(30 * time.Minute), 1},
		{now.Add(10 * 24 * time.Hour), 10},
		{now.Add(10*24*time.Hour + time.Second), 11},
		{now, 0},
		{now.Add(-30 * time.Minute), 0},
		{now.Add(-36 * time.Hour), -1},
	}
	for _, tc := range cases {
		if got := DaysLeft(tc.end, now); got != tc.want {
			t.Fatalf("DaysLeft(%s) = %d, want %d", tc.end, got, tc.want)
		}
	}
}
