package domain

import (
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
)

type BlockReason string

const (
	ReasonInactive       BlockReason = "inactive"
	ReasonNoPlan         BlockReason = "no_plan"
	ReasonTrialExpired   BlockReason = "trial_expired"
	ReasonPaymentOverdue BlockReason = "payment_overdue"
)

// Message is the user-facing explanation shown for a blocked tenant.
func (r BlockReason) Message() string {
	switch r {
	case ReasonInactive:
		return "This account has been deactivated. Contact support."
	case ReasonNoPlan:
		return "No active plan. Choose a plan to continue."
	case ReasonTrialExpired:
		return "Your plan period has ended. Renew your plan to continue."
	case ReasonPaymentOverdue:
		return "Your invoice is pending payment. Pay it to continue."
	default:
		return "Plan access is blocked."
	}
}

type PlanStatus struct {
	IsBlocked        bool          `json:"isBlocked"`
	Reason           *BlockReason  `json:"reason"`
	DaysLeft         *int          `json:"daysLeft"`
	PendingInvoiceID *snowflake.ID `json:"pendingInvoiceId"`
	ExpiresSoon      bool          `json:"expiresSoon"`
}

// Unblocked is the status reported for super-admins.
func Unblocked() PlanStatus {
	return PlanStatus{}
}

// GetTenantPlanStatus evaluates the blocking rules in order; the first match wins.
// plan may be nil when the tenant has no plan or the plan row is gone.
// warnDays sets the expiresSoon threshold and does not affect blocking.
func GetTenantPlanStatus(tenant tenantdomain.Tenant, plan *Plan, pending *Invoice, now time.Time, warnDays int) PlanStatus {
	status := PlanStatus{}
	if tenant.TrialEndsAt != nil {
		days := DaysLeft(*tenant.TrialEndsAt, now)
		status.DaysLeft = &days
		status.ExpiresSoon = days > 0 && days <= warnDays
	}

	block := func(reason BlockReason) PlanStatus {
		status.IsBlocked = true
		status.Reason = &reason
		status.ExpiresSoon = false
		return status
	}

	if !tenant.IsActive {
		return block(ReasonInactive)
	}
	if tenant.PlanID == nil {
		if pending != nil {
			id := pending.ID
			status.PendingInvoiceID = &id
		}
		return block(ReasonNoPlan)
	}

	hasSubscription := tenant.StripeSubscriptionID != nil && strings.TrimSpace(*tenant.StripeSubscriptionID) != ""
	if plan != nil && plan.Price.IsPositive() && hasSubscription {
		return status
	}

	if tenant.TrialEndsAt != nil && now.After(*tenant.TrialEndsAt) {
		if hasSubscription {
			return status
		}
		if pending != nil {
			id := pending.ID
			status.PendingInvoiceID = &id
			return block(ReasonPaymentOverdue)
		}
		return block(ReasonTrialExpired)
	}
	return status
}

// DaysLeft is ceil((end - now) / 24h). Past expiry yields zero or a negative count.
func DaysLeft(end, now time.Time) int {
	return int(math.Ceil(float64(end.Sub(now)) / float64(24*time.Hour)))
}
