// Package domain contains the tenant and membership models.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tenant is a car-wash business reachable at <slug>.<base domain>.
// TrialEndsAt doubles as the end of the current billing period.
type Tenant struct {
	ID                   snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name                 string        `gorm:"type:text;not null" json:"name"`
	Slug                 string        `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	IsActive             bool          `gorm:"column:is_active;not null" json:"is_active"`
	PlanID               *snowflake.ID `gorm:"column:plan_id" json:"plan_id,omitempty"`
	TrialEndsAt          *time.Time    `gorm:"column:trial_ends_at" json:"trial_ends_at,omitempty"`
	BillingEmail         *string       `gorm:"column:billing_email" json:"billing_email,omitempty"`
	StripeCustomerID     *string       `gorm:"column:stripe_customer_id" json:"-"`
	StripeSubscriptionID *string       `gorm:"column:stripe_subscription_id" json:"-"`
	CreatedAt            time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// HasActiveSubscription reports whether the tenant still carries a legacy external subscription.
func (t Tenant) HasActiveSubscription() bool {
	return t.StripeSubscriptionID != nil && strings.TrimSpace(*t.StripeSubscriptionID) != ""
}

func (t Tenant) HasStripeCustomer() bool {
	return t.StripeCustomerID != nil && strings.TrimSpace(*t.StripeCustomerID) != ""
}

type Role string

const (
	RoleOwner    Role = "OWNER"
	RoleAdmin    Role = "ADMIN"
	RoleEmployee Role = "EMPLOYEE"
)

// ParseRole accepts the closed set of tenant roles, case-insensitively.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleOwner:
		return RoleOwner, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleEmployee:
		return RoleEmployee, true
	default:
		return "", false
	}
}

// Member is a user's membership in a tenant.
type Member struct {
	TenantID  snowflake.ID `gorm:"primaryKey" json:"tenant_id"`
	UserID    string       `gorm:"primaryKey;type:text" json:"user_id"`
	Role      Role         `gorm:"type:text;not null" json:"role"`
	IsActive  bool         `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "tenant_users" }
