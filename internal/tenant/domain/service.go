package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
)

type Service interface {
	// Load resolves an active tenant by slug into the per-request tenant context.
	Load(ctx context.Context, slug string) (tenantctx.TenantContext, *Tenant, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Tenant, error)
	Create(ctx context.Context, req CreateTenantRequest) (*Tenant, error)
	SetActive(ctx context.Context, id snowflake.ID, active bool) error
	GetMembership(ctx context.Context, tenantID snowflake.ID, userID string) (*Member, error)
	AddMember(ctx context.Context, tenantID snowflake.ID, userID string, role Role) (*Member, error)
	ListMembers(ctx context.Context, tenantID snowflake.ID) ([]Member, error)
	UpdateMemberRole(ctx context.Context, tenantID snowflake.ID, userID string, role Role) error
	RemoveMember(ctx context.Context, tenantID snowflake.ID, userID string) error
}

type CreateTenantRequest struct {
	Name         string
	OwnerUserID  string
	BillingEmail string
}

var (
	ErrTenantNotSpecified = errors.New("tenant_not_specified")
	ErrTenantNotFound     = errors.New("tenant_not_found")
	ErrNotAMember         = errors.New("not_a_member")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidUser        = errors.New("invalid_user")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrOwnerImmutable     = errors.New("owner_immutable")
	ErrMemberExists       = errors.New("member_exists")
	ErrSlugUnavailable    = errors.New("slug_unavailable")
)
