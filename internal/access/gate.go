// Package access authorizes requests against a tenant: tenant resolution,
// membership, tenant role permissions and the tenant's billing state.
package access

import (
	"context"
	"strings"

	"github.com/casbin/casbin/v2"
	authdomain "github.com/smallbiznis/washbay/internal/auth/domain"
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	"github.com/smallbiznis/washbay/internal/hostresolver"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Membership is the caller's standing in a tenant. Super-admins get an
// implicit OWNER membership in every tenant.
type Membership struct {
	TenantID string
	UserID   string
	Role     tenantdomain.Role
	Implicit bool
}

type Params struct {
	fx.In

	Tenants  tenantdomain.Service
	Billing  billingdomain.Service
	Enforcer *casbin.SyncedEnforcer
	Resolver *hostresolver.Resolver
	Log      *zap.Logger
}

type Gate struct {
	tenants  tenantdomain.Service
	billing  billingdomain.Service
	enforcer *casbin.SyncedEnforcer
	resolver *hostresolver.Resolver
	log      *zap.Logger
}

func NewGate(p Params) *Gate {
	return &Gate{
		tenants:  p.Tenants,
		billing:  p.Billing,
		enforcer: p.Enforcer,
		resolver: p.Resolver,
		log:      p.Log.Named("access.gate"),
	}
}

// RequireTenant resolves the tenant from the injected header, falling back to the Host.
func (g *Gate) RequireTenant(ctx context.Context, headerSlug, host string) (tenantctx.TenantContext, *tenantdomain.Tenant, error) {
	slug := strings.TrimSpace(headerSlug)
	if slug == "" && g.resolver != nil {
		slug = g.resolver.TenantSlug(host)
	}
	if slug == "" {
		return tenantctx.TenantContext{}, nil, TenantNotSpecified()
	}

	tc, tenant, err := g.tenants.Load(ctx, slug)
	if err != nil {
		if typed, ok := FromError(err); ok {
			return tenantctx.TenantContext{}, nil, typed
		}
		return tenantctx.TenantContext{}, nil, err
	}
	return tc, tenant, nil
}

func (g *Gate) RequireTenantMember(ctx context.Context, identity authdomain.Identity, tc tenantctx.TenantContext) (Membership, error) {
	if identity.IsSuperAdmin() {
		return Membership{
			TenantID: tc.TenantID.String(),
			UserID:   identity.UserID,
			Role:     tenantdomain.RoleOwner,
			Implicit: true,
		}, nil
	}
	if strings.TrimSpace(identity.UserID) == "" {
		return Membership{}, Unauthenticated()
	}

	member, err := g.tenants.GetMembership(ctx, tc.TenantID, identity.UserID)
	if err != nil {
		if typed, ok := FromError(err); ok {
			return Membership{}, typed
		}
		return Membership{}, err
	}
	return Membership{
		TenantID: tc.TenantID.String(),
		UserID:   member.UserID,
		Role:     member.Role,
	}, nil
}

// RequireActivePlan fails with PlanBlocked when the billing state blocks the tenant.
func (g *Gate) RequireActivePlan(ctx context.Context, identity authdomain.Identity, tc tenantctx.TenantContext) (billingdomain.PlanStatus, error) {
	if identity.IsSuperAdmin() {
		return billingdomain.Unblocked(), nil
	}
	status, err := g.billing.PlanStatus(ctx, tc.TenantID)
	if err != nil {
		if typed, ok := FromError(err); ok {
			return billingdomain.PlanStatus{}, typed
		}
		return billingdomain.PlanStatus{}, err
	}
	if status.IsBlocked {
		return status, PlanBlocked(status)
	}
	return status, nil
}

// Authorize checks the membership role against perm.
func (g *Gate) Authorize(membership Membership, perm Permission) error {
	if membership.Implicit {
		return nil
	}
	allowed, err := g.enforcer.Enforce(roleSubject(membership.Role), perm.Object, perm.Action)
	if err != nil {
		return err
	}
	if !allowed {
		return Forbidden()
	}
	return nil
}
