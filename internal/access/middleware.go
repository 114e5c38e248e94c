package access

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/washbay/internal/auth/session"
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	obscontext "github.com/smallbiznis/washbay/internal/observability/context"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
)

const (
	membershipKey = "washbay.membership"
	planStatusKey = "washbay.plan_status"
)

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// TenantRequired resolves the tenant and places its TenantContext on the request context.
func (g *Gate) TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, _, err := g.RequireTenant(c.Request.Context(), c.GetHeader(tenantctx.Header), c.Request.Host)
		if err != nil {
			abort(c, err)
			return
		}
		ctx := tenantctx.With(c.Request.Context(), tc)
		ctx = obscontext.WithTenant(ctx, tc.Slug)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// MemberRequired must run after TenantRequired.
func (g *Gate) MemberRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := session.IdentityFrom(c)
		if !ok {
			abort(c, Unauthenticated())
			return
		}
		tc, ok := tenantctx.From(c.Request.Context())
		if !ok {
			abort(c, TenantNotSpecified())
			return
		}
		membership, err := g.RequireTenantMember(c.Request.Context(), identity, tc)
		if err != nil {
			abort(c, err)
			return
		}
		c.Set(membershipKey, membership)
		c.Next()
	}
}

// ActivePlanRequired must run after TenantRequired.
func (g *Gate) ActivePlanRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, _ := session.IdentityFrom(c)
		tc, ok := tenantctx.From(c.Request.Context())
		if !ok {
			abort(c, TenantNotSpecified())
			return
		}
		status, err := g.RequireActivePlan(c.Request.Context(), identity, tc)
		if err != nil {
			abort(c, err)
			return
		}
		c.Set(planStatusKey, status)
		c.Next()
	}
}

// PermissionRequired must run after MemberRequired.
func (g *Gate) PermissionRequired(perm Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		membership, ok := MembershipFrom(c)
		if !ok {
			abort(c, NotAMember())
			return
		}
		if err := g.Authorize(membership, perm); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

func MembershipFrom(c *gin.Context) (Membership, bool) {
	value, ok := c.Get(membershipKey)
	if !ok {
		return Membership{}, false
	}
	membership, ok := value.(Membership)
	return membership, ok
}

func PlanStatusFrom(c *gin.Context) (billingdomain.PlanStatus, bool) {
	value, ok := c.Get(planStatusKey)
	if !ok {
		return billingdomain.PlanStatus{}, false
	}
	status, ok := value.(billingdomain.PlanStatus)
	return status, ok
}
