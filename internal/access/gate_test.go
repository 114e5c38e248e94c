package access

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/washbay/internal/auth/domain"
	"github.com/smallbiznis/washbay/internal/auth/session"
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/hostresolver"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
	"go.uber.org/zap"
)

type fakeTenants struct {
	tenantdomain.Service
	tenants map[string]tenantdomain.Tenant
	members map[string]tenantdomain.Role
}

func (f *fakeTenants) Load(_ context.Context, slug string) (tenantctx.TenantContext, *tenantdomain.Tenant, error) {
	tenant, ok := f.tenants[slug]
	if !ok || !tenant.IsActive {
		return tenantctx.TenantContext{}, nil, tenantdomain.ErrTenantNotFound
	}
	return tenantctx.TenantContext{TenantID: tenant.ID, Slug: tenant.Slug}, &tenant, nil
}

func (f *fakeTenants) GetMembership(_ context.Context, _ snowflake.ID, userID string) (*tenantdomain.Member, error) {
	role, ok := f.members[userID]
	if !ok {
		return nil, tenantdomain.ErrNotAMember
	}
	return &tenantdomain.Member{UserID: userID, Role: role, IsActive: true}, nil
}

type fakeBilling struct {
	billingdomain.Service
	status billingdomain.PlanStatus
	calls  int
}

func (f *fakeBilling) PlanStatus(context.Context, snowflake.ID) (billingdomain.PlanStatus, error) {
	f.calls++
	return f.status, nil
}

func newTestGate(t *testing.T, billing *fakeBilling) *Gate {
	t.Helper()
	enforcer, err := NewEnforcer()
	if err != nil {
		t.Fatalf("enforcer: %v", err)
	}
	tenants := &fakeTenants{
		tenants: map[string]tenantdomain.Tenant{
			"demo":    {ID: 1, Slug: "demo", IsActive: true},
			"dormant": {ID: 2, Slug: "dormant", IsActive: false},
		},
		members: map[string]tenantdomain.Role{
			"owner":    tenantdomain.RoleOwner,
			"admin":    tenantdomain.RoleAdmin,
			"employee": tenantdomain.RoleEmployee,
		},
	}
	if billing == nil {
		billing = &fakeBilling{}
	}
	return NewGate(Params{
		Tenants:  tenants,
		Billing:  billing,
		Enforcer: enforcer,
		Resolver: hostresolver.NewResolver(config.Config{BaseDomain: "washbay.test"}),
		Log:      zap.NewNop(),
	})
}

func expectCode(t *testing.T, err error, status int, code string) *Error {
	t.Helper()
	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected *access.Error, got %v", err)
	}
	if typed.Status != status || typed.Code != code {
		t.Fatalf("expected %d %s, got %d %s", status, code, typed.Status, typed.Code)
	}
	return typed
}

func TestRequireTenant(t *testing.T) {
	gate := newTestGate(t, nil)
	ctx := context.Background()

	tc, _, err := gate.RequireTenant(ctx, "demo", "")
	if err != nil || tc.Slug != "demo" {
		t.Fatalf("expected header slug to resolve, got %v %v", tc, err)
	}

	tc, _, err = gate.RequireTenant(ctx, "", "demo.washbay.test")
	if err != nil || tc.TenantID != 1 {
		t.Fatalf("expected host fallback to resolve, got %v %v", tc, err)
	}

	_, _, err = gate.RequireTenant(ctx, "", "washbay.test")
	expectCode(t, err, http.StatusBadRequest, CodeTenantNotSpecified)

	_, _, err = gate.RequireTenant(ctx, "missing", "")
	expectCode(t, err, http.StatusNotFound, CodeTenantNotFound)

	_, _, err = gate.RequireTenant(ctx, "dormant", "")
	expectCode(t, err, http.StatusNotFound, CodeTenantNotFound)
}

func TestRequireTenantMember(t *testing.T) {
	gate := newTestGate(t, nil)
	tc := tenantctx.TenantContext{TenantID: 1, Slug: "demo"}

	membership, err := gate.RequireTenantMember(context.Background(), authdomain.Identity{UserID: "root", GlobalRole: authdomain.RoleSuperAdmin}, tc)
	if err != nil || !membership.Implicit || membership.Role != tenantdomain.RoleOwner {
		t.Fatalf("expected implicit owner membership, got %+v %v", membership, err)
	}

	membership, err = gate.RequireTenantMember(context.Background(), authdomain.Identity{UserID: "employee"}, tc)
	if err != nil || membership.Role != tenantdomain.RoleEmployee {
		t.Fatalf("expected employee membership, got %+v %v", membership, err)
	}

	_, err = gate.RequireTenantMember(context.Background(), authdomain.Identity{UserID: "stranger"}, tc)
	expectCode(t, err, http.StatusForbidden, CodeNotAMember)
}

func TestRequireActivePlan(t *testing.T) {
	reason := billingdomain.ReasonPaymentOverdue
	invoiceID := snowflake.ID(42)
	billing := &fakeBilling{status: billingdomain.PlanStatus{IsBlocked: true, Reason: &reason, PendingInvoiceID: &invoiceID}}
	gate := newTestGate(t, billing)
	tc := tenantctx.TenantContext{TenantID: 1, Slug: "demo"}

	_, err := gate.RequireActivePlan(context.Background(), authdomain.Identity{UserID: "root", GlobalRole: authdomain.RoleSuperAdmin}, tc)
	if err != nil {
		t.Fatalf("expected super-admin bypass, got %v", err)
	}
	if billing.calls != 0 {
		t.Fatalf("super-admin must not consult billing")
	}

	_, err = gate.RequireActivePlan(context.Background(), authdomain.Identity{UserID: "owner"}, tc)
	typed := expectCode(t, err, http.StatusForbidden, CodePlanBlocked)
	if typed.Reason != "payment_overdue" || typed.PendingInvoiceID == nil || *typed.PendingInvoiceID != 42 {
		t.Fatalf("unexpected plan block payload %+v", typed)
	}
}

func TestAuthorizeRoles(t *testing.T) {
	gate := newTestGate(t, nil)

	cases := []struct {
		role    tenantdomain.Role
		perm    Permission
		allowed bool
	}{
		{tenantdomain.RoleOwner, PermBillingManage, true},
		{tenantdomain.RoleOwner, PermPlanStatusRead, true},
		{tenantdomain.RoleAdmin, PermMembersManage, true},
		{tenantdomain.RoleAdmin, PermPlanStatusRead, true},
		{tenantdomain.RoleEmployee, PermPlanStatusRead, true},
		{tenantdomain.RoleEmployee, PermBillingManage, false},
		{tenantdomain.RoleEmployee, PermMembersManage, false},
	}
	for _, tc := range cases {
		err := gate.Authorize(Membership{Role: tc.role}, tc.perm)
		if tc.allowed && err != nil {
			t.Fatalf("%s should be allowed %v: %v", tc.role, tc.perm, err)
		}
		if !tc.allowed {
			expectCode(t, err, http.StatusForbidden, CodeForbidden)
		}
	}
}

func TestMiddlewareChain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gate := newTestGate(t, nil)

	r := gin.New()
	var gotErr error
	r.Use(func(c *gin.Context) {
		c.Next()
		if last := c.Errors.Last(); last != nil {
			gotErr = last.Err
			c.Status(http.StatusTeapot)
		}
	})
	r.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			session.SetIdentity(c, authdomain.Identity{UserID: user})
		}
		c.Next()
	})
	r.POST("/billing", gate.TenantRequired(), gate.MemberRequired(), gate.PermissionRequired(PermBillingManage), func(c *gin.Context) {
		tc, _ := tenantctx.From(c.Request.Context())
		c.String(http.StatusOK, tc.Slug)
	})

	do := func(user string) *httptest.ResponseRecorder {
		gotErr = nil
		req := httptest.NewRequest(http.MethodPost, "/billing", nil)
		req.Header.Set(tenantctx.Header, "demo")
		if user != "" {
			req.Header.Set("X-Test-User", user)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := do("owner"); w.Code != http.StatusOK || w.Body.String() != "demo" {
		t.Fatalf("expected owner to pass, got %d %s", w.Code, w.Body.String())
	}
	do("employee")
	expectCode(t, gotErr, http.StatusForbidden, CodeForbidden)
	do("")
	expectCode(t, gotErr, http.StatusUnauthorized, CodeUnauthenticated)
}
