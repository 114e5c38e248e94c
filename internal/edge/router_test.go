package edge

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/washbay/internal/auth/domain"
	"github.com/smallbiznis/washbay/internal/auth/session"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/hostresolver"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
	"go.uber.org/zap"
)

const base = "washbay.test:3000"

func newRouter() *Router {
	return NewRouter(DefaultRoutes(), hostresolver.NewResolver(config.Config{BaseDomain: base}))
}

func relayTo(target string) string {
	return "/api/auth/session-relay?callbackUrl=" + url.QueryEscape(target)
}

func TestDecide(t *testing.T) {
	member := &authdomain.Identity{UserID: "u1", GlobalRole: authdomain.RoleUser, TenantSlug: "acme"}
	homeless := &authdomain.Identity{UserID: "u2", GlobalRole: authdomain.RoleUser}
	admin := &authdomain.Identity{UserID: "root", GlobalRole: authdomain.RoleSuperAdmin}

	cases := []struct {
		name     string
		req      Request
		action   Action
		location string
		status   int
		slug     string
		step     int
	}{
		{name: "landing page is public", req: Request{Path: "/", Host: base}, action: Pass, step: 1},
		{name: "webhook is public", req: Request{Path: "/api/webhooks/wompi", Host: base}, action: Pass, step: 1},
		{name: "plans api is public on tenant host", req: Request{Path: "/api/plans", Host: "acme." + base}, action: Pass, step: 1},
		{name: "relay endpoint is public", req: Request{Path: "/api/auth/session-relay", Host: "acme." + base}, action: Pass, step: 1},
		{name: "login without identity", req: Request{Path: "/login", Host: base}, action: Pass, step: 2},
		{name: "register sub-path without identity", req: Request{Path: "/register/confirm", Host: base}, action: Pass, step: 2},
		{
			name: "admin without identity", req: Request{Path: "/admin/tenants", RawQuery: "page=2", Host: base},
			action: Redirect, location: "/login?callbackUrl=" + url.QueryEscape("/admin/tenants?page=2"), step: 3,
		},
		{name: "admin as tenant user", req: Request{Path: "/api/admin/tenants", Host: base, Identity: member}, action: Redirect, location: "/", step: 3},
		{name: "admin as super-admin", req: Request{Path: "/admin", Host: base, Identity: admin}, action: Pass, step: 3},
		{
			name: "private page without identity", req: Request{Path: "/dashboard", Host: "acme." + base},
			action: Redirect, location: "/login?callbackUrl=" + url.QueryEscape("/dashboard"), step: 4,
		},
		{name: "login as super-admin", req: Request{Path: "/login", Host: base, Identity: admin}, action: Redirect, location: "/admin", step: 6},
		{
			name: "login with home tenant relays to dashboard", req: Request{Path: "/login", Host: base, Identity: member},
			action: Redirect, location: relayTo("http://acme." + base + "/dashboard"), step: 6,
		},
		{name: "login without home tenant", req: Request{Path: "/login", Host: base, Identity: homeless}, action: Pass, step: 6},
		{name: "tenant api on apex as super-admin", req: Request{Path: "/api/tenant/plan-status", Host: base, Identity: admin}, action: Reject, status: http.StatusBadRequest, step: 7},
		{name: "tenant ui on apex as super-admin", req: Request{Path: "/billing", Host: base, Identity: admin}, action: Redirect, location: "/admin", step: 7},
		{
			name: "tenant ui on apex relays home", req: Request{Path: "/billing/invoices", RawQuery: "id=7", Host: base, Identity: member},
			action: Redirect, location: relayTo("http://acme." + base + "/billing/invoices?id=7"), step: 7,
		},
		{name: "tenant api on apex without tenant", req: Request{Path: "/api/tenant/billing", Host: base, Identity: homeless}, action: Reject, status: http.StatusBadRequest, step: 7},
		{
			name: "tenant ui on apex without tenant", req: Request{Path: "/dashboard", Host: base, Identity: homeless},
			action: Redirect, location: "/login?callbackUrl=" + url.QueryEscape("/dashboard"), step: 7,
		},
		{name: "tenant host injects slug", req: Request{Path: "/api/tenant/billing", Host: "acme." + base, Identity: member}, action: Pass, slug: "acme", step: 8},
		{name: "localhost tenant host", req: Request{Path: "/dashboard", Host: "acme.localhost:3000", Identity: member}, action: Pass, slug: "acme", step: 8},
		{name: "unlisted page on apex", req: Request{Path: "/profile", Host: base, Identity: homeless}, action: Pass, step: 9},
		{name: "ip host never carries a slug", req: Request{Path: "/profile", Host: "10.0.0.5:3000", Identity: member}, action: Pass, step: 9},
	}

	router := newRouter()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := router.Decide(tc.req)
			if got.Action != tc.action || got.Step != tc.step {
				t.Fatalf("expected %s at step %d, got %s at step %d (%+v)", tc.action, tc.step, got.Action, got.Step, got)
			}
			if tc.location != "" && got.Location != tc.location {
				t.Fatalf("expected location %q, got %q", tc.location, got.Location)
			}
			if tc.status != 0 && got.Status != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, got.Status)
			}
			if got.TenantSlug != tc.slug {
				t.Fatalf("expected slug %q, got %q", tc.slug, got.TenantSlug)
			}
		})
	}
}

func TestMiddlewareInjectsHostSlugOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := newRouter()

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		session.SetIdentity(c, authdomain.Identity{UserID: "u1", TenantSlug: "acme"})
		c.Next()
	})
	engine.Use(router.Middleware(zap.NewNop()))
	engine.GET("/api/tenant/plan-status", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetHeader(tenantctx.Header))
	})
	engine.GET("/profile", func(c *gin.Context) {
		c.String(http.StatusOK, "[%s]", c.GetHeader(tenantctx.Header))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/tenant/plan-status", nil)
	req.Host = "acme." + base
	req.Header.Set(tenantctx.Header, "victim")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "acme" {
		t.Fatalf("expected host slug to win, got %d %q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Host = base
	req.Header.Set(tenantctx.Header, "victim")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Body.String() != "[]" {
		t.Fatalf("expected spoofed header to be dropped, got %q", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/tenant/plan-status", nil)
	req.Host = base
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusFound || w.Header().Get("Location") != relayTo("http://acme."+base+"/api/tenant/plan-status") {
		t.Fatalf("expected relay redirect, got %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestDecideOnIPBaseDomain(t *testing.T) {
	const ipBase = "192.168.1.8:3000"
	router := NewRouter(DefaultRoutes(), hostresolver.NewResolver(config.Config{BaseDomain: ipBase}))
	member := &authdomain.Identity{UserID: "u1", GlobalRole: authdomain.RoleUser, TenantSlug: "acme"}

	got := router.Decide(Request{Path: "/dashboard", Host: ipBase, Identity: member})
	if got.Action != Pass || got.Step != 8 || got.TenantSlug != "acme" {
		t.Fatalf("expected pass with identity slug, got %+v", got)
	}

	got = router.Decide(Request{Path: "/api/tenant/plan-status", Host: ipBase, Identity: member})
	if got.Action != Pass || got.TenantSlug != "acme" {
		t.Fatalf("expected tenant api to pass on ip base, got %+v", got)
	}

	got = router.Decide(Request{Path: "/login", Host: ipBase, Identity: member})
	if got.Action != Redirect || got.Location != DashboardPath {
		t.Fatalf("expected direct dashboard redirect, got %+v", got)
	}

	// A host other than the base still relays to it.
	got = router.Decide(Request{Path: "/dashboard", Host: "10.0.0.5:3000", Identity: member})
	if got.Action != Redirect || got.Location != relayTo("http://"+ipBase+"/dashboard") {
		t.Fatalf("expected relay to the base host, got %+v", got)
	}
}

func TestMiddlewareInjectsIdentitySlugOnIPBase(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const ipBase = "192.168.1.8:3000"
	router := NewRouter(DefaultRoutes(), hostresolver.NewResolver(config.Config{BaseDomain: ipBase}))

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		session.SetIdentity(c, authdomain.Identity{UserID: "u1", TenantSlug: "acme"})
		c.Next()
	})
	engine.Use(router.Middleware(zap.NewNop()))
	engine.GET("/dashboard", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetHeader(tenantctx.Header))
	})

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Host = ipBase
	req.Header.Set(tenantctx.Header, "victim")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "acme" {
		t.Fatalf("expected identity slug on ip base, got %d %q", w.Code, w.Body.String())
	}
}
