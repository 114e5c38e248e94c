// Package edge classifies every inbound request before any handler runs:
// public pass-through, login redirects, super-admin areas, tenant routing and
// the apex to subdomain session relay.
package edge

import (
	"net/http"
	"net/url"
	"strings"

	authdomain "github.com/smallbiznis/washbay/internal/auth/domain"
	"github.com/smallbiznis/washbay/internal/auth/relay"
	"github.com/smallbiznis/washbay/internal/hostresolver"
)

const (
	AdminPath     = "/admin"
	DashboardPath = "/dashboard"
	callbackParam = "callbackUrl"
)

// Routes lists the path prefixes the router classifies. A prefix matches the
// path itself and anything below it.
type Routes struct {
	Public      []string
	PublicExact []string
	AuthPages   []string
	Admin       []string
	TenantUI    []string
	TenantAPI   []string
}

func DefaultRoutes() Routes {
	return Routes{
		Public: []string{
			"/api/auth",
			"/api/webhooks",
			"/api/cron",
			"/api/plans",
			"/api/public-stats",
			"/health",
			"/metrics",
			"/static",
		},
		PublicExact: []string{"/"},
		AuthPages:   []string{"/login", "/register"},
		Admin:       []string{"/admin", "/api/admin"},
		TenantUI: []string{
			"/dashboard",
			"/settings",
			"/billing",
			"/services",
			"/customers",
			"/vehicles",
			"/bookings",
			"/reports",
			"/team",
		},
		TenantAPI: []string{"/api/tenant"},
	}
}

type Action int

const (
	Pass Action = iota
	Redirect
	Reject
)

func (a Action) String() string {
	switch a {
	case Redirect:
		return "redirect"
	case Reject:
		return "reject"
	default:
		return "pass"
	}
}

// Decision is what the middleware does with a request. Step names the rule
// that matched.
type Decision struct {
	Action     Action
	Location   string
	Status     int
	Error      string
	TenantSlug string
	Step       int
}

// Request is the transport-independent input of the router.
type Request struct {
	Path     string
	RawQuery string
	Host     string
	Identity *authdomain.Identity
}

func (r Request) target() string {
	if r.RawQuery == "" {
		return r.Path
	}
	return r.Path + "?" + r.RawQuery
}

type Router struct {
	routes   Routes
	resolver *hostresolver.Resolver
}

func NewRouter(routes Routes, resolver *hostresolver.Resolver) *Router {
	return &Router{routes: routes, resolver: resolver}
}

const (
	errUseSubdomain = "tenant context required: use your tenant subdomain"
	errNoTenant     = "tenant context required"
)

// Decide applies the routing rules in order; the first match wins.
func (r *Router) Decide(req Request) Decision {
	path := cleanPath(req.Path)
	identity := req.Identity

	if r.isPublic(path) {
		return Decision{Action: Pass, Step: 1}
	}

	authPage := matchAny(path, r.routes.AuthPages)
	if authPage && identity == nil {
		return Decision{Action: Pass, Step: 2}
	}

	if matchAny(path, r.routes.Admin) {
		if identity == nil {
			return r.toLogin(req, 3)
		}
		if !identity.IsSuperAdmin() {
			return Decision{Action: Redirect, Location: "/", Status: http.StatusFound, Step: 3}
		}
		return Decision{Action: Pass, Step: 3}
	}

	if identity == nil {
		return r.toLogin(req, 4)
	}

	if authPage {
		switch {
		case identity.IsSuperAdmin():
			return Decision{Action: Redirect, Location: AdminPath, Status: http.StatusFound, Step: 6}
		case identity.HasHomeTenant():
			if r.sharesOrigin(req.Host, identity.TenantSlug) {
				return Decision{Action: Redirect, Location: DashboardPath, Status: http.StatusFound, Step: 6}
			}
			return r.toRelay(identity.TenantSlug, DashboardPath, 6)
		default:
			return Decision{Action: Pass, Step: 6}
		}
	}

	slug := ""
	if r.resolver != nil {
		slug = r.resolver.TenantSlug(req.Host)
	}
	api := matchAny(path, r.routes.TenantAPI)
	ui := matchAny(path, r.routes.TenantUI)
	if slug == "" && (api || ui) {
		switch {
		case identity.IsSuperAdmin():
			if api {
				return Decision{Action: Reject, Status: http.StatusBadRequest, Error: errUseSubdomain, Step: 7}
			}
			return Decision{Action: Redirect, Location: AdminPath, Status: http.StatusFound, Step: 7}
		case identity.HasHomeTenant():
			if r.sharesOrigin(req.Host, identity.TenantSlug) {
				return Decision{Action: Pass, TenantSlug: identity.TenantSlug, Step: 8}
			}
			return r.toRelay(identity.TenantSlug, req.target(), 7)
		case api:
			return Decision{Action: Reject, Status: http.StatusBadRequest, Error: errNoTenant, Step: 7}
		default:
			return r.toLogin(req, 7)
		}
	}

	if slug != "" {
		return Decision{Action: Pass, TenantSlug: slug, Step: 8}
	}
	return Decision{Action: Pass, Step: 9}
}

func (r *Router) isPublic(path string) bool {
	for _, exact := range r.routes.PublicExact {
		if path == exact {
			return true
		}
	}
	return matchAny(path, r.routes.Public)
}

func (r *Router) toLogin(req Request, step int) Decision {
	location := relay.LoginPath + "?" + callbackParam + "=" + url.QueryEscape(req.target())
	return Decision{Action: Redirect, Location: location, Status: http.StatusFound, Step: step}
}

// toRelay starts hop 1 of the session relay on the current host.
func (r *Router) toRelay(tenantSlug, target string, step int) Decision {
	destination := r.resolver.TenantURL(tenantSlug, target)
	location := relay.Path + "?" + callbackParam + "=" + url.QueryEscape(destination)
	return Decision{Action: Redirect, Location: location, Status: http.StatusFound, Step: step}
}

// sharesOrigin reports whether the tenant URL lives on host itself. That is
// the case for IP base domains, where the slug travels only in the header.
func (r *Router) sharesOrigin(host, tenantSlug string) bool {
	if r.resolver == nil {
		return false
	}
	destination, err := url.Parse(r.resolver.TenantURL(tenantSlug, "/"))
	if err != nil {
		return false
	}
	return strings.EqualFold(destination.Host, strings.TrimSpace(host))
}

func matchAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if matchPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func matchPrefix(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return false
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func cleanPath(path string) string {
	if path == "" {
		return "/"
	}
	if trimmed := strings.TrimRight(path, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}
