// Package hostresolver maps request hosts to tenant slugs, cookie domains and
// tenant-qualified URLs. Every function is pure and performs no I/O.
package hostresolver

import (
	"net"
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/washbay/internal/config"
)

const localhost = "localhost"

// StripPort returns the lower-cased hostname without port or IPv6 brackets.
func StripPort(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return strings.Trim(h, "[]")
	}
	return strings.Trim(host, "[]")
}

// IsIP reports whether host (with or without port) is an IP literal.
func IsIP(host string) bool {
	return net.ParseIP(StripPort(host)) != nil
}

// ExtractTenantSlug returns the tenant label carried by host, or "" for apex,
// IP and foreign hosts.
func ExtractTenantSlug(host, baseDomain string) string {
	hostname := StripPort(host)
	if hostname == "" || net.ParseIP(hostname) != nil {
		return ""
	}
	baseHost := StripPort(baseDomain)
	if hostname == baseHost {
		return ""
	}

	var label string
	switch {
	case strings.HasSuffix(hostname, "."+localhost):
		label = strings.TrimSuffix(hostname, "."+localhost)
	case baseHost != "" && net.ParseIP(baseHost) == nil && strings.HasSuffix(hostname, "."+baseHost):
		label = strings.TrimSuffix(hostname, "."+baseHost)
	default:
		return ""
	}
	if strings.Contains(label, ".") || !slug.IsSlug(label) {
		return ""
	}
	return label
}

// BuildTenantURL returns scheme://slug.baseDomain/path. IP base domains cannot
// carry subdomains, so the base domain is used unmodified and callers rely on
// the injected tenant header instead.
func BuildTenantURL(tenantSlug, path, baseDomain, scheme string) string {
	if scheme == "" {
		scheme = "http"
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	baseDomain = strings.ToLower(strings.TrimSpace(baseDomain))
	if IsIP(baseDomain) || tenantSlug == "" {
		return scheme + "://" + baseDomain + path
	}
	return scheme + "://" + tenantSlug + "." + baseDomain + path
}

// CookieDomain returns the domain attribute that lets a cookie span host and
// its siblings. An empty result means host-only.
func CookieDomain(host string) string {
	hostname := StripPort(host)
	if hostname == "" || net.ParseIP(hostname) != nil {
		return ""
	}
	if hostname == localhost || strings.HasSuffix(hostname, "."+localhost) {
		return "." + localhost
	}
	labels := strings.Split(hostname, ".")
	if len(labels) < 2 {
		return ""
	}
	return "." + strings.Join(labels[len(labels)-2:], ".")
}

// BelongsToBase reports whether host is the base domain or one of its subdomains.
func BelongsToBase(host, baseDomain string) bool {
	hostname := StripPort(host)
	baseHost := StripPort(baseDomain)
	if hostname == "" || baseHost == "" {
		return false
	}
	if hostname == baseHost {
		return true
	}
	if net.ParseIP(baseHost) != nil {
		return false
	}
	if baseHost == localhost && strings.HasSuffix(hostname, "."+localhost) {
		return true
	}
	return strings.HasSuffix(hostname, "."+baseHost)
}

// Resolver binds the pure helpers to the configured base domain and scheme.
type Resolver struct {
	BaseDomain string
	Scheme     string
}

func NewResolver(cfg config.Config) *Resolver {
	return &Resolver{BaseDomain: cfg.BaseDomain, Scheme: cfg.Scheme()}
}

func (r *Resolver) TenantSlug(host string) string {
	return ExtractTenantSlug(host, r.BaseDomain)
}

func (r *Resolver) TenantURL(tenantSlug, path string) string {
	return BuildTenantURL(tenantSlug, path, r.BaseDomain, r.Scheme)
}

func (r *Resolver) Owns(host string) bool {
	return BelongsToBase(host, r.BaseDomain)
}
