// Package domain contains the identity types shared by session handling,
// the edge router and the access gate.
package domain

import "strings"

// Global roles carried by a session token.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleUser       = "USER"
)

// Identity is the verified principal decoded from a session token.
// Credential verification happens upstream; the core only consumes this shape.
type Identity struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email,omitempty"`
	GlobalRole string `json:"role"`
	// TenantSlug is the user's home tenant, empty until the user belongs to one.
	TenantSlug string `json:"tenant_slug,omitempty"`
}

func (i Identity) IsSuperAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(i.GlobalRole), RoleSuperAdmin)
}

func (i Identity) HasHomeTenant() bool {
	return strings.TrimSpace(i.TenantSlug) != ""
}
