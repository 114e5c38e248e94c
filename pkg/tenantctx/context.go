// Package tenantctx carries the resolved tenant through a request explicitly.
package tenantctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Header carries the tenant slug resolved at the edge to downstream handlers.
const Header = "X-Tenant-Slug"

// TenantContext is produced once per request by the access gate and passed to
// every tenant-scoped operation.
type TenantContext struct {
	TenantID snowflake.ID
	Slug     string
}

func (t TenantContext) Valid() bool {
	return t.TenantID != 0 && t.Slug != ""
}

type contextKey struct{}

func With(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

func From(ctx context.Context) (TenantContext, bool) {
	if ctx == nil {
		return TenantContext{}, false
	}
	tc, ok := ctx.Value(contextKey{}).(TenantContext)
	return tc, ok && tc.Valid()
}
