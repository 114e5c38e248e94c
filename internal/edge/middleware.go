package edge

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/washbay/internal/auth/session"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
	"go.uber.org/zap"
)

// Middleware must run after session.LoadIdentity. A tenant header sent by the
// client is always dropped; the header seen downstream is the one the router
// decided, from the host or, on an IP base domain, from the identity.
func (r *Router) Middleware(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("edge")
	return func(c *gin.Context) {
		c.Request.Header.Del(tenantctx.Header)

		req := Request{
			Path:     c.Request.URL.Path,
			RawQuery: c.Request.URL.RawQuery,
			Host:     c.Request.Host,
		}
		if identity, ok := session.IdentityFrom(c); ok {
			req.Identity = &identity
		}

		decision := r.Decide(req)
		switch decision.Action {
		case Redirect:
			log.Debug("edge redirect",
				zap.Int("step", decision.Step),
				zap.String("path", req.Path),
				zap.String("location", decision.Location),
			)
			c.Redirect(decision.Status, decision.Location)
			c.Abort()
		case Reject:
			c.AbortWithStatusJSON(decision.Status, gin.H{"error": decision.Error})
		default:
			if decision.TenantSlug != "" {
				c.Request.Header.Set(tenantctx.Header, decision.TenantSlug)
			}
			c.Next()
		}
	}
}
