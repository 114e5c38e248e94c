package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/washbay/internal/access"
	"github.com/smallbiznis/washbay/internal/auth/session"
)

const HeaderCronSecret = "X-Cron-Secret"

// SuperAdminRequired rejects callers without the global super-admin role.
func (s *Server) SuperAdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := session.IdentityFrom(c)
		if !ok {
			AbortWithError(c, access.Unauthenticated())
			return
		}
		if !identity.IsSuperAdmin() {
			AbortWithError(c, access.Forbidden())
			return
		}
		c.Next()
	}
}

// CronSecretRequired checks the shared cron secret from X-Cron-Secret or a
// bearer Authorization header. An empty secret is only accepted outside
// production.
func (s *Server) CronSecretRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := strings.TrimSpace(s.cfg.CronSecret)
		if secret == "" {
			if s.cfg.IsProduction() {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			c.Next()
			return
		}

		provided := strings.TrimSpace(c.GetHeader(HeaderCronSecret))
		if provided == "" {
			header := strings.TrimSpace(c.GetHeader("Authorization"))
			if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
				provided = strings.TrimSpace(header[7:])
			}
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}
