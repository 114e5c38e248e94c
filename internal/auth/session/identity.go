package session

import (
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/washbay/internal/auth/domain"
	obscontext "github.com/smallbiznis/washbay/internal/observability/context"
)

const identityKey = "washbay.identity"

// LoadIdentity decodes the session cookie (or a bearer token) into the request
// identity. It never aborts: routing decisions belong to the edge router.
func LoadIdentity(tokens *Tokens, sessions *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := sessions.ReadToken(c)
		if !ok {
			raw, ok = bearerToken(c)
		}
		if !ok {
			c.Next()
			return
		}

		identity, _, err := tokens.Verify(raw)
		if err != nil {
			c.Next()
			return
		}

		c.Set(identityKey, identity)
		ctx := obscontext.WithActor(c.Request.Context(), "user", identity.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by LoadIdentity.
func IdentityFrom(c *gin.Context) (authdomain.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return authdomain.Identity{}, false
	}
	identity, ok := value.(authdomain.Identity)
	return identity, ok
}

// SetIdentity stores identity on the gin context. Used by tests and internal callers.
func SetIdentity(c *gin.Context, identity authdomain.Identity) {
	c.Set(identityKey, identity)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
