package relay

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/washbay/internal/auth/session"
	"github.com/smallbiznis/washbay/internal/hostresolver"
	"github.com/smallbiznis/washbay/internal/observability/metrics"
	"github.com/smallbiznis/washbay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Tokens   *session.Tokens
	Sessions *session.Manager
	Resolver *hostresolver.Resolver
	Metrics  *metrics.Metrics        `optional:"true"`
	Limiter  *ratelimit.RelayLimiter `optional:"true"`
	Log      *zap.Logger
}

// Handler serves both relay hops on the same endpoint.
type Handler struct {
	relay    *Relay
	sessions *session.Manager
	metrics  *metrics.Metrics
	limiter  *ratelimit.RelayLimiter
	log      *zap.Logger
}

func NewHandler(p Params) *Handler {
	return &Handler{
		relay:    New(p.Tokens, p.Resolver),
		sessions: p.Sessions,
		metrics:  p.Metrics,
		limiter:  p.Limiter,
		log:      p.Log.Named("auth.relay"),
	}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET(Path, h.limiter.Middleware(), h.Serve)
	r.POST(Path, h.limiter.Middleware(), h.Serve)
	r.POST(LogoutPath, h.Logout)
}

func (h *Handler) Serve(c *gin.Context) {
	req := Request{
		Host:        c.Request.Host,
		CallbackURL: c.Query("callbackUrl"),
		Token:       c.Query("token"),
	}
	if raw, ok := h.sessions.ReadToken(c); ok {
		req.SessionCookie = raw
	}

	out := h.relay.Step(req)
	h.metrics.RecordRelayHop(c.Request.Context(), out.State.String(), out.Result)
	// Token values never reach the log.
	h.log.Debug("session relay hop",
		zap.String("state", out.State.String()),
		zap.String("result", out.Result),
		zap.String("host", req.Host),
	)

	if out.Err != nil {
		c.JSON(out.Status, gin.H{"error": out.Err.Error()})
		return
	}
	if out.SetCookie {
		h.sessions.Set(c, out.CookieValue, out.CookieExpires)
	}
	c.Redirect(http.StatusFound, out.Location)
}

// Logout drops the session on this host and on the domain it shares with the
// apex, so a cookie written there cannot bring the session back.
func (h *Handler) Logout(c *gin.Context) {
	h.sessions.Clear(c, hostresolver.CookieDomain(c.Request.Host))
	h.log.Debug("session cleared", zap.String("host", c.Request.Host))
	c.Redirect(http.StatusSeeOther, LoginPath)
}
