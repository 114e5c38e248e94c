package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	keyRelayClient    = "washbay:relay:ip:%s"
	endpointRelayName = "session_relay"
)

// RelayLimiter throttles session relay hops per client IP.
type RelayLimiter struct {
	bucket  *TokenBucket
	rate    float64
	burst   int
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewRelayLimiter(cfg config.Config, client *redis.Client, m *metrics.Metrics, log *zap.Logger) *RelayLimiter {
	if client == nil || cfg.RateLimit.RelayRate <= 0 || cfg.RateLimit.RelayBurst <= 0 {
		return nil
	}
	return &RelayLimiter{
		bucket:  NewTokenBucket(client),
		rate:    cfg.RateLimit.RelayRate,
		burst:   cfg.RateLimit.RelayBurst,
		metrics: m,
		log:     log.Named("ratelimit.relay"),
	}
}

func (l *RelayLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Middleware fails open when redis is unreachable.
func (l *RelayLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyRelayClient, c.ClientIP()), l.rate, l.burst)
		if err != nil {
			l.log.Warn("relay rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			l.metrics.RecordRateLimitDenied(ctx, endpointRelayName, "burst_exhausted")
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		l.metrics.RecordRateLimitAllowed(ctx, endpointRelayName)
		c.Next()
	}
}
