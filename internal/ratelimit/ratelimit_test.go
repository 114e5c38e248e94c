package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTokenBucketExhaustsBurst(t *testing.T) {
	bucket := NewTokenBucket(newTestRedis(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "k", 0.001, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should pass", i)
	}
	res, err := bucket.Allow(ctx, "k", 0.001, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestLockerLeaseIsExclusive(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client)
	ctx := context.Background()
	const key = "washbay:reconcile:plan_changes"

	lease, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key, time.Minute)
	require.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, srv.Exists(key))

	next, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	// An expired lease must not release the key its successor now owns.
	srv.FastForward(2 * time.Minute)
	successor, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, next.Release(ctx))
	assert.True(t, srv.Exists(key))
	require.NoError(t, successor.Release(ctx))

	var nilLocker *Locker
	_, err = nilLocker.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	_, err = locker.Acquire(ctx, key, 0)
	assert.Error(t, err)
}

func TestRelayLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{RateLimit: config.RateLimitConfig{RelayRate: 0.001, RelayBurst: 2}}
	limiter := NewRelayLimiter(cfg, newTestRedis(t), nil, zap.NewNop())
	require.True(t, limiter.Enabled())

	r := gin.New()
	r.GET("/api/auth/session-relay", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusFound) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/session-relay", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusFound, http.StatusFound, http.StatusTooManyRequests}, codes)
}

func TestRelayLimiterDisabledWithoutRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var limiter *RelayLimiter = NewRelayLimiter(config.Config{}, nil, nil, zap.NewNop())
	assert.False(t, limiter.Enabled())

	r := gin.New()
	r.GET("/x", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
