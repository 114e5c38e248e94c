package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	authdomain "github.com/smallbiznis/washbay/internal/auth/domain"
	"github.com/smallbiznis/washbay/internal/clock"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTokensRoundTrip(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tokens := NewTokensWithSecret("s3cret", time.Hour, clk)

	raw, expiresAt, err := tokens.Issue(authdomain.Identity{UserID: "u-1", GlobalRole: authdomain.RoleUser, TenantSlug: "acme"})
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(time.Hour), expiresAt)

	identity, verifiedExpiry, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.UserID)
	assert.Equal(t, "acme", identity.TenantSlug)
	assert.False(t, identity.IsSuperAdmin())
	assert.True(t, verifiedExpiry.Equal(expiresAt))
}

func TestTokensRejectTamperingAndExpiry(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tokens := NewTokensWithSecret("s3cret", time.Hour, clk)
	raw, _, err := tokens.Issue(authdomain.Identity{UserID: "u-1", GlobalRole: authdomain.RoleSuperAdmin})
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	_, _, err = tokens.Verify(tampered)
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)

	other := NewTokensWithSecret("different", time.Hour, clk)
	_, _, err = other.Verify(raw)
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)

	clk.Advance(2 * time.Hour)
	_, _, err = tokens.Verify(raw)
	assert.True(t, errors.Is(err, authdomain.ErrTokenExpired))

	_, _, err = tokens.Verify("")
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)
}

func TestTokensRejectNoneAlgorithm(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tokens := NewTokensWithSecret("s3cret", time.Hour, clk)

	claims := &Claims{Role: authdomain.RoleSuperAdmin, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "attacker",
		Issuer:    tokenIssuer,
		ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = tokens.Verify(raw)
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)
}

func TestNewTokensRequiresSecretInProduction(t *testing.T) {
	_, err := NewTokens(config.Config{Environment: config.EnvironmentProduction}, nil, zap.NewNop())
	assert.ErrorIs(t, err, authdomain.ErrMissingSecret)

	tokens, err := NewTokens(config.Config{Environment: config.EnvironmentDevelopment}, nil, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tokens)
}
