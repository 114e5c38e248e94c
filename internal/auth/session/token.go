package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	authdomain "github.com/smallbiznis/washbay/internal/auth/domain"
	"github.com/smallbiznis/washbay/internal/clock"
	"github.com/smallbiznis/washbay/internal/config"
	"go.uber.org/zap"
)

const tokenIssuer = "washbay"

// Claims is the signed session payload.
type Claims struct {
	Email      string `json:"email,omitempty"`
	Role       string `json:"role"`
	TenantSlug string `json:"tenant_slug,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewTokens(cfg config.Config, clk clock.Clock, log *zap.Logger) (*Tokens, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		if cfg.IsProduction() {
			return nil, authdomain.ErrMissingSecret
		}
		// Sessions will not survive a restart.
		secret = uuid.NewString()
		if log != nil {
			log.Warn("AUTH_JWT_SECRET not set, using an ephemeral signing secret")
		}
	}
	return NewTokensWithSecret(secret, cfg.AuthSessionTTL, clk), nil
}

func NewTokensWithSecret(secret string, ttl time.Duration, clk clock.Clock) *Tokens {
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, clock: clk}
}

// Issue signs a token for identity and returns it with its expiry.
func (t *Tokens) Issue(identity authdomain.Identity) (string, time.Time, error) {
	if strings.TrimSpace(identity.UserID) == "" {
		return "", time.Time{}, authdomain.ErrMissingSubject
	}
	now := t.clock.Now()
	expiresAt := now.Add(t.ttl)
	claims := &Claims{
		Email:      identity.Email,
		Role:       identity.GlobalRole,
		TenantSlug: identity.TenantSlug,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   identity.UserID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, algorithm and expiry and returns the identity with the token expiry.
func (t *Tokens) Verify(raw string) (authdomain.Identity, time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return authdomain.Identity{}, time.Time{}, authdomain.ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return authdomain.Identity{}, time.Time{}, authdomain.ErrTokenExpired
		}
		return authdomain.Identity{}, time.Time{}, authdomain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return authdomain.Identity{}, time.Time{}, authdomain.ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return authdomain.Identity{}, time.Time{}, authdomain.ErrMissingSubject
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return authdomain.Identity{
		UserID:     claims.Subject,
		Email:      claims.Email,
		GlobalRole: claims.Role,
		TenantSlug: claims.TenantSlug,
	}, expiresAt, nil
}
