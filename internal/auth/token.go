package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/taskhub/apiserver/internal/apperr"
)

// RefreshTokenType is the value of the "type" claim on refresh tokens.
const RefreshTokenType = "refresh"

const (
	DefaultAccessTokenTTL  = 3600 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims is the claim set carried by every token. Access tokens leave Type empty.
type Claims struct {
	Email string `json:"email,omitempty"`
	Type  string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// IsRefresh reports whether the claims carry the refresh discriminator.
func (c Claims) IsRefresh() bool {
	return c.Type == RefreshTokenType
}

// TokenConfig is the immutable codec configuration.
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenCodec signs and verifies HS256 tokens.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenCodec builds a codec. Non-positive lifetimes fall back to the defaults.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}
	return &TokenCodec{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock returns a copy of the codec that reads time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	clone := *c
	clone.now = now
	return &clone
}

// IssueAccess mints an access token for claims.
func (c *TokenCodec) IssueAccess(claims Claims) (string, error) {
	claims.Type = ""
	return c.issue(claims, c.accessTTL)
}

// IssueRefresh mints a refresh token for claims.
func (c *TokenCodec) IssueRefresh(claims Claims) (string, error) {
	claims.Type = RefreshTokenType
	return c.issue(claims, c.refreshTTL)
}

func (c *TokenCodec) issue(claims Claims, ttl time.Duration) (string, error) {
	now := c.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return signed, nil
}

// Verify checks signature and expiry. Every failure is reported as
// apperr.ErrInvalidToken; the underlying reason is kept only as the cause.
func (c *TokenCodec) Verify(tokenString string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		// Non-canonical base64 would let several encodings share one signature.
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Claims{}, apperr.ErrInvalidToken.WithCause(err)
	}
	if !token.Valid {
		return Claims{}, apperr.ErrInvalidToken
	}
	return claims, nil
}
