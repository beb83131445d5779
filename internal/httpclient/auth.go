package httpclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the bearer token attached to outgoing exchanges.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// JWTSigner mints HS256 service tokens and reuses each one until shortly
// before it expires.
type JWTSigner struct {
	issuer   string
	audience string
	subject  string
	secret   []byte
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	cached  string
	expires time.Time
}

// refreshMargin is how long before expiry a cached token is replaced.
const refreshMargin = 10 * time.Second

// NewJWTSigner creates a signer. The secret must not be empty.
func NewJWTSigner(issuer, audience, subject string, secret []byte, ttl time.Duration) (*JWTSigner, error) {
	if len(secret) == 0 {
		return nil, errors.New("httpclient: jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &JWTSigner{
		issuer:   issuer,
		audience: audience,
		subject:  subject,
		secret:   secret,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Token implements TokenSource.
func (s *JWTSigner) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached != "" && now.Add(refreshMargin).Before(s.expires) {
		return s.cached, nil
	}

	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   s.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("httpclient: sign jwt: %w", err)
	}
	s.cached = signed
	s.expires = expires
	return signed, nil
}
