package integration

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://callwire.test"
	testAudience = "orders-svc"
	testSubject  = "callwire-integration"
	testSecret   = "integration-test-secret-0123456789"
)

// tokenVerifier checks the HS256 service tokens the client signs, the way
// a backend behind the dispatcher would.
type tokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

func newTokenVerifier() *tokenVerifier {
	return &tokenVerifier{
		secret:   []byte(testSecret),
		issuer:   testIssuer,
		audience: testAudience,
	}
}

// Verify parses an Authorization header value and validates the token.
func (tv *tokenVerifier) Verify(header string) (*jwt.RegisteredClaims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, errors.New("missing bearer prefix")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return tv.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tv.issuer),
		jwt.WithAudience(tv.audience),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return claims, nil
}

// ForeignToken signs a token with another secret; the verifier must reject it.
func ForeignToken() string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Audience:  jwt.ClaimStrings{testAudience},
		Subject:   "intruder",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("some-other-secret"))
	if err != nil {
		panic("sign JWT: " + err.Error())
	}
	return signed
}
