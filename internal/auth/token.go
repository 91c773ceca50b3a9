package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quiz-attempt-service/internal/domain"
)

// Verifier resolves bearer tokens to opaque identity keys. Tokens are
// HMAC-signed JWTs whose subject claim carries the identity.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Identity validates token and returns the identity key it carries.
// All failures wrap domain.ErrUnauthorized.
func (v *Verifier) Identity(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return sub, nil
}

// Mint issues a signed token for identity, valid for ttl. Used by tests and
// the demo tooling; production deployments are expected to bring tokens from
// the identity provider sharing the same secret.
func (v *Verifier) Mint(identity string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   identity,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
