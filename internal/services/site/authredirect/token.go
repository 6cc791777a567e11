// Package authredirect is the site's thin sign-in flow: it redirects to the
// external auth service, verifies the token it returns and keeps it in the
// session cookie.
package authredirect

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/vitrine/internal/services/site/platform/errors"
)

// ErrNotConfigured reports a verifier without a signing key.
var ErrNotConfigured = apperrors.E(apperrors.KindUnavailable, "sign-in is not configured")

// Claims are the verified identity claims of a session token.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	ExpiresAt time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Verifier checks HS256 session tokens.
type Verifier struct {
	key []byte
	now func() time.Time
}

// NewVerifier builds a verifier for key. An empty key yields a verifier that
// rejects everything with ErrNotConfigured.
func NewVerifier(key string) *Verifier {
	return &Verifier{key: []byte(strings.TrimSpace(key)), now: time.Now}
}

// Configured reports whether a signing key is set.
func (v *Verifier) Configured() bool {
	return v != nil && len(v.key) > 0
}

// Verify validates token and returns its claims.
func (v *Verifier) Verify(token string) (Claims, error) {
	if !v.Configured() {
		return Claims{}, ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.E(apperrors.KindUnauthorized, "session token is required")
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, apperrors.E(apperrors.KindUnauthorized, "session token subject is required")
	}
	return Claims{
		Subject:   parsed.Subject,
		Email:     parsed.Email,
		Name:      parsed.Name,
		ExpiresAt: parsed.ExpiresAt.Time.UTC(),
	}, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.E(apperrors.KindUnauthorized, "session token is expired")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.E(apperrors.KindUnauthorized, "session token signature is invalid")
	default:
		return apperrors.E(apperrors.KindUnauthorized, "session token is invalid")
	}
}

// Sign issues an HS256 token for claims. The auth service signs real tokens;
// this exists for local development and tests.
func (v *Verifier) Sign(claims Claims) (string, error) {
	if !v.Configured() {
		return "", ErrNotConfigured
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(v.now()),
		},
		Email: claims.Email,
		Name:  claims.Name,
	})
	return token.SignedString(v.key)
}
