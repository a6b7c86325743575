// Package authtest signs access tokens for tests.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"ledger/internal/auth"
	"ledger/internal/core"
)

const Secret = "test-secret-0123456789"

// Token returns a bearer header value for u, valid for an hour.
func Token(t testing.TB, u core.User) string {
	t.Helper()
	return "Bearer " + Sign(t, Secret, u, time.Now().Add(time.Hour))
}

// Sign signs claims for u with HS256 and the given expiry.
func Sign(t testing.TB, secret string, u core.User, exp time.Time) string {
	t.Helper()
	claims := auth.Claims{
		Name:  u.Name,
		Email: u.Email,
		Role:  string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}
