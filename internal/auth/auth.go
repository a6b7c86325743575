// Package auth verifies bearer tokens and decides whether a caller's role
// may perform an operation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ledger/internal/core"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Claims is the payload of an access token.
type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 tokens signed with a shared secret.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// Authenticate extracts the bearer token from an Authorization header value
// and returns the caller it identifies.
func (a *Authenticator) Authenticate(header string) (core.User, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return core.User{}, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}
	return a.Verify(strings.TrimSpace(token))
}

// Verify checks signature, algorithm and expiry, and that the subject is a
// user id.
func (a *Authenticator) Verify(token string) (core.User, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return core.User{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if !core.IsUUID(claims.Subject) {
		return core.User{}, fmt.Errorf("%w: subject is not a user id", ErrUnauthenticated)
	}

	return core.User{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  core.Role(claims.Role),
	}, nil
}

// Authorize allows the call when role is one of allowed.
func Authorize(role core.Role, allowed []core.Role) error {
	if slices.Contains(allowed, role) {
		return nil
	}
	return fmt.Errorf("%w: role %q", ErrForbidden, role)
}

type contextKey struct{}

func WithUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFrom returns the authenticated caller stored by the middleware.
func UserFrom(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(contextKey{}).(core.User)
	return u, ok
}
