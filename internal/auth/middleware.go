package auth

import (
	"context"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
)

// UserStore records authenticated callers so their expenses can reference them.
type UserStore interface {
	UpsertUser(ctx context.Context, u core.User) error
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware rejects requests without a valid bearer token and stores the
// caller in the request context. The caller's row is upserted first; a store
// failure is reported through fail like any other error.
func Middleware(a *Authenticator, users UserStore, fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			user, err := a.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				log.FromContext(ctx).DebugContext(ctx, "Authentication failed", log.FieldError, err.Error())
				fail(w, r, err)
				return
			}

			if err := users.UpsertUser(ctx, user); err != nil {
				fail(w, r, err)
				return
			}

			logger := log.FromContext(ctx).With(log.FieldUserID, user.ID, log.FieldRole, string(user.Role))
			ctx = log.NewContext(WithUser(ctx, user), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole wraps a handler with Authorize against the caller in context.
func RequireRole(allowed []core.Role, fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFrom(r.Context())
			if !ok {
				fail(w, r, ErrUnauthenticated)
				return
			}
			if err := Authorize(user.Role, allowed); err != nil {
				fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
