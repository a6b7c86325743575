package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/auth"
	"ledger/internal/auth/authtest"
	"ledger/internal/core"
)

var caller = core.User{
	ID:    "22222222-2222-4222-8222-222222222222",
	Name:  "Finn Finance",
	Email: "finn@example.org",
	Role:  core.RoleFinanceTeam,
}

func TestAuthenticate(t *testing.T) {
	a := auth.NewAuthenticator(authtest.Secret)

	user, err := a.Authenticate(authtest.Token(t, caller))
	require.NoError(t, err)
	assert.Equal(t, caller, user)

	none := caller
	none.Role = ""
	user, err = a.Authenticate(authtest.Token(t, none))
	require.NoError(t, err, "a token without role still authenticates")
	assert.Equal(t, core.Role(""), user.Role)
}

func TestAuthenticate_Rejects(t *testing.T) {
	a := auth.NewAuthenticator(authtest.Secret)
	badSubject := caller
	badSubject.ID = "42"

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: caller.ID},
	}).SignedString([]byte(authtest.Secret))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: caller.ID, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + authtest.Sign(t, "another-secret-value", caller, time.Now().Add(time.Hour))},
		{"expired", "Bearer " + authtest.Sign(t, authtest.Secret, caller, time.Now().Add(-time.Minute))},
		{"no expiry", "Bearer " + noExp},
		{"alg none", "Bearer " + none},
		{"subject not a uuid", "Bearer " + authtest.Sign(t, authtest.Secret, badSubject, time.Now().Add(time.Hour))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(tt.header)
			assert.ErrorIs(t, err, auth.ErrUnauthenticated)
		})
	}
}

func TestAuthorize(t *testing.T) {
	for _, role := range core.ExpenseEditors {
		assert.NoError(t, auth.Authorize(role, core.ExpenseEditors), role)
	}
	for _, role := range []core.Role{"", "VOLUNTEER", "admin"} {
		assert.ErrorIs(t, auth.Authorize(role, core.ExpenseEditors), auth.ErrForbidden, role)
	}
}

type userStore struct {
	upserted []core.User
	err      error
}

func (s *userStore) UpsertUser(_ context.Context, u core.User) error {
	s.upserted = append(s.upserted, u)
	return s.err
}

func TestMiddleware(t *testing.T) {
	a := auth.NewAuthenticator(authtest.Secret)
	var failed error
	fail := func(w http.ResponseWriter, r *http.Request, err error) {
		failed = err
		w.WriteHeader(http.StatusUnauthorized)
	}

	t.Run("stores caller and upserts", func(t *testing.T) {
		store := &userStore{}
		var got core.User
		h := auth.Middleware(a, store, fail)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = auth.UserFrom(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", authtest.Token(t, caller))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, caller, got)
		assert.Equal(t, []core.User{caller}, store.upserted)
	})

	t.Run("rejects without token", func(t *testing.T) {
		failed = nil
		store := &userStore{}
		h := auth.Middleware(a, store, fail)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, failed, auth.ErrUnauthenticated)
		assert.Empty(t, store.upserted)
	})

	t.Run("store failure is reported", func(t *testing.T) {
		failed = nil
		store := &userStore{err: core.ErrUnavailable}
		h := auth.Middleware(a, store, fail)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", authtest.Token(t, caller))
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.True(t, errors.Is(failed, core.ErrUnavailable))
	})
}

func TestRequireRole(t *testing.T) {
	var failed error
	fail := func(w http.ResponseWriter, r *http.Request, err error) {
		failed = err
		w.WriteHeader(http.StatusForbidden)
	}
	h := auth.RequireRole(core.ExpenseEditors, fail)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	volunteer := caller
	volunteer.Role = "VOLUNTEER"
	tests := []struct {
		name    string
		ctx     context.Context
		code    int
		wantErr error
	}{
		{"editor", auth.WithUser(context.Background(), caller), http.StatusNoContent, nil},
		{"other role", auth.WithUser(context.Background(), volunteer), http.StatusForbidden, auth.ErrForbidden},
		{"no caller", context.Background(), http.StatusForbidden, auth.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failed = nil
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil).WithContext(tt.ctx))
			assert.Equal(t, tt.code, rr.Code)
			if tt.wantErr != nil {
				assert.ErrorIs(t, failed, tt.wantErr)
			} else {
				assert.NoError(t, failed)
			}
		})
	}
}
