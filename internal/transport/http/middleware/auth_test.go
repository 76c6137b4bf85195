package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"payhub/internal/domain/auth"
)

type stubSessionStore struct {
	info  SessionInfo
	found bool
	err   error
}

func (s *stubSessionStore) Lookup(_ context.Context, _ string) (SessionInfo, bool, error) {
	return s.info, s.found, s.err
}

func TestAuthMiddlewareSetsUser(t *testing.T) {
	secret := "test-secret"
	token, err := auth.GenerateToken(secret, auth.Claims{UserID: "u1", CompanyID: "c1", Role: auth.RoleAdmin, SessionID: "s1"}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	handler := Auth(secret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetUser(r.Context())
		if !ok {
			t.Fatal("expected user in context")
		}
		if user.UserID != "u1" || user.Role != auth.RoleAdmin {
			t.Fatalf("unexpected user: %+v", user)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
}

func TestAuthMiddlewareMissingToken(t *testing.T) {
	handler := Auth("secret", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); ok {
			t.Fatal("did not expect user in context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
}

func TestAuthMiddlewareRevokedSession(t *testing.T) {
	secret := "test-secret"
	token, err := auth.GenerateToken(secret, auth.Claims{UserID: "u1", CompanyID: "c1", Role: auth.RoleAdmin, SessionID: "s1"}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	handler := Auth(secret, &stubSessionStore{found: false})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); ok {
			t.Fatal("revoked session must not yield a user")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
}

func TestAuthMiddlewareSessionStoreFailure(t *testing.T) {
	secret := "test-secret"
	token, err := auth.GenerateToken(secret, auth.Claims{UserID: "u1", CompanyID: "c1", Role: auth.RoleAdmin, SessionID: "s1"}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	store := &stubSessionStore{err: errors.New("connection refused")}
	handler := Auth(secret, store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("a store failure must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the session store is down, got %d", rec.Code)
	}
}

func TestAuthMiddlewareLoadsImpersonationFromSession(t *testing.T) {
	secret := "test-secret"
	token, err := auth.GenerateToken(secret, auth.Claims{UserID: "u1", Role: auth.RoleSuperAdmin, SessionID: "s1"}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	store := &stubSessionStore{
		info: SessionInfo{
			UserID:             "u1",
			Role:               "SUPERADMIN",
			ImpersonateCompany: "c9",
		},
		found: true,
	}

	handler := Auth(secret, store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetUser(r.Context())
		if !ok {
			t.Fatal("expected user in context")
		}
		if user.Role != auth.RoleSuperAdmin {
			t.Fatalf("expected legacy role spelling to normalize, got %q", user.Role)
		}
		if user.ImpersonateCompany != "c9" {
			t.Fatalf("expected impersonation from session row, got %q", user.ImpersonateCompany)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
}

func TestRequirePermission(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		user     *auth.UserContext
		resource string
		action   string
		want     int
	}{
		{"anonymous rejected", nil, auth.ResourcePayments, auth.ActionView, http.StatusUnauthorized},
		{"cashier records payments", &auth.UserContext{UserID: "u1", Role: auth.RoleCashier}, auth.ResourcePayments, auth.ActionCreate, http.StatusNoContent},
		{"cashier cannot edit employees", &auth.UserContext{UserID: "u1", Role: auth.RoleCashier}, auth.ResourceEmployees, auth.ActionEdit, http.StatusForbidden},
		{"admin cannot manage companies", &auth.UserContext{UserID: "u2", Role: auth.RoleAdmin}, auth.ResourceCompanies, auth.ActionView, http.StatusForbidden},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			handler := RequirePermission(tc.resource, tc.action)(next)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.user != nil {
				req = req.WithContext(context.WithValue(req.Context(), ctxKeyUser, *tc.user))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Fatal("expected request id in context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.Header.Set("X-Request-ID", "fixed-id")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Header().Get("X-Request-ID") != "fixed-id" {
		t.Fatal("expected caller-supplied request id to be preserved")
	}
}
