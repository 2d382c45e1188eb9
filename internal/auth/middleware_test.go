package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func mustToken(t *testing.T, role string, expiresIn time.Duration) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "tester",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	policy := NewDefaultPolicy([]string{"/healthz"}, []string{"/metrics"})
	mw := NewMiddleware(testSecret, policy)
	return mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func doRequest(handler http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_MissingTokenRejected(t *testing.T) {
	handler := newTestHandler(t)
	rec := doRequest(handler, http.MethodGet, "/api/v1/shuttles", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_ExemptPathsSkipAuth(t *testing.T) {
	handler := newTestHandler(t)
	for _, path := range []string{"/healthz", "/metrics"} {
		rec := doRequest(handler, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s should be exempt, got %d", path, rec.Code)
		}
	}
}

func TestMiddleware_RolePolicy(t *testing.T) {
	handler := newTestHandler(t)
	cases := []struct {
		name   string
		method string
		path   string
		role   string
		want   int
	}{
		{"viewer reads fleet", http.MethodGet, "/api/v1/shuttles", "viewer", http.StatusOK},
		{"viewer cannot place commands", http.MethodPost, "/api/v1/commands", "viewer", http.StatusForbidden},
		{"operator places commands", http.MethodPost, "/api/v1/commands", "operator", http.StatusOK},
		{"operator cannot toggle mock", http.MethodPost, "/api/v1/wms/mock", "operator", http.StatusForbidden},
		{"admin toggles mock", http.MethodPost, "/api/v1/wms/mock", "admin", http.StatusOK},
		{"viewer reads command history", http.MethodGet, "/api/v1/shuttles/shuttle-01/commands", "viewer", http.StatusOK},
		{"viewer reads exports", http.MethodGet, "/api/v1/exports/fleet.xlsx", "viewer", http.StatusOK},
		{"admin covers everything", http.MethodGet, "/api/v1/shuttles", "admin", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(handler, tc.method, tc.path, mustToken(t, tc.role, time.Hour))
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestMiddleware_ExpiredTokenRejected(t *testing.T) {
	handler := newTestHandler(t)
	rec := doRequest(handler, http.MethodGet, "/api/v1/shuttles", mustToken(t, "viewer", -time.Hour))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_UnknownRoleRejected(t *testing.T) {
	handler := newTestHandler(t)
	rec := doRequest(handler, http.MethodGet, "/api/v1/shuttles", mustToken(t, "superuser", time.Hour))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_WrongSecretRejected(t *testing.T) {
	handler := newTestHandler(t)
	claims := Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "tester"}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	rec := doRequest(handler, http.MethodGet, "/api/v1/shuttles", signed)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
