package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aliuyar1234/sanctus/internal/auth"
	"github.com/aliuyar1234/sanctus/internal/config"
	"github.com/aliuyar1234/sanctus/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env:                 "dev",
		HTTPAddr:            ":0",
		BaseURL:             "http://localhost:4200",
		DBDSN:               SQLiteScheme + filepath.Join(t.TempDir(), "app.db"),
		JWTSecret:           "test-secret",
		TokenPepper:         "test-pepper",
		LogLevel:            "error",
		SessionDays:         7,
		InviteTTL:           72 * time.Hour,
		InviteRetentionDays: 30,
		LoginRatePerMin:     100,
		EmailConfirmation:   true,
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()

	st, err := OpenStore(context.Background(), cfg, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	m := metrics.NewMetrics(prometheus.NewRegistry())
	services, err := NewServices(st, cfg, m)
	require.NoError(t, err)

	return NewRouter(cfg, st, services, m)
}

func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: auth.CSRFCookieName, Value: "csrf-token"})
	req.Header.Set(auth.CSRFHeaderName, "csrf-token")
	return req
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(t, testConfig(t))

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}
}

func TestCSRFRequiredOnMutations(t *testing.T) {
	r := newTestRouter(t, testConfig(t))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "Invalid CSRF token")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withCSRF(httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@b.org","password":"x"}`))))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.LoginRatePerMin = 2
	r := newTestRouter(t, cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, withCSRF(httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@b.org","password":"x"}`))))
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)

	// Limiters are per route.
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invites/validate?token=abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRequireSession(t *testing.T) {
	r := newTestRouter(t, testConfig(t))

	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/invites"},
		{http.MethodPost, "/api/v1/invites"},
		{http.MethodGet, "/api/v1/audit"},
		{http.MethodGet, "/api/v1/account/me"},
		{http.MethodGet, "/api/v1/account/role"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, withCSRF(httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))))
		require.Equal(t, http.StatusUnauthorized, rec.Code, tt.path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, testConfig(t))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `sanctus_http_requests_total{method="GET",status="200"}`)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"internal_error"`)
}
