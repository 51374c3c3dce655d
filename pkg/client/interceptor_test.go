package client

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct{ calls int }

func (r *recordingInvalidator) Invalidate() { r.calls++ }

func respond(status int, cookies ...*http.Cookie) Handler {
	return func(req *http.Request) (*http.Response, error) {
		h := http.Header{}
		for _, c := range cookies {
			h.Add("Set-Cookie", c.String())
		}
		return &http.Response{
			StatusCode: status,
			Header:     h,
			Body:       io.NopCloser(strings.NewReader("{}")),
			Request:    req,
		}, nil
	}
}

func newTestInterceptor(t *testing.T, base string) (*Interceptor, *cookiejar.Jar, *recordingInvalidator, *History) {
	t.Helper()
	u, err := url.Parse(base)
	require.NoError(t, err)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	inv := &recordingInvalidator{}
	nav := NewHistory("/admin/settings")
	return NewInterceptor(u, jar, inv, nav), jar, inv, nav
}

func mustRequest(t *testing.T, method, rawURL string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, rawURL, nil)
	require.NoError(t, err)
	return req
}

func TestIntercept_CredentialsOnlyForAPIOrigin(t *testing.T) {
	i, jar, _, _ := newTestInterceptor(t, "https://api.example.org")
	api, _ := url.Parse("https://api.example.org/")
	jar.SetCookies(api, []*http.Cookie{
		{Name: "sc_session", Value: "s3cr3t", Path: "/"},
		{Name: csrfCookie, Value: "xsrf", Path: "/"},
	})

	var seen *http.Request
	capture := func(req *http.Request) (*http.Response, error) {
		seen = req
		return respond(http.StatusOK)(req)
	}

	tests := []struct {
		name       string
		method     string
		url        string
		wantCookie bool
		wantXSRF   bool
	}{
		{"api get", http.MethodGet, "https://api.example.org/api/v1/account/me", true, false},
		{"api post", http.MethodPost, "https://api.example.org/api/v1/invites", true, true},
		{"other origin", http.MethodPost, "https://cdn.example.net/saints.json", false, false},
		{"other scheme", http.MethodGet, "http://api.example.org/api/v1/account/me", false, false},
		{"lookalike host", http.MethodGet, "https://api.example.org.evil.test/api/v1/account/me", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mustRequest(t, tt.method, tt.url)
			_, err := i.Intercept(req, capture)
			require.NoError(t, err)

			_, cookieErr := seen.Cookie("sc_session")
			require.Equal(t, tt.wantCookie, cookieErr == nil)
			require.Equal(t, tt.wantXSRF, seen.Header.Get(csrfHeader) == "xsrf")

			// The caller's request is never modified.
			require.Empty(t, req.Header.Get("Cookie"))
		})
	}
}

func TestIntercept_BasePath(t *testing.T) {
	i, jar, _, _ := newTestInterceptor(t, "https://example.org/catalog")
	root, _ := url.Parse("https://example.org/")
	jar.SetCookies(root, []*http.Cookie{{Name: "sc_session", Value: "s", Path: "/"}})

	var seen *http.Request
	capture := func(req *http.Request) (*http.Response, error) {
		seen = req
		return respond(http.StatusOK)(req)
	}

	_, err := i.Intercept(mustRequest(t, http.MethodGet, "https://example.org/catalog/api/v1/account/me"), capture)
	require.NoError(t, err)
	require.NotEmpty(t, seen.Header.Get("Cookie"))

	_, err = i.Intercept(mustRequest(t, http.MethodGet, "https://example.org/catalogue/x"), capture)
	require.NoError(t, err)
	require.Empty(t, seen.Header.Get("Cookie"))
}

func TestIntercept_StoresCookiesFromAPI(t *testing.T) {
	i, jar, _, _ := newTestInterceptor(t, "https://api.example.org")

	_, err := i.Intercept(mustRequest(t, http.MethodPost, "https://api.example.org/api/v1/auth/login"),
		respond(http.StatusOK, &http.Cookie{Name: "sc_session", Value: "fresh", Path: "/"}))
	require.NoError(t, err)

	api, _ := url.Parse("https://api.example.org/")
	cookies := jar.Cookies(api)
	require.Len(t, cookies, 1)
	require.Equal(t, "fresh", cookies[0].Value)

	_, err = i.Intercept(mustRequest(t, http.MethodGet, "https://tracker.example.net/pixel"),
		respond(http.StatusOK, &http.Cookie{Name: "track", Value: "me", Path: "/"}))
	require.NoError(t, err)
	other, _ := url.Parse("https://tracker.example.net/")
	require.Empty(t, jar.Cookies(other))
}

func TestIntercept_UnauthorizedRedirectsToLogin(t *testing.T) {
	i, _, inv, nav := newTestInterceptor(t, "https://api.example.org")

	resp, err := i.Intercept(mustRequest(t, http.MethodGet, "https://api.example.org/api/v1/invites"), respond(http.StatusUnauthorized))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "the 401 reaches the caller")

	require.Equal(t, 1, inv.calls)
	require.Equal(t, []string{"/account/login?returnUrl=/admin/settings"}, nav.Visits())
}

func TestIntercept_ProbesDoNotRedirect(t *testing.T) {
	for _, path := range []string{MePath, RolePath, LoginAPI} {
		t.Run(path, func(t *testing.T) {
			i, _, inv, nav := newTestInterceptor(t, "https://api.example.org")

			resp, err := i.Intercept(mustRequest(t, http.MethodGet, "https://api.example.org"+path), respond(http.StatusUnauthorized))
			require.NoError(t, err)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.Zero(t, inv.calls)
			require.Empty(t, nav.Visits())
		})
	}
}

func TestIntercept_ForeignUnauthorizedIgnored(t *testing.T) {
	i, _, inv, nav := newTestInterceptor(t, "https://api.example.org")

	_, err := i.Intercept(mustRequest(t, http.MethodGet, "https://maps.example.net/tiles"), respond(http.StatusUnauthorized))
	require.NoError(t, err)
	require.Zero(t, inv.calls)
	require.Empty(t, nav.Visits())
}

func TestClient_LostSessionRedirects(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.addUser("sa@example.org", RoleSuperAdmin, true)
	nav := NewHistory("/admin/invites")
	c := newTestClient(t, srv.URL, WithNavigator(nav))
	ctx := context.Background()

	_, err := c.Login(ctx, "sa@example.org", fakePassword, false)
	require.NoError(t, err)
	_, err = c.ListInvites(ctx, "")
	require.NoError(t, err)

	api.expireSessions()

	_, err = c.ListInvites(ctx, "")
	require.True(t, IsUnauthorized(err))
	require.Equal(t, []string{"/account/login?returnUrl=/admin/invites"}, nav.Visits())
	require.False(t, c.Session().Initialized())
}
