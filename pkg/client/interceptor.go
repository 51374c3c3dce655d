package client

import (
	"net/http"
	"net/url"
	"strings"
)

// API paths the client treats specially. A 401 from MePath, RolePath or
// LoginAPI means "anonymous" rather than "session lost".
const (
	MePath   = "/api/v1/account/me"
	RolePath = "/api/v1/account/role"
	LoginAPI = "/api/v1/auth/login"
	CSRFPath = "/api/v1/auth/csrf"
)

const (
	csrfCookie = "XSRF-TOKEN"
	csrfHeader = "X-XSRF-TOKEN"
)

// Handler sends a request and returns its response.
type Handler func(*http.Request) (*http.Response, error)

// invalidator is the part of Session the interceptor needs.
type invalidator interface {
	Invalidate()
}

// Interceptor wraps every outbound call. Requests to the API origin carry
// the jar's cookies and the CSRF header, and their Set-Cookie headers are
// stored. Other origins pass through untouched.
type Interceptor struct {
	api       *url.URL
	jar       http.CookieJar
	session   invalidator
	navigator Navigator
}

// NewInterceptor builds an interceptor for the API rooted at api. session and
// navigator may be nil.
func NewInterceptor(api *url.URL, jar http.CookieJar, session invalidator, navigator Navigator) *Interceptor {
	return &Interceptor{api: api, jar: jar, session: session, navigator: navigator}
}

// Intercept forwards req through next. A 401 for the API, other than from the
// identity probes and login, clears the session and navigates to the login
// page with the current location as returnUrl. The response is always
// returned to the caller.
func (i *Interceptor) Intercept(req *http.Request, next Handler) (*http.Response, error) {
	own := i.isAPIRequest(req.URL)
	if own {
		req = i.withCredentials(req)
	}

	resp, err := next(req)
	if err != nil {
		return resp, err
	}

	if !own {
		return resp, nil
	}

	if cookies := resp.Cookies(); len(cookies) > 0 && i.jar != nil {
		i.jar.SetCookies(req.URL, cookies)
	}

	if resp.StatusCode == http.StatusUnauthorized && !i.isProbe(req.URL) {
		if i.session != nil {
			i.session.Invalidate()
		}
		if i.navigator != nil {
			i.navigator.Navigate(LoginURL(i.navigator.CurrentURL()))
		}
	}

	return resp, nil
}

// isAPIRequest reports whether u lies under the API base URL.
func (i *Interceptor) isAPIRequest(u *url.URL) bool {
	if !strings.EqualFold(u.Scheme, i.api.Scheme) || !strings.EqualFold(u.Host, i.api.Host) {
		return false
	}
	base := strings.TrimSuffix(i.api.Path, "/")
	return base == "" || u.Path == base || strings.HasPrefix(u.Path, base+"/")
}

func (i *Interceptor) isProbe(u *url.URL) bool {
	switch strings.TrimPrefix(u.Path, strings.TrimSuffix(i.api.Path, "/")) {
	case MePath, RolePath, LoginAPI:
		return true
	}
	return false
}

func (i *Interceptor) withCredentials(req *http.Request) *http.Request {
	if i.jar == nil {
		return req
	}
	cookies := i.jar.Cookies(req.URL)
	if len(cookies) == 0 {
		return req
	}

	req = req.Clone(req.Context())
	for _, c := range cookies {
		req.AddCookie(c)
		if c.Name == csrfCookie && req.Header.Get(csrfHeader) == "" && isMutating(req.Method) {
			req.Header.Set(csrfHeader, c.Value)
		}
	}
	return req
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
