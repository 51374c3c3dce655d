package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Client calls the sanctus API. It is safe for concurrent use.
type Client struct {
	base        *url.URL
	httpClient  *http.Client
	jar         http.CookieJar
	navigator   Navigator
	session     *Session
	interceptor *Interceptor
}

type Option func(*Client)

// WithHTTPClient sets the underlying client. Its Jar is ignored; cookies are
// managed by the interceptor.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		cp.Jar = nil
		c.httpClient = &cp
	}
}

// WithJar replaces the in-memory cookie jar, for example with one restored
// from disk.
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) { c.jar = jar }
}

// WithNavigator receives login redirects triggered by lost sessions.
func WithNavigator(nav Navigator) Option {
	return func(c *Client) { c.navigator = nav }
}

// New returns a client for the API at baseURL, e.g. "https://catalog.example.org".
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.jar == nil {
		c.jar, err = cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
	}

	c.session = newSession(c)
	c.interceptor = NewInterceptor(base, c.jar, c.session, c.navigator)
	return c, nil
}

func (c *Client) Session() *Session { return c.session }

func (c *Client) Jar() http.CookieJar { return c.jar }

func (c *Client) BaseURL() *url.URL { return c.base }

// Me fetches the current user. Prefer Session().CurrentUser, which caches.
func (c *Client) Me(ctx context.Context) (*CurrentUser, error) {
	var user CurrentUser
	if err := c.do(ctx, http.MethodGet, MePath, nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FetchRole fetches the current user's role. Prefer Session().Role, which caches.
func (c *Client) FetchRole(ctx context.Context) (Role, error) {
	var out struct {
		Role Role `json:"role"`
	}
	if err := c.do(ctx, http.MethodGet, RolePath, nil, nil, &out); err != nil {
		return RoleNone, err
	}
	return out.Role, nil
}

// Login signs in and primes the session. Check IsEmailNotConfirmed on error
// to offer ResendConfirmation.
func (c *Client) Login(ctx context.Context, email, password string, rememberMe bool) (*CurrentUser, error) {
	if err := c.ensureCSRF(ctx); err != nil {
		return nil, err
	}

	in := map[string]any{
		"email":      email,
		"password":   password,
		"rememberMe": rememberMe,
	}
	var user CurrentUser
	if err := c.do(ctx, http.MethodPost, LoginAPI, nil, in, &user); err != nil {
		return nil, err
	}

	c.session.set(&user)
	return &user, nil
}

// Logout ends the server session. The local session is cleared even when the
// call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.session.Invalidate()

	if err := c.ensureCSRF(ctx); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, struct{}{}, nil)
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if err := c.ensureCSRF(ctx); err != nil {
		return nil, err
	}
	var out RegisterResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConfirmEmail(ctx context.Context, token string) error {
	if err := c.ensureCSRF(ctx); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/api/v1/auth/confirm-email", nil, map[string]string{"token": token}, nil)
}

func (c *Client) ResendConfirmation(ctx context.Context, email string) error {
	if err := c.ensureCSRF(ctx); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/api/v1/auth/resend-confirmation", nil, map[string]string{"email": email}, nil)
}

// ValidateInvite reports whether token can still be used to register.
func (c *Client) ValidateInvite(ctx context.Context, token string) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	q := url.Values{"token": {token}}
	if err := c.do(ctx, http.MethodGet, "/api/v1/invites/validate", q, nil, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// CreateInvite issues an invite. Requires a SuperAdmin session.
func (c *Client) CreateInvite(ctx context.Context, req CreateInviteRequest) (*CreatedInvite, error) {
	if err := c.ensureCSRF(ctx); err != nil {
		return nil, err
	}
	var out CreatedInvite
	if err := c.do(ctx, http.MethodPost, "/api/v1/invites", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListInvites lists invites, optionally filtered by status
// (pending, used or expired). Requires a SuperAdmin session.
func (c *Client) ListInvites(ctx context.Context, status string) ([]InviteSummary, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {status}}
	}
	var out struct {
		Invites []InviteSummary `json:"invites"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/invites", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Invites, nil
}

// ensureCSRF obtains the double-submit cookie before the first mutating call.
func (c *Client) ensureCSRF(ctx context.Context) error {
	for _, ck := range c.jar.Cookies(c.endpoint(CSRFPath)) {
		if ck.Name == csrfCookie {
			return nil
		}
	}
	return c.do(ctx, http.MethodGet, CSRFPath, nil, nil, nil)
}

type errorEnvelope struct {
	Error struct {
		Code      string            `json:"code"`
		Message   string            `json:"message"`
		Details   map[string]string `json:"details"`
		RequestID string            `json:"request_id"`
	} `json:"error"`
}

// endpoint resolves an API path against the base URL. The result is always
// rooted, which the cookie jar needs to match Path=/ cookies.
func (c *Client) endpoint(path string) *url.URL {
	u := c.base.JoinPath(path)
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
		u.RawPath = ""
	}
	return u
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.endpoint(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.interceptor.Intercept(req, c.httpClient.Do)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	envelope := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-ID"),
	}

	var env errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}
	apiErr.Code = env.Error.Code
	apiErr.Message = env.Error.Message
	apiErr.Details = env.Error.Details
	if env.Error.RequestID != "" {
		apiErr.RequestID = env.Error.RequestID
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
