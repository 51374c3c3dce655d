package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aliuyar1234/sanctus/internal/app"
	"github.com/aliuyar1234/sanctus/internal/config"
	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/invites"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t        *testing.T
	url      string
	cookies  string
	services *app.Services
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Env:                 "dev",
		BaseURL:             "http://localhost:4200",
		DBDSN:               app.SQLiteScheme + filepath.Join(dir, "ctl.db"),
		JWTSecret:           "test-secret",
		TokenPepper:         "test-pepper",
		LogLevel:            "error",
		SessionDays:         7,
		InviteTTL:           72 * time.Hour,
		InviteRetentionDays: 30,
		LoginRatePerMin:     100,
		EmailConfirmation:   false,
	}

	st, err := app.OpenStore(context.Background(), cfg, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	services, err := app.NewServices(st, cfg, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(app.NewRouter(cfg, st, services, nil))
	t.Cleanup(srv.Close)

	return &harness{t: t, url: srv.URL, cookies: filepath.Join(dir, "cookies.json"), services: services}
}

func (h *harness) run(args ...string) (int, string, string) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--api", h.url, "--cookies", h.cookies}, args...)
	code := run(full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (h *harness) invite(role domain.Role) string {
	h.t.Helper()
	_, token, err := h.services.Invites.GenerateInvite(context.Background(), invites.GenerateInviteParams{Role: role})
	require.NoError(h.t, err)
	return token
}

func TestCLI_RegisterLoginAndInvite(t *testing.T) {
	h := newHarness(t)

	code, out, _ := h.run("whoami")
	require.Equal(t, 1, code)
	require.Contains(t, out, "Not signed in")

	token := h.invite(domain.RoleSuperAdmin)
	code, out, errOut := h.run("register", "--token", token, "--email", "teresa@example.org",
		"--first-name", "Teresa", "--last-name", "Ahumada", "--password", "avila-1515")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Registered teresa@example.org as SuperAdmin")

	code, _, _ = h.run("invite", "validate", "--token", token)
	require.Equal(t, 1, code, "the invite is spent")

	code, out, errOut = h.run("login", "--email", "teresa@example.org", "--password", "avila-1515", "--remember")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Signed in as Teresa Ahumada")

	// The session survives into the next invocation.
	code, out, _ = h.run("whoami")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Role: SuperAdmin")

	code, out, errOut = h.run("invite", "create", "--role", "Admin", "--issued-to", "john@example.org")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "http://localhost:4200/account/register?token=")

	code, out, _ = h.run("invite", "list", "--status", "pending")
	require.Equal(t, 0, code)
	require.Contains(t, out, "john@example.org")

	code, _, _ = h.run("logout")
	require.Equal(t, 0, code)
	code, _, _ = h.run("whoami")
	require.Equal(t, 1, code)
}

func TestCLI_InviteCreateDeniedForAdmin(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run("register", "--token", h.invite(domain.RoleAdmin), "--email", "john@example.org",
		"--first-name", "John", "--last-name", "Bosco", "--password", "turin-1815")
	require.Equal(t, 0, code, errOut)
	code, _, errOut = h.run("login", "--email", "john@example.org", "--password", "turin-1815", "--remember")
	require.Equal(t, 0, code, errOut)

	code, _, errOut = h.run("invite", "create", "--role", "Admin")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "redirected to /admin/dashboard")
}

func TestCLI_LoginWithoutRememberEndsWithInvocation(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run("register", "--token", h.invite(domain.RoleAdmin), "--email", "clare@example.org",
		"--first-name", "Clare", "--last-name", "Offreduccio", "--password", "assisi-1194")
	require.Equal(t, 0, code, errOut)
	code, out, errOut := h.run("login", "--email", "clare@example.org", "--password", "assisi-1194")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Signed in as Clare Offreduccio")

	code, out, _ = h.run("whoami")
	require.Equal(t, 1, code)
	require.Contains(t, out, "Not signed in")
}

func TestCLI_InviteCreateAnonymous(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run("invite", "create", "--role", "Admin")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "redirected to /account/login?returnUrl=/admin/invites/new")
}

func TestCLI_RegisterWithBadInvite(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run("register", "--token", "nope", "--email", "x@example.org",
		"--first-name", "X", "--last-name", "Y", "--password", "long-enough")
	require.Equal(t, 1, code)
	require.True(t, strings.Contains(errOut, "invalid or has expired"), errOut)
}

func TestCLI_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 2, run(nil, &stdout, &stderr))
	require.Contains(t, stderr.String(), "Usage: sanctusctl")
}
