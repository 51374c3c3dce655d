package client

import (
	"context"
	"net/url"
	"strings"
)

const (
	LoginPath          = "/account/login"
	AdminDashboardPath = "/admin/dashboard"
)

// Decision is the outcome of a guard check. A denied decision names where
// to go instead.
type Decision struct {
	Allowed  bool
	Redirect string
}

func Allow() Decision { return Decision{Allowed: true} }

func Deny(redirect string) Decision { return Decision{Redirect: redirect} }

// Guard decides whether navigation to target may proceed. Implementations
// resolve the session before deciding.
type Guard interface {
	CanProceed(ctx context.Context, target string) (Decision, error)
}

// AuthGuard admits any signed-in user.
type AuthGuard struct {
	Session *Session
}

func (g AuthGuard) CanProceed(ctx context.Context, target string) (Decision, error) {
	user, err := g.Session.CurrentUser(ctx)
	if err != nil {
		return Decision{}, err
	}
	if user == nil {
		return Deny(LoginURL(target)), nil
	}
	return Allow(), nil
}

// SuperAdminGuard admits only SuperAdmins. Signed-in users with another role
// are sent to the admin dashboard, anonymous ones to login.
type SuperAdminGuard struct {
	Session *Session
}

func (g SuperAdminGuard) CanProceed(ctx context.Context, target string) (Decision, error) {
	user, err := g.Session.CurrentUser(ctx)
	if err != nil {
		return Decision{}, err
	}
	if user == nil {
		return Deny(LoginURL(target)), nil
	}
	if g.Session.Role() != RoleSuperAdmin {
		return Deny(AdminDashboardPath), nil
	}
	return Allow(), nil
}

// CanActivate runs guard and performs the redirect when it denies. A guard
// that cannot resolve the session denies and sends the user to login.
func CanActivate(ctx context.Context, guard Guard, nav Navigator, target string) bool {
	decision, err := guard.CanProceed(ctx, target)
	if err != nil {
		decision = Deny(LoginURL(target))
	}
	if !decision.Allowed {
		nav.Navigate(decision.Redirect)
	}
	return decision.Allowed
}

// LoginURL is the login page that returns to returnURL afterwards. Slashes
// stay readable in the query.
func LoginURL(returnURL string) string {
	if returnURL == "" {
		return LoginPath
	}
	return LoginPath + "?returnUrl=" + strings.ReplaceAll(url.QueryEscape(returnURL), "%2F", "/")
}
