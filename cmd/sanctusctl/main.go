// Command sanctusctl is a command-line client for the sanctus API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aliuyar1234/sanctus/pkg/client"
)

const defaultAPI = "http://localhost:8080"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	client  *client.Client
	cookies cookieFile
	jar     *expiringJar
	nav     *client.History
	stdout  io.Writer
	stderr  io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sanctusctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	api := fs.String("api", envOrDefault("SANCTUS_API", defaultAPI), "API base URL")
	cookiePath := fs.String("cookies", defaultCookiePath(), "File holding the session cookies")
	timeout := fs.Duration("timeout", 15*time.Second, "Request timeout")
	fs.Usage = func() { printUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		printUsage(stderr)
		return 2
	}

	c, err := newCLI(*api, *cookiePath, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	code := c.dispatch(ctx, fs.Args())

	if err := c.cookies.save(c.jar); err != nil {
		fmt.Fprintf(stderr, "Warning: failed to save session: %v\n", err)
	}
	return code
}

func newCLI(api, cookiePath string, stdout, stderr io.Writer) (*cli, error) {
	probe, err := client.New(api)
	if err != nil {
		return nil, err
	}
	cookies := cookieFile{path: cookiePath, base: probe.BaseURL()}

	jar, err := cookies.load()
	if err != nil {
		return nil, err
	}

	nav := client.NewHistory("")
	c, err := client.New(api, client.WithJar(jar), client.WithNavigator(nav))
	if err != nil {
		return nil, err
	}

	return &cli{client: c, cookies: cookies, jar: jar, nav: nav, stdout: stdout, stderr: stderr}, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: sanctusctl [--api URL] [--cookies FILE] <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  login --email <email> --password <password> [--remember]")
	fmt.Fprintln(w, "  logout")
	fmt.Fprintln(w, "  whoami")
	fmt.Fprintln(w, "  register --token <invite> --email <email> --first-name <name> --last-name <name> --password <password>")
	fmt.Fprintln(w, "  confirm-email --token <token>")
	fmt.Fprintln(w, "  resend-confirmation --email <email>")
	fmt.Fprintln(w, "  invite create --role Admin|SuperAdmin [--hours <n>] [--issued-to <who>] [--purpose <why>]")
	fmt.Fprintln(w, "  invite list [--status pending|used|expired]")
	fmt.Fprintln(w, "  invite validate --token <invite>")
}

func (c *cli) dispatch(ctx context.Context, args []string) int {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return c.login(ctx, rest)
	case "logout":
		return c.logout(ctx)
	case "whoami":
		return c.whoami(ctx)
	case "register":
		return c.register(ctx, rest)
	case "confirm-email":
		return c.confirmEmail(ctx, rest)
	case "resend-confirmation":
		return c.resendConfirmation(ctx, rest)
	case "invite":
		if len(rest) == 0 {
			printUsage(c.stderr)
			return 2
		}
		switch rest[0] {
		case "create":
			return c.inviteCreate(ctx, rest[1:])
		case "list":
			return c.inviteList(ctx, rest[1:])
		case "validate":
			return c.inviteValidate(ctx, rest[1:])
		}
	}

	fmt.Fprintf(c.stderr, "Unknown command: %s\n", strings.Join(args, " "))
	printUsage(c.stderr)
	return 2
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func (c *cli) fail(err error) int {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(c.stderr, "Error: %s\n", apiErr.Message)
		for field, msg := range apiErr.Details {
			fmt.Fprintf(c.stderr, "  %s: %s\n", field, msg)
		}
	} else {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
	}
	if visits := c.nav.Visits(); len(visits) > 0 {
		fmt.Fprintf(c.stderr, "Session expired; sign in again (redirect: %s)\n", visits[len(visits)-1])
	}
	return 1
}

func (c *cli) login(ctx context.Context, args []string) int {
	fs := c.flags("login")
	email := fs.String("email", "", "Account email")
	password := fs.String("password", os.Getenv("SANCTUS_PASSWORD"), "Password (or SANCTUS_PASSWORD)")
	remember := fs.Bool("remember", false, "Keep the session after the browser session would end")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if *email == "" || *password == "" {
		fmt.Fprintln(c.stderr, "--email and --password are required")
		return 2
	}

	user, err := c.client.Login(ctx, *email, *password, *remember)
	if err != nil {
		if client.IsEmailNotConfirmed(err) {
			fmt.Fprintln(c.stderr, "Your email address is not confirmed yet.")
			fmt.Fprintf(c.stderr, "Request a new link with: sanctusctl resend-confirmation --email %s\n", *email)
			return 1
		}
		return c.fail(err)
	}

	fmt.Fprintf(c.stdout, "Signed in as %s %s <%s> (%s)\n", user.FirstName, user.LastName, user.Email, user.Role)
	return 0
}

func (c *cli) logout(ctx context.Context) int {
	if err := c.client.Logout(ctx); err != nil {
		return c.fail(err)
	}
	fmt.Fprintln(c.stdout, "Signed out.")
	return 0
}

func (c *cli) whoami(ctx context.Context) int {
	user, err := c.client.Session().CurrentUser(ctx)
	if err != nil {
		return c.fail(err)
	}
	if user == nil {
		fmt.Fprintln(c.stdout, "Not signed in.")
		return 1
	}
	fmt.Fprintf(c.stdout, "%s %s <%s>\nRole: %s\n", user.FirstName, user.LastName, user.Email, c.client.Session().Role())
	return 0
}

func (c *cli) register(ctx context.Context, args []string) int {
	fs := c.flags("register")
	var req client.RegisterRequest
	fs.StringVar(&req.InviteToken, "token", "", "Invite token")
	fs.StringVar(&req.Email, "email", "", "Email address")
	fs.StringVar(&req.FirstName, "first-name", "", "First name")
	fs.StringVar(&req.LastName, "last-name", "", "Last name")
	fs.StringVar(&req.Password, "password", os.Getenv("SANCTUS_PASSWORD"), "Password (or SANCTUS_PASSWORD)")
	if code, ok := parse(fs, args); !ok {
		return code
	}

	if req.InviteToken != "" {
		valid, err := c.client.ValidateInvite(ctx, req.InviteToken)
		if err != nil {
			return c.fail(err)
		}
		if !valid {
			fmt.Fprintln(c.stderr, "This invitation is invalid or has expired.")
			return 1
		}
	}

	res, err := c.client.Register(ctx, req)
	if err != nil {
		return c.fail(err)
	}

	fmt.Fprintf(c.stdout, "Registered %s as %s.\n", res.User.Email, res.User.Role)
	if res.ConfirmationRequired {
		fmt.Fprintln(c.stdout, "Check your inbox for a confirmation link before signing in.")
	}
	return 0
}

func (c *cli) confirmEmail(ctx context.Context, args []string) int {
	fs := c.flags("confirm-email")
	token := fs.String("token", "", "Confirmation token from the email link")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if err := c.client.ConfirmEmail(ctx, *token); err != nil {
		return c.fail(err)
	}
	fmt.Fprintln(c.stdout, "Email confirmed. You can sign in now.")
	return 0
}

func (c *cli) resendConfirmation(ctx context.Context, args []string) int {
	fs := c.flags("resend-confirmation")
	email := fs.String("email", "", "Account email")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if err := c.client.ResendConfirmation(ctx, *email); err != nil {
		return c.fail(err)
	}
	fmt.Fprintln(c.stdout, "If the address belongs to an unconfirmed account, a new link is on its way.")
	return 0
}

// requireSuperAdmin runs the SuperAdmin guard for a CLI "page".
func (c *cli) requireSuperAdmin(ctx context.Context, target string) bool {
	if client.CanActivate(ctx, client.SuperAdminGuard{Session: c.client.Session()}, c.nav, target) {
		return true
	}
	fmt.Fprintf(c.stderr, "Access denied; redirected to %s\n", c.nav.CurrentURL())
	return false
}

func (c *cli) inviteCreate(ctx context.Context, args []string) int {
	fs := c.flags("invite create")
	var req client.CreateInviteRequest
	role := fs.String("role", "", "Role granted by the invite (Admin or SuperAdmin)")
	fs.IntVar(&req.LifetimeHours, "hours", 0, "Lifetime in hours (server default when 0)")
	fs.StringVar(&req.IssuedTo, "issued-to", "", "Who the invite is for")
	fs.StringVar(&req.Purpose, "purpose", "", "Why the invite is issued")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	req.Role = client.Role(*role)

	if !c.requireSuperAdmin(ctx, "/admin/invites/new") {
		return 1
	}

	inv, err := c.client.CreateInvite(ctx, req)
	if err != nil {
		return c.fail(err)
	}

	fmt.Fprintf(c.stdout, "Invite %s for role %s, expires %s\n", inv.ID, inv.Role, inv.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintln(c.stdout, inv.RegisterURL)
	return 0
}

func (c *cli) inviteList(ctx context.Context, args []string) int {
	fs := c.flags("invite list")
	status := fs.String("status", "", "Filter: pending, used or expired")
	if code, ok := parse(fs, args); !ok {
		return code
	}

	if !c.requireSuperAdmin(ctx, "/admin/invites") {
		return 1
	}

	invites, err := c.client.ListInvites(ctx, *status)
	if err != nil {
		return c.fail(err)
	}
	for _, inv := range invites {
		fmt.Fprintf(c.stdout, "%s\t%s\t%s\t%s\t%s\n", inv.ID, inv.Role, inv.Status, inv.ExpiresAt.Format(time.RFC3339), inv.IssuedTo)
	}
	return 0
}

func (c *cli) inviteValidate(ctx context.Context, args []string) int {
	fs := c.flags("invite validate")
	token := fs.String("token", "", "Invite token")
	if code, ok := parse(fs, args); !ok {
		return code
	}

	valid, err := c.client.ValidateInvite(ctx, *token)
	if err != nil {
		return c.fail(err)
	}
	if !valid {
		fmt.Fprintln(c.stdout, "invalid")
		return 1
	}
	fmt.Fprintln(c.stdout, "valid")
	return 0
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
