package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aliuyar1234/sanctus/internal/app"
	"github.com/aliuyar1234/sanctus/internal/config"
	"github.com/aliuyar1234/sanctus/internal/db"
	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/invites"
	"github.com/aliuyar1234/sanctus/internal/retention"
	"github.com/aliuyar1234/sanctus/internal/store"
)

const adminTimeout = 30 * time.Second

func runAdmin(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printAdminUsage(stderr)
		return 2
	}

	switch args[0] {
	case "issue-invite":
		return runIssueInvite(args[1:], stdout, stderr)
	case "reset-password":
		return runResetPassword(args[1:], stdout, stderr)
	case "prune-invites":
		return runPruneInvites(args[1:], stdout, stderr)
	case "migrate":
		return runMigrate(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage(stderr)
		return 2
	}
}

func printAdminUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  sanctus admin issue-invite --role SuperAdmin|Admin [--ttl 72h] [--issued-to <email>] [--purpose <text>]")
	fmt.Fprintln(w, "  sanctus admin reset-password --email user@example.com [--password <new>]")
	fmt.Fprintln(w, "  sanctus admin prune-invites [--days <n>]")
	fmt.Fprintln(w, "  sanctus admin migrate")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - Commands read the same SC_* environment as the server.")
	fmt.Fprintln(w, "  - If --password is omitted, a random password is generated and printed.")
}

// adminEnv opens the configured store and services for one command.
func adminEnv(ctx context.Context, stderr io.Writer) (*config.Config, store.Store, *app.Services, bool) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return nil, nil, nil, false
	}

	st, err := app.OpenStore(ctx, cfg, cfg.IsDev())
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open database: %v\n", err)
		return nil, nil, nil, false
	}

	services, err := app.NewServices(st, cfg, nil)
	if err != nil {
		_ = st.Close()
		fmt.Fprintf(stderr, "Failed to initialize services: %v\n", err)
		return nil, nil, nil, false
	}

	return cfg, st, services, true
}

func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func runIssueInvite(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("issue-invite", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var role, issuedTo, purpose string
	var ttl time.Duration

	fs.StringVar(&role, "role", "", "Role granted by the invite (Admin or SuperAdmin)")
	fs.DurationVar(&ttl, "ttl", 0, "Invite lifetime (defaults to SC_INVITE_TTL)")
	fs.StringVar(&issuedTo, "issued-to", "", "Who the invite is for")
	fs.StringVar(&purpose, "purpose", "", "Why the invite was issued")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	parsed, err := domain.ParseRole(strings.TrimSpace(role))
	if err != nil {
		fmt.Fprintln(stderr, "--role must be Admin or SuperAdmin")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	cfg, st, services, ok := adminEnv(ctx, stderr)
	if !ok {
		return 1
	}
	defer st.Close()

	inv, token, err := services.Invites.GenerateInvite(ctx, invites.GenerateInviteParams{
		Role:     parsed,
		Lifetime: ttl,
		IssuedTo: issuedTo,
		Purpose:  purpose,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to issue invite: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Invite issued for role %s, expires %s\n", inv.Role, inv.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintln(stdout, token)
	fmt.Fprintln(stdout, invites.RegisterURL(cfg.BaseURL, token))
	return 0
}

func runResetPassword(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var email string
	var password string

	fs.StringVar(&email, "email", "", "User email")
	fs.StringVar(&password, "password", "", "New password (if empty, generates one)")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Fprintln(stderr, "--email is required")
		return 2
	}

	generated := false
	if password == "" {
		pw, err := generatePassword(24)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to generate password: %v\n", err)
			return 1
		}
		password = pw
		generated = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	_, st, services, ok := adminEnv(ctx, stderr)
	if !ok {
		return 1
	}
	defer st.Close()

	if err := services.Accounts.ResetPassword(ctx, email, password); err != nil {
		fmt.Fprintf(stderr, "Failed to reset password: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Password updated.")
	if generated {
		fmt.Fprintln(stdout, password)
	}

	return 0
}

func runPruneInvites(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("prune-invites", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var days int
	fs.IntVar(&days, "days", -1, "Delete unused invites expired longer ago than this (defaults to SC_INVITE_RETENTION_DAYS)")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	cfg, st, services, ok := adminEnv(ctx, stderr)
	if !ok {
		return 1
	}
	defer st.Close()

	if days < 0 {
		days = cfg.InviteRetentionDays
	}
	if err := retention.RunRetentionJob(ctx, services.Invites, days); err != nil {
		fmt.Fprintf(stderr, "Failed to prune invites: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Expired invites pruned.")
	return 0
}

func runMigrate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	if strings.HasPrefix(cfg.DBDSN, app.SQLiteScheme) {
		fmt.Fprintln(stdout, "SQLite schema is applied when the database is opened.")
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		fmt.Fprintf(stderr, "Failed to run migrations: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Migrations applied.")
	return 0
}

func generatePassword(bytesLen int) (string, error) {
	if bytesLen < 8 {
		bytesLen = 8
	}

	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	// URL-safe, printable, without padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}
