package accounts_test

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aliuyar1234/sanctus/internal/accounts"
	"github.com/aliuyar1234/sanctus/internal/apperrors"
	"github.com/aliuyar1234/sanctus/internal/audit"
	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/invites"
	"github.com/aliuyar1234/sanctus/internal/store"
	"github.com/aliuyar1234/sanctus/internal/store/sqlite"
	"github.com/aliuyar1234/sanctus/internal/tokencrypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

type sentMail struct {
	to, name, link string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) SendConfirmation(_ context.Context, to, name, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, name: name, link: link})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fixture struct {
	store    store.Store
	invites  *invites.Service
	accounts *accounts.Service
	mailer   *recordingMailer
}

func newFixture(t *testing.T, requireConfirmation bool) *fixture {
	t.Helper()

	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	hasher := tokencrypto.NewHasher("test-pepper")
	auditor := audit.NewWriter(st)
	inviteSvc := invites.NewService(st, hasher, 72*time.Hour, invites.WithAuditor(auditor))
	mailer := &recordingMailer{}

	svc, err := accounts.NewService(st, inviteSvc, hasher, mailer,
		accounts.Config{BaseURL: "https://catalog.example.org", RequireEmailConfirmation: requireConfirmation},
		accounts.WithAuditor(auditor),
		accounts.WithPasswordCost(bcrypt.MinCost),
	)
	require.NoError(t, err)

	return &fixture{store: st, invites: inviteSvc, accounts: svc, mailer: mailer}
}

func (f *fixture) invite(t *testing.T, role domain.Role) string {
	t.Helper()
	_, clear, err := f.invites.GenerateInvite(context.Background(), invites.GenerateInviteParams{Role: role})
	require.NoError(t, err)
	return clear
}

func registerRequest(email, token string) accounts.RegisterRequest {
	return accounts.RegisterRequest{
		FirstName:   "Francis",
		LastName:    "Xavier",
		Email:       email,
		Password:    "goa-1552!",
		InviteToken: token,
	}
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, "/account/confirm-email", u.Path)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestRegister_ConfirmThenLogin(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	user, err := f.accounts.Register(ctx, registerRequest("  Francis@Example.org ", f.invite(t, domain.RoleSuperAdmin)))
	require.NoError(t, err)
	require.Equal(t, domain.RoleSuperAdmin, user.Role)
	require.Equal(t, "francis@example.org", user.Email)
	require.False(t, user.IsEmailConfirmed())

	_, err = f.accounts.Login(ctx, "francis@example.org", "goa-1552!")
	require.ErrorIs(t, err, accounts.ErrEmailNotConfirmed)
	require.Equal(t, apperrors.KindEmailNotConfirmed, apperrors.KindOf(err))

	mail := f.mailer.last(t)
	require.Equal(t, "francis@example.org", mail.to)
	require.Equal(t, "Francis", mail.name)

	token := tokenFromLink(t, mail.link)
	require.NoError(t, f.accounts.ConfirmEmail(ctx, token))
	require.ErrorIs(t, f.accounts.ConfirmEmail(ctx, token), accounts.ErrInvalidConfirmation)

	got, err := f.accounts.Login(ctx, "FRANCIS@example.org", "goa-1552!")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	role, err := f.accounts.RoleOf(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleSuperAdmin, role)
}

func TestRegister_WithoutConfirmation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	user, err := f.accounts.Register(ctx, registerRequest("rose@example.org", f.invite(t, domain.RoleAdmin)))
	require.NoError(t, err)
	require.True(t, user.IsEmailConfirmed())
	require.Zero(t, f.mailer.count())

	_, err = f.accounts.Login(ctx, "rose@example.org", "goa-1552!")
	require.NoError(t, err)
}

func TestRegister_RejectsBadInviteGenerically(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.accounts.Register(ctx, registerRequest("nobody@example.org", "made-up-token"))
	require.ErrorIs(t, err, invites.ErrInvalidInvite)

	_, err = f.store.Users().GetByEmail(ctx, "nobody@example.org")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegister_InviteIsSingleUse(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	token := f.invite(t, domain.RoleAdmin)

	_, err := f.accounts.Register(ctx, registerRequest("first@example.org", token))
	require.NoError(t, err)

	_, err = f.accounts.Register(ctx, registerRequest("second@example.org", token))
	require.ErrorIs(t, err, invites.ErrInvalidInvite)
}

func TestRegister_FailureKeepsInviteUsable(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.accounts.Register(ctx, registerRequest("taken@example.org", f.invite(t, domain.RoleAdmin)))
	require.NoError(t, err)

	token := f.invite(t, domain.RoleAdmin)
	_, err = f.accounts.Register(ctx, registerRequest("taken@example.org", token))
	require.ErrorIs(t, err, accounts.ErrEmailTaken)

	bad := registerRequest("not-an-email", token)
	_, err = f.accounts.Register(ctx, bad)
	require.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	valid, err := f.invites.Validate(ctx, token)
	require.NoError(t, err)
	require.True(t, valid)
}

func TestRegister_ConcurrentUseOfOneInvite(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	token := f.invite(t, domain.RoleAdmin)

	var created atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		email := uuid.NewString() + "@example.org"
		g.Go(func() error {
			_, err := f.accounts.Register(ctx, registerRequest(email, token))
			switch {
			case err == nil:
				created.Add(1)
				return nil
			case apperrors.KindOf(err) == apperrors.KindForbidden:
				return nil
			default:
				return err
			}
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), created.Load())
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.accounts.Register(ctx, registerRequest("clare@example.org", f.invite(t, domain.RoleAdmin)))
	require.NoError(t, err)

	tests := []struct {
		name, email, password string
	}{
		{"wrong password", "clare@example.org", "wrong-password"},
		{"unknown email", "ghost@example.org", "goa-1552!"},
		{"empty password", "clare@example.org", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.accounts.Login(ctx, tt.email, tt.password)
			require.ErrorIs(t, err, accounts.ErrInvalidCredentials)
		})
	}
}

func TestResendConfirmation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.accounts.ResendConfirmation(ctx, "ghost@example.org"))
	require.Zero(t, f.mailer.count())

	_, err := f.accounts.Register(ctx, registerRequest("bernadette@example.org", f.invite(t, domain.RoleAdmin)))
	require.NoError(t, err)
	first := tokenFromLink(t, f.mailer.last(t).link)

	require.NoError(t, f.accounts.ResendConfirmation(ctx, "Bernadette@example.org"))
	require.Equal(t, 2, f.mailer.count())
	second := tokenFromLink(t, f.mailer.last(t).link)
	require.NotEqual(t, first, second)

	require.ErrorIs(t, f.accounts.ConfirmEmail(ctx, first), accounts.ErrInvalidConfirmation)
	require.NoError(t, f.accounts.ConfirmEmail(ctx, second))

	require.NoError(t, f.accounts.ResendConfirmation(ctx, "bernadette@example.org"))
	require.Equal(t, 2, f.mailer.count())
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.accounts.Register(ctx, registerRequest("anthony@example.org", f.invite(t, domain.RoleAdmin)))
	require.NoError(t, err)

	require.ErrorIs(t, f.accounts.ResetPassword(ctx, "anthony@example.org", "short"), apperrors.ErrInvalidArgument)
	require.ErrorIs(t, f.accounts.ResetPassword(ctx, "ghost@example.org", "padua-1231"), accounts.ErrUserNotFound)
	require.NoError(t, f.accounts.ResetPassword(ctx, "anthony@example.org", "padua-1231"))

	_, err = f.accounts.Login(ctx, "anthony@example.org", "goa-1552!")
	require.ErrorIs(t, err, accounts.ErrInvalidCredentials)
	_, err = f.accounts.Login(ctx, "anthony@example.org", "padua-1231")
	require.NoError(t, err)
}

func TestRoleOf_UnknownUser(t *testing.T) {
	f := newFixture(t, false)

	role, err := f.accounts.RoleOf(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, domain.RoleNone, role)
}
