// Package accounts owns user records: registration behind an invite,
// email confirmation, credentials and roles.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aliuyar1234/sanctus/internal/apperrors"
	"github.com/aliuyar1234/sanctus/internal/audit"
	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/store"
	"github.com/aliuyar1234/sanctus/internal/tokencrypto"
	"github.com/aliuyar1234/sanctus/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// InviteRedeemer consumes an invite and runs fn in the same transaction.
type InviteRedeemer interface {
	Redeem(ctx context.Context, clear string, fn func(ctx context.Context, tx store.Store, inv *domain.InviteToken) error) error
}

// Config controls registration behaviour.
type Config struct {
	// BaseURL is the SPA origin used to build confirmation links.
	BaseURL string

	// RequireEmailConfirmation blocks login until the emailed link is opened.
	RequireEmailConfirmation bool
}

type Service struct {
	store      store.Store
	invites    InviteRedeemer
	hasher     *tokencrypto.Hasher
	mailer     Mailer
	auditor    *audit.Writer
	cfg        Config
	now        func() time.Time
	bcryptCost int

	// dummyHash keeps login timing similar for unknown emails.
	dummyHash string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithAuditor(w *audit.Writer) Option {
	return func(s *Service) { s.auditor = w }
}

// WithPasswordCost overrides BcryptCost. Tests use bcrypt.MinCost.
func WithPasswordCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func NewService(st store.Store, redeemer InviteRedeemer, hasher *tokencrypto.Hasher, mailer Mailer, cfg Config, opts ...Option) (*Service, error) {
	if mailer == nil {
		mailer = LogMailer{}
	}
	s := &Service{
		store:      st,
		invites:    redeemer,
		hasher:     hasher,
		mailer:     mailer,
		cfg:        cfg,
		now:        time.Now,
		bcryptCost: BcryptCost,
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := HashPassword("not-a-real-password", s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

type RegisterRequest struct {
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,mailbox,max=320"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	InviteToken string `json:"inviteToken" validate:"required,max=256"`
}

// Register creates an account with the role carried by the invite token.
// The account and the token consumption commit together or not at all.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = validation.NormalizeEmail(req.Email)
	req.InviteToken = strings.TrimSpace(req.InviteToken)

	if err := validation.Default().Validate(req); err != nil {
		return nil, err
	}

	passwordHash, err := HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var confirmToken string
	if s.cfg.RequireEmailConfirmation {
		confirmToken, err = tokencrypto.GenerateClearToken(tokencrypto.DefaultTokenSize)
		if err != nil {
			return nil, err
		}
	}

	var user *domain.User
	err = s.invites.Redeem(ctx, req.InviteToken, func(ctx context.Context, tx store.Store, inv *domain.InviteToken) error {
		now := s.now().UTC()
		u := &domain.User{
			ID:           uuid.New(),
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Email:        req.Email,
			PasswordHash: passwordHash,
			Role:         inv.Role,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if confirmToken != "" {
			u.ConfirmationHash = s.hasher.HashToken(confirmToken)
		} else {
			u.EmailConfirmedAt = &now
		}

		if err := tx.Users().Create(ctx, u); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrEmailTaken
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		if err := s.auditor.In(tx).LogUserRegistered(ctx, u.ID, inv.ID, u.Email, u.Role); err != nil {
			return err
		}

		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Str("role", string(user.Role)).
		Msg("User registered")

	if confirmToken != "" {
		s.sendConfirmation(ctx, user, confirmToken)
	}

	return user, nil
}

// ConfirmEmail marks the account holding the confirmation token as confirmed.
func (s *Service) ConfirmEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidConfirmation
	}

	userID, err := s.store.Users().ConfirmEmail(ctx, s.hasher.HashToken(token), s.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidConfirmation
		}
		return fmt.Errorf("failed to confirm email: %w", err)
	}

	if err := s.auditor.LogEmailConfirmed(ctx, userID); err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
	return nil
}

// ResendConfirmation issues a fresh confirmation link. Unknown or already
// confirmed addresses succeed silently so the endpoint cannot probe accounts.
func (s *Service) ResendConfirmation(ctx context.Context, email string) error {
	email = validation.NormalizeEmail(email)
	if email == "" {
		return apperrors.New(apperrors.KindInvalidArgument, "email is required")
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.IsEmailConfirmed() {
		return nil
	}

	token, err := tokencrypto.GenerateClearToken(tokencrypto.DefaultTokenSize)
	if err != nil {
		return err
	}
	if err := s.store.Users().SetConfirmationHash(ctx, user.ID, s.hasher.HashToken(token)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Confirmed concurrently.
			return nil
		}
		return fmt.Errorf("failed to store confirmation token: %w", err)
	}

	s.sendConfirmation(ctx, user, token)
	return nil
}

// Login checks credentials. A correct password on an unconfirmed account
// yields ErrEmailNotConfirmed.
func (s *Service) Login(ctx context.Context, email, password string) (*domain.User, error) {
	email = validation.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = VerifyPassword(s.dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsEmailConfirmed() {
		return nil, ErrEmailNotConfirmed
	}

	return user, nil
}

// ResetPassword replaces a user's password. Used by the admin CLI.
func (s *Service) ResetPassword(ctx context.Context, email, newPassword string) error {
	email = validation.NormalizeEmail(email)
	if len(newPassword) < MinPasswordLength {
		return apperrors.New(apperrors.KindInvalidArgument, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.store.Users().UpdatePasswordHash(ctx, email, hash, s.now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.auditor.LogPasswordReset(ctx, email); err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// RoleOf returns the role of the user, RoleNone for unknown users.
func (s *Service) RoleOf(ctx context.Context, id uuid.UUID) (domain.Role, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return domain.RoleNone, nil
		}
		return domain.RoleNone, err
	}
	return user.Role, nil
}

// ConfirmURL is the SPA page that completes email confirmation.
func ConfirmURL(baseURL, token string) string {
	return baseURL + "/account/confirm-email?token=" + url.QueryEscape(token)
}

func (s *Service) sendConfirmation(ctx context.Context, user *domain.User, token string) {
	link := ConfirmURL(s.cfg.BaseURL, token)
	if err := s.mailer.SendConfirmation(ctx, user.Email, user.FirstName, link); err != nil {
		// The user can request another link.
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to send confirmation email")
	}
}
