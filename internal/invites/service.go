package invites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aliuyar1234/sanctus/internal/apperrors"
	"github.com/aliuyar1234/sanctus/internal/audit"
	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/metrics"
	"github.com/aliuyar1234/sanctus/internal/store"
	"github.com/aliuyar1234/sanctus/internal/tokencrypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultLifetime applies when neither the caller nor configuration sets one.
const DefaultLifetime = 72 * time.Hour

const (
	maxIssuedToLength = 320
	maxPurposeLength  = 500
)

// Service issues and redeems invite tokens.
type Service struct {
	store      store.Store
	hasher     *tokencrypto.Hasher
	defaultTTL time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics
	auditor    *audit.Writer
	notifier   Notifier
}

// Notifier announces issued and redeemed invites to operators. It must not
// block for long and never sees the clear token.
type Notifier interface {
	NotifyInvite(ctx context.Context, event domain.InviteEvent, inv *domain.InviteToken)
}

type Option func(*Service)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditor(w *audit.Writer) Option {
	return func(s *Service) { s.auditor = w }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func NewService(st store.Store, hasher *tokencrypto.Hasher, defaultTTL time.Duration, opts ...Option) *Service {
	if defaultTTL <= 0 {
		defaultTTL = DefaultLifetime
	}
	s := &Service{
		store:      st,
		hasher:     hasher,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateInviteParams describes a new invite. A zero Lifetime uses the
// service default.
type GenerateInviteParams struct {
	Role      domain.Role
	Lifetime  time.Duration
	IssuedTo  string
	Purpose   string
	CreatedBy *uuid.UUID
}

// GenerateInvite persists a new token and returns it with the clear value.
// The clear value is not recoverable afterwards.
func (s *Service) GenerateInvite(ctx context.Context, p GenerateInviteParams) (*domain.InviteToken, string, error) {
	if !p.Role.IsValid() {
		return nil, "", ErrInvalidRole
	}
	if p.Lifetime < 0 {
		return nil, "", ErrInvalidLifetime
	}
	lifetime := p.Lifetime
	if lifetime == 0 {
		lifetime = s.defaultTTL
	}

	issuedTo := strings.TrimSpace(p.IssuedTo)
	purpose := strings.TrimSpace(p.Purpose)
	if len(issuedTo) > maxIssuedToLength {
		return nil, "", apperrors.New(apperrors.KindInvalidArgument, "issuedTo is too long")
	}
	if len(purpose) > maxPurposeLength {
		return nil, "", apperrors.New(apperrors.KindInvalidArgument, "purpose is too long")
	}

	clear, err := tokencrypto.GenerateClearToken(tokencrypto.DefaultTokenSize)
	if err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	inv := &domain.InviteToken{
		ID:        uuid.New(),
		Hash:      s.hasher.HashToken(clear),
		Role:      p.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
		IssuedTo:  issuedTo,
		Purpose:   purpose,
		CreatedBy: p.CreatedBy,
	}

	if err := s.store.Invites().Save(ctx, inv); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, "", apperrors.Wrap(apperrors.KindConflict, "invite token collision", err)
		}
		return nil, "", fmt.Errorf("failed to save invite: %w", err)
	}

	if err := s.auditor.LogInviteIssued(ctx, p.CreatedBy, inv.ID, inv.Role, inv.ExpiresAt); err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
	s.metrics.InviteIssued(string(inv.Role))
	s.notify(ctx, domain.InviteEventIssued, inv)

	log.Info().
		Str("invite_id", inv.ID.String()).
		Str("role", string(inv.Role)).
		Time("expires_at", inv.ExpiresAt).
		Msg("Invite issued")

	return inv, clear, nil
}

// Validate reports whether clear names a redeemable token. It never mutates state.
func (s *Service) Validate(ctx context.Context, clear string) (bool, error) {
	if _, err := s.GetValidToken(ctx, clear); err != nil {
		if isRejection(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetValidToken returns the token for clear or ErrInviteNotFound,
// ErrInviteUsed or ErrInviteExpired.
func (s *Service) GetValidToken(ctx context.Context, clear string) (*domain.InviteToken, error) {
	inv, err := s.lookup(ctx, s.store, clear)
	if err != nil {
		return nil, err
	}
	if err := checkRedeemable(inv, s.now()); err != nil {
		return nil, err
	}
	return inv, nil
}

// Consume marks the token used. It returns false when the token is unknown,
// used, expired, or another caller consumed it first.
func (s *Service) Consume(ctx context.Context, clear string) (bool, error) {
	inv, reason, err := s.consume(ctx, s.store, clear)
	if err != nil {
		s.metrics.InviteRedemption(metrics.OutcomeError)
		return false, err
	}
	if reason != "" {
		s.rejected(ctx, inv, reason)
		return false, nil
	}
	s.metrics.InviteRedemption(metrics.OutcomeSuccess)
	s.notify(ctx, domain.InviteEventRedeemed, inv)
	return true, nil
}

// RedeemFunc runs inside the redemption transaction after the token is marked used.
type RedeemFunc = func(ctx context.Context, tx store.Store, inv *domain.InviteToken) error

// Redeem consumes the token and runs fn in the same transaction. If fn fails
// the token stays unused. Every token problem surfaces as ErrInvalidInvite;
// the precise reason is logged and audited.
func (s *Service) Redeem(ctx context.Context, clear string, fn RedeemFunc) error {
	var (
		inv    *domain.InviteToken
		reason string
	)

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		inv, reason, err = s.consume(ctx, tx, clear)
		if err != nil {
			return err
		}
		if reason != "" {
			return ErrInvalidInvite
		}

		if err := fn(ctx, tx, inv); err != nil {
			return err
		}
		return s.auditor.In(tx).LogInviteRedeemed(ctx, inv.ID, inv.Role)
	})

	switch {
	case reason != "":
		s.rejected(ctx, inv, reason)
		return ErrInvalidInvite
	case err != nil:
		s.metrics.InviteRedemption(metrics.OutcomeError)
		return err
	}

	s.metrics.InviteRedemption(metrics.OutcomeSuccess)
	s.notify(ctx, domain.InviteEventRedeemed, inv)
	return nil
}

func (s *Service) notify(ctx context.Context, event domain.InviteEvent, inv *domain.InviteToken) {
	if s.notifier != nil {
		s.notifier.NotifyInvite(ctx, event, inv)
	}
}

// InviteSummary is a token as listed to administrators.
type InviteSummary struct {
	domain.InviteToken
	Status string `json:"status"`
}

// List returns tokens newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string, limit int) ([]InviteSummary, error) {
	switch status {
	case "", domain.InviteStatusPending, domain.InviteStatusUsed, domain.InviteStatusExpired:
	default:
		return nil, ErrInvalidStatus
	}

	now := s.now().UTC()
	tokens, err := s.store.Invites().List(ctx, store.ListInvitesFilter{Status: status, Now: now, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}

	out := make([]InviteSummary, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, InviteSummary{InviteToken: t, Status: t.StatusAt(now)})
	}
	return out, nil
}

// Prune deletes unused tokens that expired more than olderThan ago.
// Used tokens are never deleted.
func (s *Service) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.store.Invites().DeleteExpiredUnused(ctx, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to prune invites: %w", err)
	}
	return n, nil
}

// consume runs the validity check and the conditional update against st.
// A non-empty reason means the token was refused; inv is nil when it was unknown.
func (s *Service) consume(ctx context.Context, st store.Store, clear string) (*domain.InviteToken, string, error) {
	inv, err := s.lookup(ctx, st, clear)
	if err != nil {
		if errors.Is(err, ErrInviteNotFound) {
			return nil, metrics.OutcomeNotFound, nil
		}
		return nil, "", err
	}

	now := s.now()
	if err := checkRedeemable(inv, now); err != nil {
		return inv, outcomeFor(err), nil
	}

	ok, err := st.Invites().MarkUsed(ctx, inv.ID, now.UTC())
	if err != nil {
		return nil, "", fmt.Errorf("failed to mark invite used: %w", err)
	}
	if !ok {
		return inv, metrics.OutcomeRaceLost, nil
	}

	usedAt := now.UTC()
	inv.IsUsed = true
	inv.UsedAt = &usedAt
	return inv, "", nil
}

func (s *Service) lookup(ctx context.Context, st store.Store, clear string) (*domain.InviteToken, error) {
	if clear == "" {
		return nil, ErrInviteNotFound
	}

	inv, err := st.Invites().FindByHash(ctx, s.hasher.HashToken(clear))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to load invite: %w", err)
	}
	// The row must match exactly, whatever collation the lookup used.
	if !s.hasher.VerifyToken(clear, inv.Hash) {
		return nil, ErrInviteNotFound
	}
	return inv, nil
}

func (s *Service) rejected(ctx context.Context, inv *domain.InviteToken, reason string) {
	var inviteID *uuid.UUID
	ev := log.Warn().Str("reason", reason)
	if inv != nil {
		inviteID = &inv.ID
		ev = ev.Str("invite_id", inv.ID.String())
	}
	ev.Msg("Invite redemption refused")

	if err := s.auditor.LogInviteRedeemFailed(ctx, inviteID, reason); err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
	s.metrics.InviteRedemption(reason)
}

func checkRedeemable(inv *domain.InviteToken, now time.Time) error {
	if inv.IsUsed {
		return ErrInviteUsed
	}
	if inv.IsExpiredAt(now) {
		return ErrInviteExpired
	}
	return nil
}

func isRejection(err error) bool {
	return errors.Is(err, ErrInviteNotFound) || errors.Is(err, ErrInviteUsed) || errors.Is(err, ErrInviteExpired)
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrInviteUsed):
		return metrics.OutcomeAlreadyUsed
	case errors.Is(err, ErrInviteExpired):
		return metrics.OutcomeExpired
	default:
		return metrics.OutcomeNotFound
	}
}
