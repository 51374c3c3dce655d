package audit

import (
	"context"
	"time"

	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	EventInviteIssued       = "invite.issued"
	EventInviteRedeemed     = "invite.redeemed"
	EventInviteRedeemFailed = "invite.redeem_failed"
	EventUserRegistered     = "user.registered"
	EventEmailConfirmed     = "user.email_confirmed"
	EventPasswordReset      = "user.password_reset"
	EventLoginFailed        = "auth.login_failed"
	EventLogin              = "auth.login"
)

// Writer appends audit events. A nil *Writer discards everything.
type Writer struct {
	store store.Store
	now   func() time.Time
}

func NewWriter(s store.Store) *Writer {
	return &Writer{store: s, now: time.Now}
}

// In returns a writer bound to a transaction-scoped store, so events roll
// back together with the work they describe.
func (w *Writer) In(tx store.Store) *Writer {
	if w == nil {
		return nil
	}
	return &Writer{store: tx, now: w.now}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	ActorUserID *uuid.UUID
	Action      string
	Meta        map[string]any
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	if w == nil {
		return nil
	}

	event := &domain.AuditEvent{
		ID:          uuid.New(),
		ActorUserID: params.ActorUserID,
		Action:      params.Action,
		Meta:        params.Meta,
		CreatedAt:   w.now().UTC(),
	}

	if err := w.store.Audit().Append(ctx, event); err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return err
	}

	log.Info().
		Str("action", params.Action).
		Interface("actor_user_id", params.ActorUserID).
		Msg("Audit event logged")

	return nil
}

func (w *Writer) LogInviteIssued(ctx context.Context, actorUserID *uuid.UUID, inviteID uuid.UUID, role domain.Role, expiresAt time.Time) error {
	return w.Log(ctx, LogParams{
		ActorUserID: actorUserID,
		Action:      EventInviteIssued,
		Meta: map[string]any{
			"invite_id":  inviteID.String(),
			"role":       string(role),
			"expires_at": expiresAt.UTC().Format(time.RFC3339),
		},
	})
}

func (w *Writer) LogInviteRedeemed(ctx context.Context, inviteID uuid.UUID, role domain.Role) error {
	return w.Log(ctx, LogParams{
		Action: EventInviteRedeemed,
		Meta: map[string]any{
			"invite_id": inviteID.String(),
			"role":      string(role),
		},
	})
}

// LogInviteRedeemFailed records the specific reason a redemption was refused.
// The caller only ever sees a generic rejection.
func (w *Writer) LogInviteRedeemFailed(ctx context.Context, inviteID *uuid.UUID, reason string) error {
	meta := map[string]any{"reason": reason}
	if inviteID != nil {
		meta["invite_id"] = inviteID.String()
	}
	return w.Log(ctx, LogParams{
		Action: EventInviteRedeemFailed,
		Meta:   meta,
	})
}

func (w *Writer) LogUserRegistered(ctx context.Context, userID, inviteID uuid.UUID, email string, role domain.Role) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventUserRegistered,
		Meta: map[string]any{
			"email":     email,
			"role":      string(role),
			"invite_id": inviteID.String(),
		},
	})
}

func (w *Writer) LogEmailConfirmed(ctx context.Context, userID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventEmailConfirmed,
	})
}

func (w *Writer) LogPasswordReset(ctx context.Context, email string) error {
	return w.Log(ctx, LogParams{
		Action: EventPasswordReset,
		Meta: map[string]any{
			"email": email,
		},
	})
}

func (w *Writer) LogLoginFailed(ctx context.Context, email, ip, reason string) error {
	return w.Log(ctx, LogParams{
		Action: EventLoginFailed,
		Meta: map[string]any{
			"email":  email,
			"ip":     ip,
			"reason": reason,
		},
	})
}

func (w *Writer) LogLogin(ctx context.Context, userID uuid.UUID, ip string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventLogin,
		Meta: map[string]any{
			"ip": ip,
		},
	})
}

// List returns the most recent events first.
func (w *Writer) List(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	return w.store.Audit().List(ctx, limit)
}
