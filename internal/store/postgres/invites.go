package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type invitesRepo struct {
	q querier
}

const inviteColumns = `id, hash, role, created_at, expires_at, used_at, is_used, issued_to, purpose, created_by`

func (r *invitesRepo) Save(ctx context.Context, t *domain.InviteToken) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO invite_tokens (`+inviteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, t.Hash, string(t.Role), t.CreatedAt, t.ExpiresAt, t.UsedAt, t.IsUsed, t.IssuedTo, t.Purpose, t.CreatedBy)
	if err != nil {
		return mapConflict(fmt.Errorf("insert invite token: %w", err))
	}
	return nil
}

func (r *invitesRepo) FindByHash(ctx context.Context, hash string) (*domain.InviteToken, error) {
	row := r.q.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invite_tokens WHERE hash = $1`, hash)
	t, err := scanInvite(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return t, nil
}

func (r *invitesRepo) MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE invite_tokens
		SET is_used = TRUE, used_at = $2
		WHERE id = $1 AND is_used = FALSE AND expires_at > $2
	`, id, usedAt)
	if err != nil {
		return false, fmt.Errorf("mark invite used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *invitesRepo) List(ctx context.Context, filter store.ListInvitesFilter) ([]domain.InviteToken, error) {
	args := []any{store.ClampLimit(filter.Limit)}
	var cond string
	switch filter.Status {
	case "":
		cond = "TRUE"
	case domain.InviteStatusUsed:
		cond = "is_used = TRUE"
	case domain.InviteStatusPending:
		cond = "is_used = FALSE AND expires_at > $2"
		args = append(args, filter.Now)
	case domain.InviteStatusExpired:
		cond = "is_used = FALSE AND expires_at <= $2"
		args = append(args, filter.Now)
	default:
		return nil, fmt.Errorf("unknown invite status %q", filter.Status)
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+inviteColumns+`
		FROM invite_tokens
		WHERE `+cond+`
		ORDER BY created_at DESC
		LIMIT $1
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query invite tokens: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.InviteToken, error) {
		t, err := scanInvite(row)
		if err != nil {
			return domain.InviteToken{}, err
		}
		return *t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan invite tokens: %w", err)
	}
	return out, nil
}

func (r *invitesRepo) DeleteExpiredUnused(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM invite_tokens
		WHERE is_used = FALSE AND expires_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired invite tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanInvite(row pgx.Row) (*domain.InviteToken, error) {
	var (
		t    domain.InviteToken
		role string
	)
	if err := row.Scan(&t.ID, &t.Hash, &role, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt, &t.IsUsed, &t.IssuedTo, &t.Purpose, &t.CreatedBy); err != nil {
		return nil, err
	}
	t.Role = domain.Role(role)
	return &t, nil
}
