package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/store"
	"github.com/google/uuid"
)

type invitesRepo struct {
	q querier
}

const inviteColumns = `id, hash, role, created_at, expires_at, used_at, is_used, issued_to, purpose, created_by`

func (r *invitesRepo) Save(ctx context.Context, t *domain.InviteToken) error {
	var createdBy uuid.NullUUID
	if t.CreatedBy != nil {
		createdBy = uuid.NullUUID{UUID: *t.CreatedBy, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO invite_tokens (`+inviteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID.String(), t.Hash, string(t.Role),
		formatTime(t.CreatedAt), formatTime(t.ExpiresAt), nullableTime(t.UsedAt),
		t.IsUsed, t.IssuedTo, t.Purpose, createdBy,
	)
	if err != nil {
		return mapConflict(fmt.Errorf("insert invite token: %w", err))
	}
	return nil
}

func (r *invitesRepo) FindByHash(ctx context.Context, hash string) (*domain.InviteToken, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invite_tokens WHERE hash = ?`, hash)
	t, err := scanInvite(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return t, nil
}

func (r *invitesRepo) MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE invite_tokens
		SET is_used = 1, used_at = ?
		WHERE id = ? AND is_used = 0 AND expires_at > ?
	`, formatTime(usedAt), id.String(), formatTime(usedAt))
	if err != nil {
		return false, fmt.Errorf("mark invite used: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *invitesRepo) List(ctx context.Context, filter store.ListInvitesFilter) ([]domain.InviteToken, error) {
	var (
		where []string
		args  []any
	)

	now := formatTime(filter.Now)
	switch filter.Status {
	case "":
	case domain.InviteStatusUsed:
		where = append(where, "is_used = 1")
	case domain.InviteStatusPending:
		where = append(where, "is_used = 0 AND expires_at > ?")
		args = append(args, now)
	case domain.InviteStatusExpired:
		where = append(where, "is_used = 0 AND expires_at <= ?")
		args = append(args, now)
	default:
		return nil, fmt.Errorf("unknown invite status %q", filter.Status)
	}

	query := `SELECT ` + inviteColumns + ` FROM invite_tokens`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, store.ClampLimit(filter.Limit))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invite tokens: %w", err)
	}
	defer rows.Close()

	var out []domain.InviteToken
	for rows.Next() {
		t, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *invitesRepo) DeleteExpiredUnused(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM invite_tokens
		WHERE is_used = 0 AND expires_at < ?
	`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("delete expired invite tokens: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvite(row rowScanner) (*domain.InviteToken, error) {
	var (
		t                    domain.InviteToken
		role                 string
		createdAt, expiresAt string
		usedAt               sql.NullString
		createdBy            uuid.NullUUID
	)

	if err := row.Scan(&t.ID, &t.Hash, &role, &createdAt, &expiresAt, &usedAt, &t.IsUsed, &t.IssuedTo, &t.Purpose, &createdBy); err != nil {
		return nil, err
	}

	var err error
	t.Role = domain.Role(role)
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if t.UsedAt, err = parseNullableTime(usedAt); err != nil {
		return nil, fmt.Errorf("parse used_at: %w", err)
	}
	if createdBy.Valid {
		id := createdBy.UUID
		t.CreatedBy = &id
	}
	return &t, nil
}
