package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/store"
	"github.com/google/uuid"
)

type usersRepo struct {
	q querier
}

const userColumns = `id, first_name, last_name, email, password_hash, role, email_confirmed_at, confirmation_hash, created_at, updated_at`

func (r *usersRepo) Create(ctx context.Context, u *domain.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		u.ID.String(), u.FirstName, u.LastName, u.Email, u.PasswordHash, string(u.Role),
		nullableTime(u.EmailConfirmedAt), nullableString(u.ConfirmationHash),
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if err != nil {
		return mapConflict(fmt.Errorf("insert user: %w", err))
	}
	return nil
}

func (r *usersRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	u, err := scanUser(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) SetConfirmationHash(ctx context.Context, id uuid.UUID, hash string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users SET confirmation_hash = ?
		WHERE id = ? AND email_confirmed_at IS NULL
	`, hash, id.String())
	if err != nil {
		return mapConflict(fmt.Errorf("set confirmation hash: %w", err))
	}
	return requireOneRow(res)
}

func (r *usersRepo) ConfirmEmail(ctx context.Context, hash string, at time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.q.QueryRowContext(ctx, `
		UPDATE users
		SET email_confirmed_at = ?, confirmation_hash = NULL, updated_at = ?
		WHERE confirmation_hash = ? AND email_confirmed_at IS NULL
		RETURNING id
	`, formatTime(at), formatTime(at), hash).Scan(&id)
	if err != nil {
		return uuid.Nil, mapNotFound(err)
	}
	return id, nil
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, email, hash string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, updated_at = ? WHERE email = ?
	`, hash, formatTime(at), email)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return requireOneRow(res)
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                    domain.User
		role                 string
		confirmedAt          sql.NullString
		confirmationHash     sql.NullString
		createdAt, updatedAt string
	)

	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &role, &confirmedAt, &confirmationHash, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	u.Role = domain.Role(role)
	u.ConfirmationHash = confirmationHash.String
	if u.EmailConfirmedAt, err = parseNullableTime(confirmedAt); err != nil {
		return nil, fmt.Errorf("parse email_confirmed_at: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &u, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
