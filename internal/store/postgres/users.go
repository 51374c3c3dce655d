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

type usersRepo struct {
	q querier
}

const userColumns = `id, first_name, last_name, email, password_hash, role, email_confirmed_at, confirmation_hash, created_at, updated_at`

func (r *usersRepo) Create(ctx context.Context, u *domain.User) error {
	var confirmation *string
	if u.ConfirmationHash != "" {
		confirmation = &u.ConfirmationHash
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, string(u.Role), u.EmailConfirmedAt, confirmation, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return mapConflict(fmt.Errorf("insert user: %w", err))
	}
	return nil
}

func (r *usersRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) SetConfirmationHash(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE users SET confirmation_hash = $2
		WHERE id = $1 AND email_confirmed_at IS NULL
	`, id, hash)
	if err != nil {
		return mapConflict(fmt.Errorf("set confirmation hash: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) ConfirmEmail(ctx context.Context, hash string, at time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.q.QueryRow(ctx, `
		UPDATE users
		SET email_confirmed_at = $2, confirmation_hash = NULL, updated_at = $2
		WHERE confirmation_hash = $1 AND email_confirmed_at IS NULL
		RETURNING id
	`, hash, at).Scan(&id)
	if err != nil {
		return uuid.Nil, mapNotFound(err)
	}
	return id, nil
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, email, hash string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE email = $1`, email, hash, at)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u            domain.User
		role         string
		confirmation *string
	)
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &role, &u.EmailConfirmedAt, &confirmation, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	if confirmation != nil {
		u.ConfirmationHash = *confirmation
	}
	return &u, nil
}
