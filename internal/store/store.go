// Package store defines the persistence boundary. Drivers under
// store/postgres and store/sqlite implement it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

// Store is the root data access interface. Sub-repositories returned by a
// store obtained through WithTx run inside that transaction.
type Store interface {
	Invites() Invites
	Users() Users
	Audit() AuditLog

	// WithTx runs fn in a transaction, committing when fn returns nil.
	// Calling WithTx on a transaction-scoped store reuses the transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Ping(ctx context.Context) error
	Close() error
}

// ListInvitesFilter narrows Invites.List. Status is evaluated against Now.
type ListInvitesFilter struct {
	Status string
	Now    time.Time
	Limit  int
}

type Invites interface {
	// Save inserts a new token. ErrConflict when the id or hash exists.
	Save(ctx context.Context, t *domain.InviteToken) error

	// FindByHash returns ErrNotFound when no row carries hash.
	FindByHash(ctx context.Context, hash string) (*domain.InviteToken, error)

	// MarkUsed flips is_used in a single conditional update. It reports true
	// only when this call performed the transition, so at most one concurrent
	// caller wins. Expired tokens are never marked.
	MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error)

	// List returns tokens newest first.
	List(ctx context.Context, filter ListInvitesFilter) ([]domain.InviteToken, error)

	// DeleteExpiredUnused removes unused tokens that expired before the cutoff.
	DeleteExpiredUnused(ctx context.Context, before time.Time) (int64, error)
}

type Users interface {
	// Create inserts a user. ErrConflict when the email is taken.
	Create(ctx context.Context, u *domain.User) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// SetConfirmationHash replaces the pending confirmation token of an unconfirmed user.
	SetConfirmationHash(ctx context.Context, id uuid.UUID, hash string) error

	// ConfirmEmail confirms the unconfirmed user holding hash and clears it.
	// ErrNotFound when no unconfirmed user matches.
	ConfirmEmail(ctx context.Context, hash string, at time.Time) (uuid.UUID, error)

	UpdatePasswordHash(ctx context.Context, email, hash string, at time.Time) error
}

type AuditLog interface {
	Append(ctx context.Context, e *domain.AuditEvent) error

	// List returns the most recent events first.
	List(ctx context.Context, limit int) ([]domain.AuditEvent, error)
}

// ClampLimit bounds list limits to 1..200 with a default of 50.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
