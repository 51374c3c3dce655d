// Package storetest holds the behavioural suite every store driver must pass.
package storetest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Run executes the suite. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("InviteSaveAndFind", func(t *testing.T) { testInviteSaveAndFind(t, open(t)) })
	t.Run("InviteMarkUsedOnce", func(t *testing.T) { testInviteMarkUsedOnce(t, open(t)) })
	t.Run("InviteMarkUsedExpired", func(t *testing.T) { testInviteMarkUsedExpired(t, open(t)) })
	t.Run("InviteMarkUsedConcurrent", func(t *testing.T) { testInviteMarkUsedConcurrent(t, open(t)) })
	t.Run("InviteListAndPrune", func(t *testing.T) { testInviteListAndPrune(t, open(t)) })
	t.Run("WithTxRollback", func(t *testing.T) { testWithTxRollback(t, open(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, open(t)) })
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewInvite builds an unsaved token expiring after ttl.
func NewInvite(hash string, role domain.Role, created time.Time, ttl time.Duration) *domain.InviteToken {
	return &domain.InviteToken{
		ID:        uuid.New(),
		Hash:      hash,
		Role:      role,
		CreatedAt: created,
		ExpiresAt: created.Add(ttl),
	}
}

func testInviteSaveAndFind(t *testing.T, s store.Store) {
	ctx := context.Background()
	inv := NewInvite("hash-a", domain.RoleAdmin, now(), time.Hour)
	inv.IssuedTo = "brother.john@example.org"
	inv.Purpose = "catalog editor"

	require.NoError(t, s.Invites().Save(ctx, inv))

	got, err := s.Invites().FindByHash(ctx, "hash-a")
	require.NoError(t, err)
	require.Equal(t, inv.ID, got.ID)
	require.Equal(t, domain.RoleAdmin, got.Role)
	require.Equal(t, "brother.john@example.org", got.IssuedTo)
	require.Equal(t, "catalog editor", got.Purpose)
	require.WithinDuration(t, inv.ExpiresAt, got.ExpiresAt, time.Millisecond)
	require.False(t, got.IsUsed)
	require.Nil(t, got.UsedAt)
	require.Nil(t, got.CreatedBy)

	_, err = s.Invites().FindByHash(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	dup := NewInvite("hash-a", domain.RoleSuperAdmin, now(), time.Hour)
	require.ErrorIs(t, s.Invites().Save(ctx, dup), store.ErrConflict)

	sameID := NewInvite("hash-b", domain.RoleAdmin, now(), time.Hour)
	sameID.ID = inv.ID
	require.ErrorIs(t, s.Invites().Save(ctx, sameID), store.ErrConflict)
}

func testInviteMarkUsedOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	inv := NewInvite("hash-once", domain.RoleSuperAdmin, now(), time.Hour)
	require.NoError(t, s.Invites().Save(ctx, inv))

	usedAt := now()
	ok, err := s.Invites().MarkUsed(ctx, inv.ID, usedAt)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Invites().MarkUsed(ctx, inv.ID, now())
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.Invites().FindByHash(ctx, "hash-once")
	require.NoError(t, err)
	require.True(t, got.IsUsed)
	require.NotNil(t, got.UsedAt)
	require.WithinDuration(t, usedAt, *got.UsedAt, time.Millisecond)

	ok, err = s.Invites().MarkUsed(ctx, uuid.New(), now())
	require.NoError(t, err)
	require.False(t, ok)
}

func testInviteMarkUsedExpired(t *testing.T, s store.Store) {
	ctx := context.Background()
	inv := NewInvite("hash-expired", domain.RoleAdmin, now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, s.Invites().Save(ctx, inv))

	ok, err := s.Invites().MarkUsed(ctx, inv.ID, now())
	require.NoError(t, err)
	require.False(t, ok)

	// Exactly at expiry is already expired.
	edge := NewInvite("hash-edge", domain.RoleAdmin, now().Add(-time.Hour), time.Hour)
	require.NoError(t, s.Invites().Save(ctx, edge))
	ok, err = s.Invites().MarkUsed(ctx, edge.ID, edge.ExpiresAt)
	require.NoError(t, err)
	require.False(t, ok)
}

func testInviteMarkUsedConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	inv := NewInvite("hash-race", domain.RoleAdmin, now(), time.Hour)
	require.NoError(t, s.Invites().Save(ctx, inv))

	var wins atomic.Int32
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			ok, err := s.Invites().MarkUsed(ctx, inv.ID, now())
			if err != nil {
				return err
			}
			if ok {
				wins.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), wins.Load())
}

func testInviteListAndPrune(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := now()

	pending := NewInvite("hash-pending", domain.RoleAdmin, base.Add(-time.Minute), time.Hour)
	used := NewInvite("hash-used", domain.RoleAdmin, base.Add(-50*24*time.Hour), time.Hour)
	stale := NewInvite("hash-stale", domain.RoleSuperAdmin, base.Add(-40*24*time.Hour), time.Hour)
	recent := NewInvite("hash-recent", domain.RoleAdmin, base.Add(-3*time.Hour), time.Hour)

	for _, inv := range []*domain.InviteToken{pending, used, stale, recent} {
		require.NoError(t, s.Invites().Save(ctx, inv))
	}
	ok, err := s.Invites().MarkUsed(ctx, used.ID, used.CreatedAt.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	all, err := s.Invites().List(ctx, store.ListInvitesFilter{Now: base})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, pending.ID, all[0].ID)

	byStatus := func(status string) []uuid.UUID {
		list, err := s.Invites().List(ctx, store.ListInvitesFilter{Status: status, Now: base})
		require.NoError(t, err)
		var ids []uuid.UUID
		for _, inv := range list {
			ids = append(ids, inv.ID)
		}
		return ids
	}
	require.Equal(t, []uuid.UUID{pending.ID}, byStatus(domain.InviteStatusPending))
	require.Equal(t, []uuid.UUID{used.ID}, byStatus(domain.InviteStatusUsed))
	require.Equal(t, []uuid.UUID{recent.ID, stale.ID}, byStatus(domain.InviteStatusExpired))

	n, err := s.Invites().DeleteExpiredUnused(ctx, base.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = s.Invites().FindByHash(ctx, "hash-stale")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Invites().FindByHash(ctx, "hash-used")
	require.NoError(t, err)
	_, err = s.Invites().FindByHash(ctx, "hash-recent")
	require.NoError(t, err)
}

func testWithTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	inv := NewInvite("hash-tx", domain.RoleAdmin, now(), time.Hour)
	require.NoError(t, s.Invites().Save(ctx, inv))

	err := s.WithTx(ctx, func(tx store.Store) error {
		ok, err := tx.Invites().MarkUsed(ctx, inv.ID, now())
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, tx.Users().Create(ctx, newUser("rolled.back@example.org")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Invites().FindByHash(ctx, "hash-tx")
	require.NoError(t, err)
	require.False(t, got.IsUsed)

	_, err = s.Users().GetByEmail(ctx, "rolled.back@example.org")
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.WithTx(ctx, func(tx store.Store) error {
		return tx.WithTx(ctx, func(inner store.Store) error {
			ok, err := inner.Invites().MarkUsed(ctx, inv.ID, now())
			require.NoError(t, err)
			require.True(t, ok)
			return nil
		})
	})
	require.NoError(t, err)

	got, err = s.Invites().FindByHash(ctx, "hash-tx")
	require.NoError(t, err)
	require.True(t, got.IsUsed)
}

func newUser(email string) *domain.User {
	ts := now()
	return &domain.User{
		ID:               uuid.New(),
		FirstName:        "Teresa",
		LastName:         "Avila",
		Email:            email,
		PasswordHash:     "$2a$12$placeholder",
		Role:             domain.RoleAdmin,
		ConfirmationHash: "confirm-" + email,
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser("teresa@example.org")
	require.NoError(t, s.Users().Create(ctx, u))
	require.ErrorIs(t, s.Users().Create(ctx, newUser("teresa@example.org")), store.ErrConflict)

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "teresa@example.org", got.Email)
	require.Equal(t, domain.RoleAdmin, got.Role)
	require.False(t, got.IsEmailConfirmed())

	_, err = s.Users().GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Users().SetConfirmationHash(ctx, u.ID, "fresh-hash"))
	_, err = s.Users().ConfirmEmail(ctx, "confirm-teresa@example.org", now())
	require.ErrorIs(t, err, store.ErrNotFound)

	id, err := s.Users().ConfirmEmail(ctx, "fresh-hash", now())
	require.NoError(t, err)
	require.Equal(t, u.ID, id)

	_, err = s.Users().ConfirmEmail(ctx, "fresh-hash", now())
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.Users().SetConfirmationHash(ctx, u.ID, "another"), store.ErrNotFound)

	got, err = s.Users().GetByEmail(ctx, "teresa@example.org")
	require.NoError(t, err)
	require.True(t, got.IsEmailConfirmed())
	require.Empty(t, got.ConfirmationHash)

	require.NoError(t, s.Users().UpdatePasswordHash(ctx, "teresa@example.org", "new-hash", now()))
	got, err = s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.PasswordHash)

	require.ErrorIs(t, s.Users().UpdatePasswordHash(ctx, "nobody@example.org", "x", now()), store.ErrNotFound)
}

func testAudit(t *testing.T, s store.Store) {
	ctx := context.Background()
	actor := uuid.New()
	base := now()

	for i, action := range []string{"invite.issued", "invite.redeemed", "user.registered"} {
		e := &domain.AuditEvent{
			ID:        uuid.New(),
			Action:    action,
			Meta:      map[string]any{"n": i},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if i == 0 {
			e.ActorUserID = &actor
		}
		require.NoError(t, s.Audit().Append(ctx, e))
	}

	events, err := s.Audit().List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "user.registered", events[0].Action)
	require.Equal(t, "invite.redeemed", events[1].Action)
	require.Nil(t, events[0].ActorUserID)
	require.EqualValues(t, 2, events[0].Meta["n"])

	events, err = s.Audit().List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, actor, *events[2].ActorUserID)
}
