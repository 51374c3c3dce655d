package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/store"
	"github.com/aliuyar1234/sanctus/internal/store/storetest"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "sanctus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, openTestStore)
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sanctus.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	inv := storetest.NewInvite("hash", domain.RoleAdmin, time.Now().UTC(), time.Hour)
	require.NoError(t, s.Invites().Save(ctx, inv))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Invites().FindByHash(ctx, "hash")
	require.NoError(t, err)
	require.Equal(t, inv.ID, got.ID)
}

func TestTimeLayoutSortsLexically(t *testing.T) {
	a := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := a.Add(time.Nanosecond)
	c := time.Date(2026, 1, 2, 4, 4, 5, 0, time.FixedZone("CET", 3600))

	require.Less(t, formatTime(a), formatTime(b))
	require.Equal(t, formatTime(a), formatTime(c))

	parsed, err := parseTime(formatTime(b))
	require.NoError(t, err)
	require.True(t, parsed.Equal(b))
}
