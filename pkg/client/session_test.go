package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubIdentity struct {
	mu    sync.Mutex
	user  *CurrentUser
	role  Role
	err   error
	calls int
}

func (s *stubIdentity) Me(context.Context) (*CurrentUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.user == nil {
		return nil, &APIError{StatusCode: 401, Code: CodeUnauthorized}
	}
	return s.user, nil
}

func (s *stubIdentity) FetchRole(context.Context) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return RoleNone, s.err
	}
	if s.user == nil {
		return RoleNone, &APIError{StatusCode: 401, Code: CodeUnauthorized}
	}
	return s.role, nil
}

func TestSession_LazyAndIdempotent(t *testing.T) {
	id := &stubIdentity{user: &CurrentUser{Email: "a@example.org", Role: RoleAdmin}, role: RoleAdmin}
	s := newSession(id)
	ctx := context.Background()

	require.False(t, s.Initialized())
	require.Equal(t, RoleNone, s.Role())

	for i := 0; i < 3; i++ {
		u, err := s.CurrentUser(ctx)
		require.NoError(t, err)
		require.Equal(t, "a@example.org", u.Email)
	}
	require.Equal(t, 1, id.calls)
	require.Equal(t, RoleAdmin, s.Role())
}

func TestSession_RoleIsCachedUntilRefresh(t *testing.T) {
	id := &stubIdentity{user: &CurrentUser{Email: "a@example.org"}, role: RoleAdmin}
	s := newSession(id)
	ctx := context.Background()

	_, err := s.CurrentUser(ctx)
	require.NoError(t, err)

	id.mu.Lock()
	id.role = RoleSuperAdmin
	id.mu.Unlock()
	require.Equal(t, RoleAdmin, s.Role())

	_, err = s.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, RoleSuperAdmin, s.Role())
}

func TestSession_Anonymous(t *testing.T) {
	s := newSession(&stubIdentity{})

	u, err := s.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Nil(t, u)
	require.True(t, s.Initialized())
	require.Equal(t, RoleNone, s.Role())
}

func TestSession_ErrorLeavesUninitialized(t *testing.T) {
	id := &stubIdentity{err: errors.New("connection refused")}
	s := newSession(id)

	_, err := s.CurrentUser(context.Background())
	require.Error(t, err)
	require.False(t, s.Initialized())

	id.mu.Lock()
	id.err = nil
	id.user = &CurrentUser{Email: "a@example.org"}
	id.mu.Unlock()

	u, err := s.CurrentUser(context.Background())
	require.NoError(t, err)
	require.NotNil(t, u)
}

func TestSession_InvalidateForcesFetch(t *testing.T) {
	id := &stubIdentity{user: &CurrentUser{Email: "a@example.org"}, role: RoleAdmin}
	s := newSession(id)
	ctx := context.Background()

	_, err := s.CurrentUser(ctx)
	require.NoError(t, err)

	s.Invalidate()
	require.False(t, s.Initialized())
	require.Equal(t, RoleNone, s.Role())

	_, err = s.CurrentUser(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, id.calls)
}

func TestSession_ConcurrentCallersShareOneFetch(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.meBlocked = make(chan struct{})
	c := newTestClient(t, srv.URL)

	var wg sync.WaitGroup
	results := make([]*CurrentUser, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Session().CurrentUser(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return api.meHits.Load() == 1 }, testTimeout, testTick)
	close(api.meBlocked)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Nil(t, results[i])
	}
	require.Equal(t, int32(1), api.meHits.Load())
}

// gatedIdentity blocks Me until gate is closed, honouring ctx while it waits.
type gatedIdentity struct {
	user    *CurrentUser
	gate    chan struct{}
	entered chan struct{}
	calls   atomic.Int32
}

func (g *gatedIdentity) Me(ctx context.Context) (*CurrentUser, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
	}
	select {
	case <-g.gate:
		return g.user, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedIdentity) FetchRole(context.Context) (Role, error) {
	return g.user.Role, nil
}

func TestSession_CancelledCallerDoesNotFailOthers(t *testing.T) {
	id := &gatedIdentity{
		user:    &CurrentUser{Email: "a@example.org", Role: RoleSuperAdmin},
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	s := newSession(id)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := s.CurrentUser(ctxA)
		errA <- err
	}()

	<-id.entered
	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	type result struct {
		user *CurrentUser
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		u, err := s.CurrentUser(context.Background())
		resB <- result{u, err}
	}()

	close(id.gate)
	b := <-resB
	require.NoError(t, b.err)
	require.Equal(t, "a@example.org", b.user.Email)
	require.Equal(t, RoleSuperAdmin, s.Role())
	require.Equal(t, int32(1), id.calls.Load())
}

const (
	testTimeout = 2 * time.Second
	testTick    = 5 * time.Millisecond
)
