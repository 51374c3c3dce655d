package client

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// fetchTimeout bounds a shared identity fetch.
const fetchTimeout = defaultTimeout

// identity fetches who the session belongs to. *Client implements it.
type identity interface {
	Me(ctx context.Context) (*CurrentUser, error)
	FetchRole(ctx context.Context) (Role, error)
}

// Session caches the signed-in user and role. It starts uninitialized, is
// populated by the first CurrentUser or Refresh call, and is reset by
// Invalidate on logout or when the server reports the session gone.
type Session struct {
	identity identity
	group    singleflight.Group

	mu          sync.RWMutex
	initialized bool
	user        *CurrentUser
	role        Role
	generation  uint64
}

func newSession(id identity) *Session {
	return &Session{identity: id}
}

// CurrentUser returns the session user, fetching it once if the session is
// not initialized. It returns nil for an anonymous session.
func (s *Session) CurrentUser(ctx context.Context) (*CurrentUser, error) {
	s.mu.RLock()
	if s.initialized {
		user := s.user
		s.mu.RUnlock()
		return user, nil
	}
	s.mu.RUnlock()

	return s.fetch(ctx, true)
}

// Role returns the cached role without any network call. It is RoleNone
// until the session is initialized and for anonymous sessions.
func (s *Session) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

func (s *Session) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Refresh fetches user and role from the server. A 401 initializes the
// session as anonymous; other errors leave it uninitialized.
func (s *Session) Refresh(ctx context.Context) (*CurrentUser, error) {
	return s.fetch(ctx, false)
}

// fetch loads the identity. Concurrent callers share one fetch; with reuse
// set, a session initialized meanwhile is returned as is. The shared fetch
// is detached from any single caller's cancellation and bounded by
// fetchTimeout; each caller still stops waiting when its own ctx ends.
func (s *Session) fetch(ctx context.Context, reuse bool) (*CurrentUser, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan("identity", func() (any, error) {
		fctx, cancel := context.WithTimeout(shared, fetchTimeout)
		defer cancel()
		return s.load(fctx, reuse)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*CurrentUser), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) load(ctx context.Context, reuse bool) (*CurrentUser, error) {
	s.mu.RLock()
	if reuse && s.initialized {
		user := s.user
		s.mu.RUnlock()
		return user, nil
	}
	gen := s.generation
	s.mu.RUnlock()

	var (
		user *CurrentUser
		role Role
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.identity.Me(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		role, err = s.identity.FetchRole(gctx)
		return err
	})

	err := g.Wait()
	switch {
	case IsUnauthorized(err):
		user, role = nil, RoleNone
	case err != nil:
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.store(user, role)
	}
	return user, nil
}

// Invalidate forgets the cached identity. A refresh already in flight does
// not repopulate it.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.initialized = false
	s.user = nil
	s.role = RoleNone
}

// set records an identity learned outside Refresh, such as a login response.
func (s *Session) set(user *CurrentUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	role := RoleNone
	if user != nil {
		role = user.Role
	}
	s.store(user, role)
}

func (s *Session) store(user *CurrentUser, role Role) {
	s.initialized = true
	s.user = user
	s.role = role
}
