// Package sessionstore holds the single process-wide Session.
//
// The Store is created at the application root and handed to the guard and
// handlers. State changes only through StartAuth, AuthSuccess, AuthFailure and
// Logout; each change that touches the user or token is persisted under the
// same lock that updates memory.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gymdesk/internal/application/auth"
	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/role"
	"gymdesk/internal/domain/session"
)

// SnapshotKey is the durable storage key of the auth snapshot.
const SnapshotKey = "gymdesk.auth"

// persistTimeout bounds a single snapshot write.
const persistTimeout = 5 * time.Second

// ErrAlreadyInitialized is returned by a second Init.
var ErrAlreadyInitialized = errors.New("session store already initialized")

// KV is the durable storage the snapshot lives in.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Resolver is the part of the Auth Resolver the store depends on.
type Resolver interface {
	Current(ctx context.Context) session.Session
	OnAuthStateChange(cb auth.Callback) *auth.Subscription
}

// Recorder counts session transitions.
type Recorder interface {
	RecordAuthEvent(event string)
}

// Option configures a Store.
type Option func(*Store)

// WithRecorder attaches a transition counter.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// Store is the Session Store.
type Store struct {
	kv       KV
	resolver Resolver
	recorder Recorder

	mu        sync.Mutex
	state     session.Session
	gen       uint64 // bumped by every transition
	listeners map[int]func(session.Session)
	nextID    int

	initialized bool
	torn        bool
	sub         *auth.Subscription
	cancel      context.CancelFunc
	done        chan struct{}
	ready       chan struct{}
}

// New creates an uninitialised Store holding the empty Session.
func New(kv KV, resolver Resolver, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		resolver:  resolver,
		state:     session.Empty(),
		listeners: map[int]func(session.Session){},
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init hydrates the store from the durable snapshot, subscribes to provider
// events and starts reconciliation against the provider in the background.
// PRE: called once, before the store is shared
// POST: Current() reflects the snapshot; Ready() closes once reconciliation settles
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.initialized = true
	s.state = s.loadSnapshot(ctx)
	gen := s.gen
	s.mu.Unlock()

	slog.Info("auth_event", "event", "hydrated", "status", string(s.Current().Status))
	s.notify(s.Current())

	s.sub = s.resolver.OnAuthStateChange(s.handleEvent)

	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.reconcile(rctx, gen)
	return nil
}

// loadSnapshot reads the persisted snapshot. A corrupt snapshot is deleted
// and the empty session used.
// PRE: s.mu is held
func (s *Store) loadSnapshot(ctx context.Context) session.Session {
	raw, ok, err := s.kv.Get(ctx, SnapshotKey)
	if err != nil {
		slog.Warn("auth_event", "event", "snapshot_read_failed", "error", err)
		return session.Empty()
	}
	if !ok {
		return session.Empty()
	}
	var snap session.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err == nil {
		err = snap.Validate()
		if err == nil {
			return session.FromSnapshot(snap)
		}
	}
	slog.Debug("auth_event", "event", "snapshot_discarded")
	if err := s.kv.Delete(ctx, SnapshotKey); err != nil {
		slog.Warn("auth_event", "event", "snapshot_delete_failed", "error", err)
	}
	return session.Empty()
}

// reconcile overwrites hydrated state with the provider's view, unless a
// transition already happened since hydration.
func (s *Store) reconcile(ctx context.Context, gen uint64) {
	defer close(s.done)
	defer close(s.ready)

	fresh := s.resolver.Current(ctx)
	if ctx.Err() != nil {
		return
	}

	var applied bool
	switch {
	case fresh.Status == session.StatusSucceeded && fresh.User != nil:
		u := *fresh.User
		if !u.Role.IsValid() {
			u.Role = role.Default
		}
		applied = s.apply("reconcile", func(session.Session) session.Session {
			return session.Session{Token: fresh.Token, User: &u, Status: session.StatusSucceeded}
		}, true, &gen)
	case fresh.Status == session.StatusFailed:
		applied = s.apply("reconcile", func(cur session.Session) session.Session {
			cur.Status = session.StatusFailed
			cur.Error = fresh.Error
			return cur
		}, false, &gen)
	default:
		applied = s.apply("reconcile", func(session.Session) session.Session {
			return session.Empty()
		}, true, &gen)
	}
	if !applied {
		slog.Debug("auth_event", "event", "reconcile_skipped")
	}
}

func (s *Store) handleEvent(e auth.Event, resolved session.Session) {
	switch e {
	case auth.EventSignedOut:
		s.Logout()
	default:
		if resolved.User != nil {
			s.AuthSuccess(*resolved.User, resolved.Token)
		}
	}
}

// Teardown stops reconciliation and releases the provider subscription.
// Safe to call more than once, and before Init.
func (s *Store) Teardown() {
	s.mu.Lock()
	if s.torn || !s.initialized {
		s.torn = true
		s.mu.Unlock()
		return
	}
	s.torn = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	s.sub.Close()
}

// Ready is closed once boot-time reconciliation has finished.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Hydrated reports whether reconciliation has finished.
func (s *Store) Hydrated() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Current returns a copy of the session.
func (s *Store) Current() session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers fn to receive the session after every transition.
func (s *Store) Subscribe(fn func(session.Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// StartAuth marks an auth attempt in progress.
// POST: Status is Loading and Error is cleared; user and token are unchanged
func (s *Store) StartAuth() {
	s.transition("start_auth", func(cur session.Session) session.Session {
		cur.Status = session.StatusLoading
		cur.Error = ""
		return cur
	}, false)
}

// AuthSuccess records a signed-in user and persists the snapshot.
// POST: Status is Succeeded; user role is valid
func (s *Store) AuthSuccess(user session.User, token string) {
	if !user.Role.IsValid() {
		user.Role = role.Default
	}
	s.transition("auth_success", func(session.Session) session.Session {
		u := user
		return session.Session{Token: token, User: &u, Status: session.StatusSucceeded}
	}, true)
}

// AuthFailure records a failed attempt. The existing user is kept.
// POST: Status is Failed and Error is non-empty
func (s *Store) AuthFailure(message string) {
	if message == "" {
		message = apperr.GenericMessage
	}
	s.transition("auth_failure", func(cur session.Session) session.Session {
		cur.Status = session.StatusFailed
		cur.Error = message
		return cur
	}, false)
}

// Logout clears the session and removes the snapshot.
// POST: Current() is the empty Idle session
func (s *Store) Logout() {
	s.transition("logout", func(session.Session) session.Session {
		return session.Empty()
	}, true)
}

// transition applies fn unconditionally.
func (s *Store) transition(event string, fn func(session.Session) session.Session, persist bool) {
	s.apply(event, fn, persist, nil)
}

// apply runs fn on the current state and, when persist is set, writes the
// snapshot while still holding the lock. A failed write is logged; memory is
// not rolled back. With a non-nil expect, nothing happens unless no other
// transition ran since generation *expect.
func (s *Store) apply(event string, fn func(session.Session) session.Session, persist bool, expect *uint64) bool {
	s.mu.Lock()
	if expect != nil && s.gen != *expect {
		s.mu.Unlock()
		return false
	}
	s.state = fn(s.state.Clone())
	s.gen++
	if persist {
		s.persistLocked()
	}
	next := s.state.Clone()
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordAuthEvent(event)
	}
	s.notify(next)
	return true
}

// persistLocked writes or removes the snapshot to match s.state.
// PRE: s.mu is held
func (s *Store) persistLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if s.state.User == nil && !s.state.HasToken() {
		if err := s.kv.Delete(ctx, SnapshotKey); err != nil {
			slog.Error("auth_event", "event", "snapshot_delete_failed", "error", err)
		}
		return
	}
	b, err := json.Marshal(s.state.Snapshot())
	if err != nil {
		slog.Error("auth_event", "event", "snapshot_encode_failed", "error", err)
		return
	}
	if err := s.kv.Set(ctx, SnapshotKey, string(b)); err != nil {
		slog.Error("auth_event", "event", "snapshot_write_failed", "error", err)
	}
}

func (s *Store) notify(cur session.Session) {
	s.mu.Lock()
	fns := make([]func(session.Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(cur.Clone())
	}
}
