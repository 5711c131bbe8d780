// Package store provides the in-memory session store with field-scoped
// atomic updates and change subscriptions.
package store

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/quillduel/quillduel/internal/domain/match"
)

// Store holds session records with thread-safe access. Updates apply
// whole patch sets atomically; subscribers receive the full record after
// every successful mutation, coalesced to the latest state.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*match.Session
	subs     map[string]map[uint64]*Subscription
	watchers map[uint64]*Watcher
	nextID   uint64
	closed   bool

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*match.Session),
		subs:     make(map[string]map[uint64]*Subscription),
		watchers: make(map[uint64]*Watcher),
		now:      time.Now,
	}
}

// SetClock overrides the store clock. Used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create inserts a new session record. Fails if the id is taken.
func (s *Store) Create(id string, rec *match.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.sessions[id]; ok {
		return errors.Wrapf(ErrSessionExists, "session %s", id)
	}

	c := rec.Clone()
	c.SessionID = id
	c.Version = 1
	c.UpdatedAt = s.now()
	s.sessions[id] = c
	s.notifyLocked(id)
	return nil
}

// Get returns a deep copy of the session record.
func (s *Store) Get(id string) (*match.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, errors.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	return rec.Clone(), nil
}

// Update applies the given patches as one atomic mutation. Either every
// patch applies or the record is left untouched. Mutations against a
// terminal session fail with ErrSessionTerminated; only the state itself
// may still be read.
func (s *Store) Update(id string, patches ...Patch) error {
	if len(patches) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	rec, ok := s.sessions[id]
	if !ok {
		return errors.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	if rec.IsTerminal() {
		return errors.Wrapf(ErrSessionTerminated, "session %s state %s", id, rec.State)
	}

	// Apply against a clone so a mid-set failure never leaves a
	// partially patched record behind.
	next := rec.Clone()
	for _, p := range patches {
		if err := p.apply(next); err != nil {
			return errors.Wrapf(err, "patch %s on session %s", p.Name(), id)
		}
	}

	next.Version = rec.Version + 1
	next.UpdatedAt = s.now()
	s.sessions[id] = next
	s.notifyLocked(id)
	return nil
}

// ActiveSessionIDs returns the ids of all non-terminal sessions.
func (s *Store) ActiveSessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id, rec := range s.sessions {
		if !rec.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Count returns the number of stored sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close tears down all subscriptions and watchers. Further writes fail.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, bySub := range s.subs {
		for _, sub := range bySub {
			sub.closeLocked()
		}
	}
	s.subs = make(map[string]map[uint64]*Subscription)
	for _, w := range s.watchers {
		w.close()
	}
	s.watchers = make(map[uint64]*Watcher)
}

// notifyLocked pushes the latest snapshot to session subscribers and
// flags the session dirty for all watchers. Must hold s.mu.
func (s *Store) notifyLocked(id string) {
	rec := s.sessions[id]
	if bySub, ok := s.subs[id]; ok {
		snap := rec.Clone()
		for _, sub := range bySub {
			sub.deliver(snap)
		}
	}
	for _, w := range s.watchers {
		w.markDirty(id)
	}
	zlog.Debug().Msgf("store: session mutated: session_id=%s version=%d", id, rec.Version)
}
