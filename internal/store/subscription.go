package store

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/quillduel/quillduel/internal/domain/match"
)

// Subscription delivers the full session record after every successful
// mutation. Delivery is at-least-once with coalescing: rapid successive
// mutations may collapse into a single delivery of the latest state, and
// an older version is never delivered after a newer one.
type Subscription struct {
	store     *Store
	sessionID string
	subID     uint64

	mu     sync.Mutex
	ch     chan *match.Session
	closed bool
}

// Subscribe registers a change subscription for a session.
func (s *Store) Subscribe(id string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if _, ok := s.sessions[id]; !ok {
		return nil, errors.Wrapf(ErrSessionNotFound, "session %s", id)
	}

	s.nextID++
	sub := &Subscription{
		store:     s,
		sessionID: id,
		subID:     s.nextID,
		ch:        make(chan *match.Session, 1),
	}
	if s.subs[id] == nil {
		s.subs[id] = make(map[uint64]*Subscription)
	}
	s.subs[id][sub.subID] = sub
	return sub, nil
}

// C returns the delivery channel. Closed when the subscription ends.
func (sub *Subscription) C() <-chan *match.Session {
	return sub.ch
}

// Close removes the subscription from the store.
func (sub *Subscription) Close() {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()

	if bySub, ok := sub.store.subs[sub.sessionID]; ok {
		delete(bySub, sub.subID)
		if len(bySub) == 0 {
			delete(sub.store.subs, sub.sessionID)
		}
	}
	sub.closeLocked()
}

// deliver replaces any pending older snapshot with the newer one. The
// capacity-one channel plus replace-on-full keeps deliveries monotonic
// per subscriber without ever blocking the writer.
func (sub *Subscription) deliver(snap *match.Session) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return
	}
	select {
	case sub.ch <- snap:
	default:
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
}

func (sub *Subscription) closeLocked() {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
}
