package store

import (
	"context"
	"sync"
)

// Watcher is the global change feed: it reports which sessions mutated
// since the last call to Next. Changes to the same session coalesce into
// a single report, so consumers must re-read the freshest record rather
// than trust any cached view.
type Watcher struct {
	store *Store
	id    uint64

	mu     sync.Mutex
	dirty  map[string]struct{}
	signal chan struct{}
	closed bool
}

// Watch registers a global change watcher.
func (s *Store) Watch() (*Watcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	s.nextID++
	w := &Watcher{
		store:  s,
		id:     s.nextID,
		dirty:  make(map[string]struct{}),
		signal: make(chan struct{}, 1),
	}
	s.watchers[w.id] = w
	return w, nil
}

// Next blocks until at least one session mutated, then returns the ids
// of every session that changed since the previous call.
func (w *Watcher) Next(ctx context.Context) ([]string, error) {
	for {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return nil, ErrStoreClosed
		}
		if len(w.dirty) > 0 {
			ids := make([]string, 0, len(w.dirty))
			for id := range w.dirty {
				ids = append(ids, id)
			}
			w.dirty = make(map[string]struct{})
			w.mu.Unlock()
			return ids, nil
		}
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case _, ok := <-w.signal:
			if !ok {
				return nil, ErrStoreClosed
			}
		}
	}
}

// Close removes the watcher from the store.
func (w *Watcher) Close() {
	w.store.mu.Lock()
	delete(w.store.watchers, w.id)
	w.store.mu.Unlock()
	w.close()
}

func (w *Watcher) markDirty(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.dirty[id] = struct{}{}
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *Watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	close(w.signal)
}
