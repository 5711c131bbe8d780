package aifill

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/quillduel/quillduel/internal/domain/match"
	"github.com/quillduel/quillduel/internal/store"
)

// Watcher follows the store change feed and launches one EnsurePhase per
// session phase for ranked sessions with AI participants.
type Watcher struct {
	filler *Filler
	store  *store.Store

	mu   sync.Mutex
	seen map[string]int // session id -> highest phase already handled

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates an AI-fill watcher.
func NewWatcher(filler *Filler, st *store.Store) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		filler: filler,
		store:  st,
		seen:   make(map[string]int),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the watch loop.
func (w *Watcher) Start() error {
	feed, err := w.store.Watch()
	if err != nil {
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer feed.Close()
		w.run(feed)
	}()

	zlog.Info().Msg("aifill watcher started")
	return nil
}

// Close stops the watcher and waits for in-flight fills.
func (w *Watcher) Close() {
	w.cancel()
	w.wg.Wait()
}

func (w *Watcher) run(feed *store.Watcher) {
	for {
		ids, err := feed.Next(w.ctx)
		if err != nil {
			return
		}
		for _, id := range ids {
			w.inspect(id)
		}
	}
}

// inspect launches a fill for the session's current phase if one has not
// been launched yet.
func (w *Watcher) inspect(id string) {
	rec, err := w.store.Get(id)
	if err != nil {
		if !errors.Is(err, store.ErrSessionNotFound) {
			zlog.Error().Msgf("aifill: inspect failed: session_id=%s: %v", id, err)
		}
		return
	}
	if rec.IsTerminal() {
		w.mu.Lock()
		delete(w.seen, id)
		w.mu.Unlock()
		return
	}
	if rec.Mode != match.ModeRanked || len(rec.AIPlayers()) == 0 {
		return
	}

	phase := rec.Config.Phase
	w.mu.Lock()
	if w.seen[id] >= phase {
		w.mu.Unlock()
		return
	}
	w.seen[id] = phase
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.filler.EnsurePhase(w.ctx, id, phase); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error().Msgf("aifill: phase fill failed: session_id=%s phase=%d: %v", id, phase, err)
		}
	}()
}
