// Package transition advances sessions through their phases.
package transition

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/quillduel/quillduel/internal/domain/match"
	"github.com/quillduel/quillduel/internal/infra/config"
	"github.com/quillduel/quillduel/internal/store"
)

// Trigger is the reactive phase-transition state machine. It consumes the
// store change feed through a worker pool and re-evaluates the
// all-submitted gate against the freshest record on every mutation.
// Evaluation is idempotent: only the first successful application of a
// transition mutates the session; duplicates fail the CAS guard and are
// dropped.
type Trigger struct {
	store *store.Store
	cfg   *config.Config
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a phase-transition trigger.
func New(st *store.Store, cfg *config.Config) *Trigger {
	ctx, cancel := context.WithCancel(context.Background())
	return &Trigger{
		store:  st,
		cfg:    cfg,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetClock overrides the trigger clock. Used by tests.
func (t *Trigger) SetClock(now func() time.Time) {
	t.now = now
}

// Start launches the dispatcher and worker pool.
func (t *Trigger) Start() error {
	w, err := t.store.Watch()
	if err != nil {
		return err
	}

	jobs := make(chan string, 64)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(jobs)
		t.dispatch(w, jobs)
	}()

	for i := 0; i < t.cfg.Transition.Workers; i++ {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			for id := range jobs {
				if err := t.evaluate(id); err != nil {
					// One broken session never halts the others.
					zlog.Error().Msgf("transition: evaluation failed: session_id=%s: %v", id, err)
				}
			}
		}()
	}

	zlog.Info().Msgf("transition trigger started: workers=%d", t.cfg.Transition.Workers)
	return nil
}

// Close stops the dispatcher and waits for in-flight evaluations.
func (t *Trigger) Close() {
	t.cancel()
	t.wg.Wait()
}

func (t *Trigger) dispatch(w *store.Watcher, jobs chan<- string) {
	defer w.Close()

	for {
		ids, err := w.Next(t.ctx)
		if err != nil {
			return
		}
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-t.ctx.Done():
				return
			}
		}
	}
}

// evaluate checks the all-submitted gate for one session and applies the
// transition in a single atomic update. A failed CAS means another
// invocation won the race; the check simply re-runs on the next mutation.
func (t *Trigger) evaluate(id string) error {
	rec, err := t.store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	if rec.IsTerminal() {
		return nil
	}
	if rec.Coordination.AllPlayersReady {
		return nil
	}
	if !rec.AllSubmitted() {
		return nil
	}

	phase := rec.Config.Phase
	submitted, total := rec.SubmissionCount()

	var patch store.Patch
	if phase >= match.FinalPhase {
		patch = store.CompleteSession{FromPhase: phase, ReadyCount: submitted}
	} else {
		rank := rec.MedianRank()
		duration := t.cfg.PhaseDurationSec(rank, phase+1)
		patch = store.AdvancePhase{FromPhase: phase, DurationSec: duration, At: t.now()}
	}

	err = t.store.Update(id, patch)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrStaleTransition), errors.Is(err, store.ErrSessionTerminated):
		zlog.Debug().Msgf("transition: lost race, dropping: session_id=%s phase=%d: %v", id, phase, err)
		return nil
	default:
		return errors.Wrapf(err, "apply transition from phase %d", phase)
	}

	if phase >= match.FinalPhase {
		zlog.Info().Msgf("session completed: session_id=%s submitted=%d/%d", id, submitted, total)
	} else {
		zlog.Info().Msgf("phase advanced: session_id=%s phase=%d->%d submitted=%d/%d", id, phase, phase+1, submitted, total)
	}
	return nil
}
