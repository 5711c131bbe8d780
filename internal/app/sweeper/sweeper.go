// Package sweeper detects lapsed heartbeats and abandoned sessions.
package sweeper

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/quillduel/quillduel/internal/domain/match"
	"github.com/quillduel/quillduel/internal/infra/config"
	"github.com/quillduel/quillduel/internal/store"
)

// Sweeper periodically scans all non-terminal sessions, marks players
// whose heartbeat lapsed as disconnected, and abandons sessions that had
// no live human participant for too long. Thresholds come from
// configuration, never from inline constants.
type Sweeper struct {
	store *store.Store
	cfg   *config.Config
	now   func() time.Time
}

// New creates a sweeper.
func New(st *store.Store, cfg *config.Config) *Sweeper {
	return &Sweeper{store: st, cfg: cfg, now: time.Now}
}

// SetClock overrides the sweeper clock. Used by tests.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Run sweeps on a fixed period until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval())
	defer ticker.Stop()

	zlog.Info().Msgf("sweeper started: interval=%s", s.cfg.SweepInterval())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one pass over all non-terminal sessions. Per-session work is
// failure-isolated: one session's write error never aborts the batch.
func (s *Sweeper) Sweep() {
	for _, id := range s.store.ActiveSessionIDs() {
		if err := s.sweepSession(id); err != nil {
			zlog.Error().Msgf("sweeper: session sweep failed: session_id=%s: %v", id, err)
		}
	}
}

// sweepSession flips stale players to disconnected and abandons the
// session when no live human remains past the abandonment threshold.
// All corrections for one session batch into a single atomic update.
func (s *Sweeper) sweepSession(id string) error {
	rec, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if rec.IsTerminal() {
		return nil
	}

	now := s.now()
	stale := s.cfg.StaleThreshold()

	var patches []store.Patch
	hasActive := false
	for _, p := range rec.Players {
		if p.IsAI {
			continue
		}
		if p.Status == match.StatusConnected && now.Sub(p.LastHeartbeat) > stale {
			patches = append(patches, store.PlayerStatusChange{UserID: p.UserID, Status: match.StatusDisconnected})
			zlog.Info().Msgf("sweeper: heartbeat lapsed: session_id=%s user_id=%s last=%s", id, p.UserID, p.LastHeartbeat.Format(time.RFC3339))
			continue
		}
		if p.Status == match.StatusConnected {
			hasActive = true
		}
	}

	if !hasActive && now.Sub(rec.CreatedAt) > s.cfg.AbandonThreshold() {
		patches = append(patches, store.Abandon{})
		zlog.Info().Msgf("sweeper: abandoning session: session_id=%s age=%s", id, now.Sub(rec.CreatedAt))
	}

	if len(patches) == 0 {
		return nil
	}
	err = s.store.Update(id, patches...)
	if errors.Is(err, store.ErrSessionTerminated) {
		// Completed or abandoned concurrently; nothing left to correct.
		return nil
	}
	return err
}
