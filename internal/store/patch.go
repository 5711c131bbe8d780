package store

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/quillduel/quillduel/internal/domain/match"
)

// Patch is a field-path-scoped partial update. Each patch mutates one
// disjoint sub-tree of the session record, so concurrent writers to
// different sub-trees never clobber each other. All patches of a single
// Update call apply atomically or not at all.
type Patch interface {
	// Name identifies the patch kind for logging.
	Name() string

	apply(s *match.Session) error
}

// PlayerUpsert inserts a fresh player record. It fails if the player
// already exists; reconnects use PlayerConnection instead.
type PlayerUpsert struct {
	Player match.PlayerState
}

func (p PlayerUpsert) Name() string { return "player_upsert" }

func (p PlayerUpsert) apply(s *match.Session) error {
	if _, ok := s.Players[p.Player.UserID]; ok {
		return errors.Newf("player %s already joined", p.Player.UserID)
	}
	pl := p.Player
	if pl.Phases == nil {
		pl.Phases = make(map[string]match.PhaseSubmission)
	}
	s.Players[pl.UserID] = pl
	return nil
}

// PlayerConnection marks an existing player as reconnected: only status,
// lastHeartbeat and connectionId change; prior submissions are preserved.
type PlayerConnection struct {
	UserID       string
	ConnectionID string
	At           time.Time
}

func (p PlayerConnection) Name() string { return "player_connection" }

func (p PlayerConnection) apply(s *match.Session) error {
	pl, ok := s.Players[p.UserID]
	if !ok {
		return errors.Wrapf(ErrUnknownPlayer, "user %s", p.UserID)
	}
	pl.Status = match.StatusConnected
	pl.LastHeartbeat = p.At
	pl.ConnectionID = p.ConnectionID
	s.Players[p.UserID] = pl
	return nil
}

// Heartbeat refreshes a player's lastHeartbeat. Written only by that
// participant's own client.
type Heartbeat struct {
	UserID string
	At     time.Time
}

func (p Heartbeat) Name() string { return "heartbeat" }

func (p Heartbeat) apply(s *match.Session) error {
	pl, ok := s.Players[p.UserID]
	if !ok {
		return errors.Wrapf(ErrUnknownPlayer, "user %s", p.UserID)
	}
	pl.LastHeartbeat = p.At
	s.Players[p.UserID] = pl
	return nil
}

// PlayerStatusChange flips a player's connection status. Used by leave
// (own client) and by the stale-connection sweeper. It never touches
// the player's submissions.
type PlayerStatusChange struct {
	UserID string
	Status match.PlayerStatus
}

func (p PlayerStatusChange) Name() string { return "player_status" }

func (p PlayerStatusChange) apply(s *match.Session) error {
	pl, ok := s.Players[p.UserID]
	if !ok {
		return errors.Wrapf(ErrUnknownPlayer, "user %s", p.UserID)
	}
	pl.Status = p.Status
	s.Players[p.UserID] = pl
	return nil
}

// SubmitPhase writes one participant's submission for one phase.
// Submissions are immutable: a second write for the same phase fails.
type SubmitPhase struct {
	UserID     string
	Phase      int
	Submission match.PhaseSubmission
}

func (p SubmitPhase) Name() string { return "submit_phase" }

func (p SubmitPhase) apply(s *match.Session) error {
	pl, ok := s.Players[p.UserID]
	if !ok {
		return errors.Wrapf(ErrUnknownPlayer, "user %s", p.UserID)
	}
	key := match.PhaseKey(p.Phase)
	if _, ok := pl.Phases[key]; ok {
		return errors.Wrapf(ErrAlreadySubmitted, "user %s %s", p.UserID, key)
	}
	sub := p.Submission
	sub.Submitted = true
	pl.Phases[key] = sub
	s.Players[p.UserID] = pl
	return nil
}

// AdvancePhase moves the session from FromPhase to the next phase in one
// atomic step: phase, duration, start time and coordination reset together.
// It is CAS-guarded on FromPhase so a duplicate trigger firing is a no-op.
type AdvancePhase struct {
	FromPhase   int
	DurationSec int
	At          time.Time
}

func (p AdvancePhase) Name() string { return "advance_phase" }

func (p AdvancePhase) apply(s *match.Session) error {
	if s.Config.Phase != p.FromPhase {
		return errors.Wrapf(ErrStaleTransition, "phase %d, expected %d", s.Config.Phase, p.FromPhase)
	}
	if p.FromPhase >= match.FinalPhase {
		return errors.Newf("cannot advance past phase %d", match.FinalPhase)
	}
	next := p.FromPhase + 1
	s.Config.Phase = next
	s.Config.PhaseDurationSec = p.DurationSec
	s.Timing[match.StartTimeKey(next)] = p.At
	s.Coordination = match.Coordination{}
	s.State = match.StateActive
	return nil
}

// CompleteSession closes the final phase: state becomes completed and the
// coordination record keeps the passed gate. CAS-guarded like AdvancePhase.
type CompleteSession struct {
	FromPhase  int
	ReadyCount int
}

func (p CompleteSession) Name() string { return "complete_session" }

func (p CompleteSession) apply(s *match.Session) error {
	if s.Config.Phase != p.FromPhase {
		return errors.Wrapf(ErrStaleTransition, "phase %d, expected %d", s.Config.Phase, p.FromPhase)
	}
	if p.FromPhase != match.FinalPhase {
		return errors.Newf("completion requires phase %d", match.FinalPhase)
	}
	s.Coordination = match.Coordination{ReadyCount: p.ReadyCount, AllPlayersReady: true}
	s.State = match.StateCompleted
	return nil
}

// Abandon marks the session abandoned. Reachable from any non-terminal
// state, only via the sweeper.
type Abandon struct{}

func (p Abandon) Name() string { return "abandon" }

func (p Abandon) apply(s *match.Session) error {
	s.State = match.StateAbandoned
	return nil
}
