// Package manager provides the per-participant session façade.
package manager

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/quillduel/quillduel/internal/app/scoring"
	"github.com/quillduel/quillduel/internal/domain/match"
	"github.com/quillduel/quillduel/internal/infra/config"
	"github.com/quillduel/quillduel/internal/store"
)

// Manager runs in each participant's own process and mediates all of that
// participant's session operations. Callers hold the MatchContext returned
// by JoinSession explicitly; there is no implicit current-session state.
type Manager struct {
	store *store.Store
	cfg   *config.Config
	now   func() time.Time
}

// New creates a session manager backed by the given store.
func New(st *store.Store, cfg *config.Config) *Manager {
	return &Manager{store: st, cfg: cfg, now: time.Now}
}

// SetClock overrides the manager clock. Used by tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// MatchContext identifies one participant's attachment to one session.
// It is owned by the caller and passed to every subsequent operation.
type MatchContext struct {
	SessionID    string
	UserID       string
	ConnectionID string

	hbStop   chan struct{}
	hbDone   chan struct{}
	stopOnce sync.Once
}

// CreateOptions configure a new session.
type CreateOptions struct {
	Mode        match.Mode
	Trait       string
	PromptID    string
	PromptType  string
	DurationSec int // phase 1 duration; 0 uses the configured default
}

// Profile carries the participant-facing fields of a player record.
type Profile struct {
	DisplayName string
	Avatar      string
	Rank        string
	IsAI        bool
}

// Counts reports submission progress over non-AI players.
type Counts struct {
	Submitted int
	Total     int
}

// CreateSession builds and persists the initial session record: phase 1,
// state active, phase1 start time now. Store failures surface as
// ErrPersistence; the caller decides whether to retry or abort.
func (m *Manager) CreateSession(opts CreateOptions) (*match.Session, error) {
	now := m.now()
	duration := opts.DurationSec
	if duration == 0 {
		duration = m.cfg.DefaultDurationSec(match.FirstPhase)
	}

	id := fmt.Sprintf("session-%s", uuid.NewString())
	rec := &match.Session{
		SessionID: id,
		Mode:      opts.Mode,
		State:     match.StateActive,
		Config: match.Config{
			Phase:            match.FirstPhase,
			PhaseDurationSec: duration,
			Trait:            opts.Trait,
			PromptID:         opts.PromptID,
			PromptType:       opts.PromptType,
		},
		Players: make(map[string]match.PlayerState),
		Timing: map[string]time.Time{
			match.StartTimeKey(match.FirstPhase): now,
		},
		CreatedAt: now,
	}

	if err := m.store.Create(id, rec); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "create session"), ErrPersistence)
	}

	zlog.Info().Msgf("session created: session_id=%s mode=%s duration=%ds", id, opts.Mode, duration)
	return rec, nil
}

// JoinSession attaches a participant to a session. An already-known
// userId reconnects: only status, lastHeartbeat and connectionId change
// and prior submissions are preserved. Human participants get a
// heartbeat loop as a side effect.
func (m *Manager) JoinSession(sessionID, userID string, profile Profile) (*MatchContext, error) {
	rec, err := m.store.Get(sessionID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	connID := uuid.NewString()

	var patch store.Patch
	if _, ok := rec.Players[userID]; ok {
		patch = store.PlayerConnection{UserID: userID, ConnectionID: connID, At: now}
	} else {
		patch = store.PlayerUpsert{Player: match.PlayerState{
			UserID:        userID,
			DisplayName:   profile.DisplayName,
			Avatar:        profile.Avatar,
			Rank:          profile.Rank,
			IsAI:          profile.IsAI,
			Status:        match.StatusConnected,
			LastHeartbeat: now,
			ConnectionID:  connID,
		}}
	}
	if err := m.store.Update(sessionID, patch); err != nil {
		return nil, errors.Wrapf(err, "join session %s", sessionID)
	}

	mc := &MatchContext{
		SessionID:    sessionID,
		UserID:       userID,
		ConnectionID: connID,
	}
	if !profile.IsAI {
		mc.hbStop = make(chan struct{})
		mc.hbDone = make(chan struct{})
		go m.heartbeatLoop(mc)
	}

	zlog.Info().Msgf("player joined: session_id=%s user_id=%s ai=%t", sessionID, userID, profile.IsAI)
	return mc, nil
}

// heartbeatLoop refreshes the player's lastHeartbeat on a fixed period
// until the session turns terminal or the participant leaves. Write
// failures are non-fatal; the next tick retries.
func (m *Manager) heartbeatLoop(mc *MatchContext) {
	defer close(mc.hbDone)

	ticker := time.NewTicker(m.cfg.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-mc.hbStop:
			return
		case <-ticker.C:
			err := m.store.Update(mc.SessionID, store.Heartbeat{UserID: mc.UserID, At: m.now()})
			switch {
			case err == nil:
			case errors.Is(err, store.ErrSessionTerminated),
				errors.Is(err, store.ErrSessionNotFound),
				errors.Is(err, store.ErrStoreClosed):
				zlog.Debug().Msgf("heartbeat stopped: session_id=%s user_id=%s: %v", mc.SessionID, mc.UserID, err)
				return
			default:
				zlog.Warn().Msgf("heartbeat write failed: session_id=%s user_id=%s: %v", mc.SessionID, mc.UserID, err)
			}
		}
	}
}

// SubmitPhase writes the participant's submission for the given phase.
// The single resulting store mutation is what the transition trigger
// reacts to. Stale submissions fail with ErrPhaseMismatch and write
// nothing.
func (m *Manager) SubmitPhase(mc *MatchContext, phase int, content map[string]any, score float64) error {
	if mc == nil || mc.SessionID == "" {
		return ErrSessionNotInitialized
	}
	if err := ValidateContent(phase, content); err != nil {
		return err
	}

	rec, err := m.store.Get(mc.SessionID)
	if err != nil {
		return err
	}
	if rec.Config.Phase != phase {
		return errors.Wrapf(ErrPhaseMismatch, "submitted phase %d, current phase %d", phase, rec.Config.Phase)
	}

	sub := match.PhaseSubmission{
		SubmittedAt: m.now(),
		Content:     content,
		Score:       scoring.ClampScore(score),
	}
	if err := m.store.Update(mc.SessionID, store.SubmitPhase{UserID: mc.UserID, Phase: phase, Submission: sub}); err != nil {
		return errors.Wrapf(err, "submit phase %d", phase)
	}

	zlog.Info().Msgf("phase submitted: session_id=%s user_id=%s phase=%d", mc.SessionID, mc.UserID, phase)
	return nil
}

// PhaseTimeRemaining returns the seconds left in the current phase,
// clamped to zero.
func (m *Manager) PhaseTimeRemaining(mc *MatchContext) (int, error) {
	if mc == nil || mc.SessionID == "" {
		return 0, ErrSessionNotInitialized
	}
	rec, err := m.store.Get(mc.SessionID)
	if err != nil {
		return 0, err
	}
	return rec.PhaseTimeRemainingSec(m.now()), nil
}

// SubmissionCount reports submission progress for the current phase,
// counting non-AI players only.
func (m *Manager) SubmissionCount(mc *MatchContext) (Counts, error) {
	if mc == nil || mc.SessionID == "" {
		return Counts{}, ErrSessionNotInitialized
	}
	rec, err := m.store.Get(mc.SessionID)
	if err != nil {
		return Counts{}, err
	}
	submitted, total := rec.SubmissionCount()
	return Counts{Submitted: submitted, Total: total}, nil
}

// LeaveSession stops the heartbeat loop synchronously, then marks the
// participant disconnected. The stop happens first so a stale tick can
// never flip the player back to connected after an explicit leave.
func (m *Manager) LeaveSession(mc *MatchContext) error {
	if mc == nil || mc.SessionID == "" {
		return ErrSessionNotInitialized
	}
	mc.stopHeartbeat()

	err := m.store.Update(mc.SessionID, store.PlayerStatusChange{UserID: mc.UserID, Status: match.StatusDisconnected})
	if err != nil && !errors.Is(err, store.ErrSessionTerminated) {
		return errors.Wrapf(err, "leave session %s", mc.SessionID)
	}

	zlog.Info().Msgf("player left: session_id=%s user_id=%s", mc.SessionID, mc.UserID)
	return nil
}

// stopHeartbeat stops the heartbeat loop and waits for it to exit.
func (mc *MatchContext) stopHeartbeat() {
	if mc.hbStop == nil {
		return
	}
	mc.stopOnce.Do(func() { close(mc.hbStop) })
	<-mc.hbDone
}
