package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillduel/quillduel/internal/domain/match"
	"github.com/quillduel/quillduel/internal/infra/config"
	"github.com/quillduel/quillduel/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store, *config.Config) {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	st := store.New()
	t.Cleanup(st.Close)
	return New(st, cfg), st, cfg
}

func createTestSession(t *testing.T, m *Manager) *match.Session {
	t.Helper()
	rec, err := m.CreateSession(CreateOptions{
		Mode:       match.ModeRanked,
		Trait:      "clarity",
		PromptID:   "prompt-001",
		PromptType: "persuasive",
	})
	require.NoError(t, err)
	return rec
}

func draft() map[string]any {
	return map[string]any{"text": "a first draft", "word_count": 3}
}

func TestCreateSession(t *testing.T) {
	m, st, cfg := newTestManager(t)

	rec := createTestSession(t, m)
	assert.Contains(t, rec.SessionID, "session-")
	assert.Equal(t, match.StateActive, rec.State)
	assert.Equal(t, match.FirstPhase, rec.Config.Phase)
	assert.Equal(t, cfg.Session.DefaultDurations.Phase1Sec, rec.Config.PhaseDurationSec)
	assert.Equal(t, "clarity", rec.Config.Trait)

	stored, err := st.Get(rec.SessionID)
	require.NoError(t, err)
	_, ok := stored.PhaseStartTime(match.FirstPhase)
	assert.True(t, ok)
	assert.Empty(t, stored.Players)
}

func TestCreateSession_ExplicitDuration(t *testing.T) {
	m, _, _ := newTestManager(t)

	rec, err := m.CreateSession(CreateOptions{Mode: match.ModePractice, DurationSec: 90})
	require.NoError(t, err)
	assert.Equal(t, 90, rec.Config.PhaseDurationSec)
}

func TestJoinSession_NewPlayer(t *testing.T) {
	m, st, _ := newTestManager(t)
	rec := createTestSession(t, m)

	mc, err := m.JoinSession(rec.SessionID, "u1", Profile{DisplayName: "Alice", Rank: "Gold II"})
	require.NoError(t, err)
	defer func() { _ = m.LeaveSession(mc) }()

	assert.Equal(t, rec.SessionID, mc.SessionID)
	assert.Equal(t, "u1", mc.UserID)
	assert.NotEmpty(t, mc.ConnectionID)

	stored, err := st.Get(rec.SessionID)
	require.NoError(t, err)
	p := stored.Players["u1"]
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, "Gold II", p.Rank)
	assert.Equal(t, match.StatusConnected, p.Status)
	assert.False(t, p.IsAI)
}

func TestJoinSession_UnknownSession(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.JoinSession("missing", "u1", Profile{})
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestJoinSession_ReconnectPreservesSubmissions(t *testing.T) {
	m, st, _ := newTestManager(t)
	rec := createTestSession(t, m)

	mc, err := m.JoinSession(rec.SessionID, "u1", Profile{DisplayName: "Alice"})
	require.NoError(t, err)
	require.NoError(t, m.SubmitPhase(mc, 1, draft(), 80))
	require.NoError(t, m.LeaveSession(mc))

	stored, err := st.Get(rec.SessionID)
	require.NoError(t, err)
	assert.Equal(t, match.StatusDisconnected, stored.Players["u1"].Status)

	mc2, err := m.JoinSession(rec.SessionID, "u1", Profile{DisplayName: "Alice"})
	require.NoError(t, err)
	defer func() { _ = m.LeaveSession(mc2) }()
	assert.NotEqual(t, mc.ConnectionID, mc2.ConnectionID)

	stored, err = st.Get(rec.SessionID)
	require.NoError(t, err)
	p := stored.Players["u1"]
	assert.Equal(t, match.StatusConnected, p.Status)
	assert.Equal(t, mc2.ConnectionID, p.ConnectionID)

	sub, ok := p.Phases[match.PhaseKey(1)]
	require.True(t, ok, "reconnect must preserve prior submissions")
	assert.True(t, sub.Submitted)
}

func TestSubmitPhase(t *testing.T) {
	m, st, _ := newTestManager(t)
	rec := createTestSession(t, m)

	mc, err := m.JoinSession(rec.SessionID, "u1", Profile{})
	require.NoError(t, err)
	defer func() { _ = m.LeaveSession(mc) }()

	require.NoError(t, m.SubmitPhase(mc, 1, draft(), 85))

	stored, err := st.Get(rec.SessionID)
	require.NoError(t, err)
	sub := stored.Players["u1"].Phases[match.PhaseKey(1)]
	assert.True(t, sub.Submitted)
	assert.False(t, sub.SubmittedAt.IsZero())
	assert.Equal(t, 85.0, sub.Score)
	assert.Equal(t, "a first draft", sub.Content["text"])
}

func TestSubmitPhase_ClampsScore(t *testing.T) {
	m, st, _ := newTestManager(t)
	rec := createTestSession(t, m)

	mc, err := m.JoinSession(rec.SessionID, "u1", Profile{})
	require.NoError(t, err)
	defer func() { _ = m.LeaveSession(mc) }()

	require.NoError(t, m.SubmitPhase(mc, 1, draft(), 150))

	stored, err := st.Get(rec.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.Players["u1"].Phases[match.PhaseKey(1)].Score)
}

func TestSubmitPhase_PhaseMismatch(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec := createTestSession(t, m)

	mc, err := m.JoinSession(rec.SessionID, "u1", Profile{})
	require.NoError(t, err)
	defer func() { _ = m.LeaveSession(mc) }()

	err = m.SubmitPhase(mc, 2, map[string]any{"target_user_id": "u2", "comments": "nice"}, 70)
	assert.ErrorIs(t, err, ErrPhaseMismatch)

	counts, err := m.SubmissionCount(mc)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Submitted)
}

func TestSubmitPhase_Duplicate(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec := createTestSession(t, m)

	mc, err := m.JoinSession(rec.SessionID, "u1", Profile{})
	require.NoError(t, err)
	defer func() { _ = m.LeaveSession(mc) }()

	require.NoError(t, m.SubmitPhase(mc, 1, draft(), 85))
	err = m.SubmitPhase(mc, 1, draft(), 85)
	assert.ErrorIs(t, err, store.ErrAlreadySubmitted)
}

func TestSubmitPhase_NoContext(t *testing.T) {
	m, _, _ := newTestManager(t)

	assert.ErrorIs(t, m.SubmitPhase(nil, 1, draft(), 85), ErrSessionNotInitialized)
	assert.ErrorIs(t, m.SubmitPhase(&MatchContext{}, 1, draft(), 85), ErrSessionNotInitialized)
}

func TestSubmitPhase_InvalidContent(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec := createTestSession(t, m)

	mc, err := m.JoinSession(rec.SessionID, "u1", Profile{})
	require.NoError(t, err)
	defer func() { _ = m.LeaveSession(mc) }()

	err = m.SubmitPhase(mc, 1, map[string]any{"word_count": 3}, 85)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestSubmissionCount(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec := createTestSession(t, m)

	mc, err := m.JoinSession(rec.SessionID, "u1", Profile{})
	require.NoError(t, err)
	defer func() { _ = m.LeaveSession(mc) }()
	_, err = m.JoinSession(rec.SessionID, "u2", Profile{IsAI: true})
	require.NoError(t, err)

	counts, err := m.SubmissionCount(mc)
	require.NoError(t, err)
	assert.Equal(t, Counts{Submitted: 0, Total: 1}, counts)

	require.NoError(t, m.SubmitPhase(mc, 1, draft(), 85))

	counts, err = m.SubmissionCount(mc)
	require.NoError(t, err)
	assert.Equal(t, Counts{Submitted: 1, Total: 1}, counts)
}

func TestPhaseTimeRemaining(t *testing.T) {
	m, _, _ := newTestManager(t)

	base := time.Now()
	m.SetClock(func() time.Time { return base })

	rec, err := m.CreateSession(CreateOptions{Mode: match.ModeQuickMatch, DurationSec: 120})
	require.NoError(t, err)
	mc, err := m.JoinSession(rec.SessionID, "u1", Profile{IsAI: true})
	require.NoError(t, err)

	m.SetClock(func() time.Time { return base.Add(30 * time.Second) })
	remaining, err := m.PhaseTimeRemaining(mc)
	require.NoError(t, err)
	assert.Equal(t, 90, remaining)

	m.SetClock(func() time.Time { return base.Add(10 * time.Minute) })
	remaining, err = m.PhaseTimeRemaining(mc)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestHeartbeatLoop(t *testing.T) {
	if testing.Short() {
		t.Skip("heartbeat ticks take seconds")
	}

	m, st, cfg := newTestManager(t)
	cfg.Session.HeartbeatIntervalSec = 1

	rec := createTestSession(t, m)
	mc, err := m.JoinSession(rec.SessionID, "u1", Profile{})
	require.NoError(t, err)

	stored, err := st.Get(rec.SessionID)
	require.NoError(t, err)
	joined := stored.Players["u1"].LastHeartbeat

	time.Sleep(1500 * time.Millisecond)

	stored, err = st.Get(rec.SessionID)
	require.NoError(t, err)
	ticked := stored.Players["u1"].LastHeartbeat
	assert.True(t, ticked.After(joined), "heartbeat should refresh liveness")

	// After leaving, no tick may arrive and status stays disconnected.
	require.NoError(t, m.LeaveSession(mc))
	stored, err = st.Get(rec.SessionID)
	require.NoError(t, err)
	left := stored.Players["u1"].LastHeartbeat

	time.Sleep(1200 * time.Millisecond)

	stored, err = st.Get(rec.SessionID)
	require.NoError(t, err)
	assert.Equal(t, left, stored.Players["u1"].LastHeartbeat)
	assert.Equal(t, match.StatusDisconnected, stored.Players["u1"].Status)
}

func TestLeaveSession_Idempotent(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec := createTestSession(t, m)

	mc, err := m.JoinSession(rec.SessionID, "u1", Profile{})
	require.NoError(t, err)

	require.NoError(t, m.LeaveSession(mc))
	require.NoError(t, m.LeaveSession(mc))
}
