package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func player(id string, isAI bool, submittedPhases ...int) PlayerState {
	p := PlayerState{
		UserID: id,
		IsAI:   isAI,
		Status: StatusConnected,
		Phases: make(map[string]PhaseSubmission),
	}
	for _, ph := range submittedPhases {
		p.Phases[PhaseKey(ph)] = PhaseSubmission{Submitted: true}
	}
	return p
}

func sessionWith(phase int, players ...PlayerState) *Session {
	s := &Session{
		SessionID: "session-test",
		Mode:      ModeRanked,
		State:     StateActive,
		Config:    Config{Phase: phase, PhaseDurationSec: 120},
		Players:   make(map[string]PlayerState),
		Timing:    make(map[string]time.Time),
	}
	for _, p := range players {
		s.Players[p.UserID] = p
	}
	return s
}

func TestPhaseKeys(t *testing.T) {
	assert.Equal(t, "phase1", PhaseKey(1))
	assert.Equal(t, "phase3", PhaseKey(3))
	assert.Equal(t, "phase2StartTime", StartTimeKey(2))
}

func TestStateTerminal(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
	}{
		{StateForming, false},
		{StateActive, false},
		{StateWaiting, false},
		{StateTransitioning, false},
		{StateCompleted, true},
		{StateAbandoned, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.state.Terminal())
		})
	}
}

func TestSubmissionCount_ExcludesAI(t *testing.T) {
	// 2 real players (1 submitted) + 2 AI players (both submitted).
	s := sessionWith(1,
		player("u1", false, 1),
		player("u2", false),
		player("ai1", true, 1),
		player("ai2", true, 1),
	)

	submitted, total := s.SubmissionCount()
	assert.Equal(t, 1, submitted)
	assert.Equal(t, 2, total)
}

func TestAllSubmitted(t *testing.T) {
	tests := []struct {
		name    string
		session *Session
		want    bool
	}{
		{
			name:    "single player submitted",
			session: sessionWith(1, player("u1", false, 1)),
			want:    true,
		},
		{
			name:    "single player pending",
			session: sessionWith(1, player("u1", false)),
			want:    false,
		},
		{
			name:    "two players one pending",
			session: sessionWith(1, player("u1", false, 1), player("u2", false)),
			want:    false,
		},
		{
			name: "five players all submitted",
			session: sessionWith(2,
				player("u1", false, 1, 2), player("u2", false, 1, 2), player("u3", false, 1, 2),
				player("u4", false, 1, 2), player("u5", false, 1, 2)),
			want: true,
		},
		{
			name:    "one human plus AI, human submitted",
			session: sessionWith(1, player("u1", false, 1), player("ai1", true), player("ai2", true)),
			want:    true,
		},
		{
			name:    "mixed, AI submitted but human pending",
			session: sessionWith(1, player("u1", false), player("ai1", true, 1)),
			want:    false,
		},
		{
			name:    "all AI never gates",
			session: sessionWith(1, player("ai1", true, 1), player("ai2", true, 1)),
			want:    false,
		},
		{
			name:    "prior phase submission does not count",
			session: sessionWith(2, player("u1", false, 1)),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.session.AllSubmitted())
		})
	}
}

func TestPhaseTimeRemainingSec(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		duration int
		started  time.Time
		wantMin  int
		wantMax  int
	}{
		{"mid phase", 120, now.Add(-30 * time.Second), 85, 95},
		{"expired", 120, now.Add(-150 * time.Second), 0, 0},
		{"exactly elapsed", 120, now.Add(-120 * time.Second), 0, 0},
		{"just started", 120, now, 115, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sessionWith(1, player("u1", false))
			s.Config.PhaseDurationSec = tt.duration
			s.Timing[StartTimeKey(1)] = tt.started

			got := s.PhaseTimeRemainingSec(now)
			assert.GreaterOrEqual(t, got, tt.wantMin)
			assert.LessOrEqual(t, got, tt.wantMax)
		})
	}
}

func TestPhaseTimeRemainingSec_NoStartTime(t *testing.T) {
	s := sessionWith(2, player("u1", false))
	assert.Equal(t, 0, s.PhaseTimeRemainingSec(time.Now()))
}

func TestHasConnectedRealPlayer(t *testing.T) {
	s := sessionWith(1, player("ai1", true))
	assert.False(t, s.HasConnectedRealPlayer())

	p := player("u1", false)
	p.Status = StatusDisconnected
	s.Players[p.UserID] = p
	assert.False(t, s.HasConnectedRealPlayer())

	p.Status = StatusConnected
	s.Players[p.UserID] = p
	assert.True(t, s.HasConnectedRealPlayer())
}

func TestClone_IsDeep(t *testing.T) {
	s := sessionWith(1, player("u1", false, 1))
	s.Timing[StartTimeKey(1)] = time.Now()

	c := s.Clone()
	c.Players["u2"] = player("u2", false)
	c.Timing[StartTimeKey(2)] = time.Now()

	p := c.Players["u1"]
	p.Phases[PhaseKey(2)] = PhaseSubmission{Submitted: true}
	c.Players["u1"] = p

	assert.Len(t, s.Players, 1)
	assert.Len(t, s.Timing, 1)
	assert.Len(t, s.Players["u1"].Phases, 1)
}
