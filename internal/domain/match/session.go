package match

import "time"

// Session is the root aggregate shared by all participants of a match.
// Field names and nesting are part of the wire contract consumed by views.
type Session struct {
	SessionID    string                 `json:"sessionId"`
	Mode         Mode                   `json:"mode"`
	State        State                  `json:"state"`
	Config       Config                 `json:"config"`
	Players      map[string]PlayerState `json:"players"`
	Coordination Coordination           `json:"coordination"`
	Timing       map[string]time.Time   `json:"timing"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`

	// Version increases on every mutation. Subscribers use it to detect
	// stale deliveries; it is not part of the wire contract.
	Version uint64 `json:"-"`
}

// Config holds the per-phase configuration of a session.
type Config struct {
	Phase            int    `json:"phase"`
	PhaseDurationSec int    `json:"phaseDuration"`
	Trait            string `json:"trait"`
	PromptID         string `json:"promptId"`
	PromptType       string `json:"promptType"`
}

// Coordination tracks the all-submitted gate for the current phase.
// It is reset on every phase transition.
type Coordination struct {
	ReadyCount      int  `json:"readyCount"`
	AllPlayersReady bool `json:"allPlayersReady"`
}

// PlayerState is the per-participant record inside a session.
type PlayerState struct {
	UserID        string                     `json:"userId"`
	DisplayName   string                     `json:"displayName"`
	Avatar        string                     `json:"avatar"`
	Rank          string                     `json:"rank"`
	IsAI          bool                       `json:"isAI"`
	Status        PlayerStatus               `json:"status"`
	LastHeartbeat time.Time                  `json:"lastHeartbeat"`
	ConnectionID  string                     `json:"connectionId"`
	Phases        map[string]PhaseSubmission `json:"phases"`
}

// PhaseSubmission is one participant's submission for one phase.
// Immutable once written; a participant submits each phase at most once.
type PhaseSubmission struct {
	Submitted   bool           `json:"submitted"`
	SubmittedAt time.Time      `json:"submittedAt"`
	Content     map[string]any `json:"content"`
	Score       float64        `json:"score"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Players = make(map[string]PlayerState, len(s.Players))
	for id, p := range s.Players {
		c.Players[id] = p.clone()
	}
	c.Timing = make(map[string]time.Time, len(s.Timing))
	for k, v := range s.Timing {
		c.Timing[k] = v
	}
	return &c
}

func (p PlayerState) clone() PlayerState {
	c := p
	c.Phases = make(map[string]PhaseSubmission, len(p.Phases))
	for k, sub := range p.Phases {
		cs := sub
		cs.Content = make(map[string]any, len(sub.Content))
		for ck, cv := range sub.Content {
			cs.Content[ck] = cv
		}
		c.Phases[k] = cs
	}
	return c
}

// IsTerminal returns true if the session reached a terminal state.
func (s *Session) IsTerminal() bool {
	return s.State.Terminal()
}

// CurrentPhaseKey returns the submission map key for the current phase.
func (s *Session) CurrentPhaseKey() string {
	return PhaseKey(s.Config.Phase)
}

// RealPlayers returns all non-AI players.
// AI participants are excluded from liveness tracking and phase gating.
func (s *Session) RealPlayers() []PlayerState {
	out := make([]PlayerState, 0, len(s.Players))
	for _, p := range s.Players {
		if !p.IsAI {
			out = append(out, p)
		}
	}
	return out
}

// AIPlayers returns all AI players.
func (s *Session) AIPlayers() []PlayerState {
	out := make([]PlayerState, 0, len(s.Players))
	for _, p := range s.Players {
		if p.IsAI {
			out = append(out, p)
		}
	}
	return out
}

// SubmissionCount returns how many non-AI players submitted the current
// phase and how many non-AI players exist in total.
func (s *Session) SubmissionCount() (submitted, total int) {
	key := s.CurrentPhaseKey()
	for _, p := range s.Players {
		if p.IsAI {
			continue
		}
		total++
		if _, ok := p.Phases[key]; ok {
			submitted++
		}
	}
	return submitted, total
}

// AllSubmitted returns true if every non-AI player has submitted the
// current phase. Sessions without any non-AI player are never considered
// all-submitted; abandonment handles that path.
func (s *Session) AllSubmitted() bool {
	submitted, total := s.SubmissionCount()
	return total > 0 && submitted == total
}

// HasConnectedRealPlayer returns true if any non-AI player is connected.
func (s *Session) HasConnectedRealPlayer() bool {
	for _, p := range s.Players {
		if !p.IsAI && p.Status == StatusConnected {
			return true
		}
	}
	return false
}

// PhaseStartTime returns the start time of a phase, if set.
func (s *Session) PhaseStartTime(phase int) (time.Time, bool) {
	t, ok := s.Timing[StartTimeKey(phase)]
	return t, ok
}

// PhaseTimeRemainingSec returns the remaining seconds of the current
// phase at the given instant, clamped to zero.
func (s *Session) PhaseTimeRemainingSec(now time.Time) int {
	start, ok := s.PhaseStartTime(s.Config.Phase)
	if !ok {
		return 0
	}
	elapsed := int(now.Sub(start) / time.Second)
	remaining := s.Config.PhaseDurationSec - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
