// Package match provides the session domain entities for phased writing matches.
package match

import "fmt"

// Mode represents the competition mode of a session.
type Mode string

const (
	ModeRanked     Mode = "ranked"
	ModePractice   Mode = "practice"
	ModeQuickMatch Mode = "quick-match"
)

// State represents the session lifecycle state.
type State string

const (
	StateForming       State = "forming"
	StateActive        State = "active"
	StateWaiting       State = "waiting"
	StateTransitioning State = "transitioning"
	StateCompleted     State = "completed"
	StateAbandoned     State = "abandoned"
)

// Terminal returns true if the state is terminal.
// Terminal sessions never mutate phase, players, or coordination again.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

// PlayerStatus represents a participant's connection status.
type PlayerStatus string

const (
	StatusConnected    PlayerStatus = "connected"
	StatusDisconnected PlayerStatus = "disconnected"
)

// Phase bounds for a match. Phases run draft (1), feedback (2), revision (3).
const (
	FirstPhase = 1
	FinalPhase = 3
)

// PhaseKey returns the submission map key for a phase ("phase1".."phase3").
func PhaseKey(phase int) string {
	return fmt.Sprintf("phase%d", phase)
}

// StartTimeKey returns the timing map key for a phase ("phase1StartTime"..).
func StartTimeKey(phase int) string {
	return fmt.Sprintf("phase%dStartTime", phase)
}
