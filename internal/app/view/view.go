// Package view provides the client-side session projection: derived,
// read-only state recomputed from store change deliveries.
package view

import (
	"sort"
	"sync"
	"time"

	"github.com/quillduel/quillduel/internal/domain/match"
	"github.com/quillduel/quillduel/internal/store"
)

// PlayerSummary is the per-player slice of a snapshot.
type PlayerSummary struct {
	UserID      string
	DisplayName string
	IsAI        bool
	Status      match.PlayerStatus
	Submitted   bool
}

// Snapshot is the derived UI-facing state of a session at one version.
type Snapshot struct {
	SessionID        string
	State            match.State
	Phase            int
	TimeRemainingSec int
	Submitted        int
	Total            int
	AllPlayersReady  bool
	Players          []PlayerSummary
	Version          uint64
}

// View subscribes to a session and keeps the latest snapshot current.
// Deliveries coalesce: consumers always observe the newest state and
// never an older version after a newer one.
type View struct {
	sub *store.Subscription
	now func() time.Time

	mu      sync.RWMutex
	snap    Snapshot
	updates chan Snapshot
}

// New creates a view over a session and starts its projection loop.
func New(st *store.Store, sessionID string) (*View, error) {
	rec, err := st.Get(sessionID)
	if err != nil {
		return nil, err
	}
	sub, err := st.Subscribe(sessionID)
	if err != nil {
		return nil, err
	}

	v := &View{
		sub:     sub,
		now:     time.Now,
		updates: make(chan Snapshot, 1),
	}
	v.snap = v.project(rec)
	go v.run()
	return v, nil
}

// Snapshot returns the latest derived state.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snap
}

// Updates returns the snapshot channel. Closed when the view ends.
func (v *View) Updates() <-chan Snapshot {
	return v.updates
}

// Close ends the subscription; the projection loop drains and exits.
func (v *View) Close() {
	v.sub.Close()
}

func (v *View) run() {
	defer close(v.updates)

	for rec := range v.sub.C() {
		snap := v.project(rec)

		v.mu.Lock()
		v.snap = snap
		v.mu.Unlock()

		select {
		case v.updates <- snap:
		default:
			select {
			case <-v.updates:
			default:
			}
			select {
			case v.updates <- snap:
			default:
			}
		}
	}
}

// project recomputes the derived state from a full record.
func (v *View) project(rec *match.Session) Snapshot {
	submitted, total := rec.SubmissionCount()
	key := rec.CurrentPhaseKey()

	players := make([]PlayerSummary, 0, len(rec.Players))
	for _, p := range rec.Players {
		_, hasSub := p.Phases[key]
		players = append(players, PlayerSummary{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			IsAI:        p.IsAI,
			Status:      p.Status,
			Submitted:   hasSub,
		})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].UserID < players[j].UserID })

	return Snapshot{
		SessionID:        rec.SessionID,
		State:            rec.State,
		Phase:            rec.Config.Phase,
		TimeRemainingSec: rec.PhaseTimeRemainingSec(v.now()),
		Submitted:        submitted,
		Total:            total,
		AllPlayersReady:  rec.Coordination.AllPlayersReady,
		Players:          players,
		Version:          rec.Version,
	}
}
