// Package main provides an in-process match simulation for testing the
// coordination pipeline end to end: create, join, submit, AI fill,
// phase transitions, completion.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/quillduel/quillduel/internal/app/aifill"
	"github.com/quillduel/quillduel/internal/app/manager"
	"github.com/quillduel/quillduel/internal/app/scoring"
	"github.com/quillduel/quillduel/internal/app/transition"
	"github.com/quillduel/quillduel/internal/app/view"
	"github.com/quillduel/quillduel/internal/domain/match"
	"github.com/quillduel/quillduel/internal/infra/config"
	"github.com/quillduel/quillduel/internal/infra/logger"
	"github.com/quillduel/quillduel/internal/store"
)

var (
	app         = kingpin.New("quillduel-matchsim", "quillduel in-process match simulator")
	aiCount     = app.Flag("ai", "Number of AI participants").Default("4").Int()
	rank        = app.Flag("rank", "Human participant rank").Default("Silver III").String()
	durationSec = app.Flag("duration", "Phase 1 duration in seconds").Default("120").Int()
	verbose     = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
)

func main() {
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "info"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Output: "stderr", Level: level}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if err := run(); err != nil {
		zlog.Error().Msgf("Simulation error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Default()
	if err != nil {
		return err
	}
	// Tight polling keeps the simulation quick.
	cfg.AI.PollIntervalSec = 1
	cfg.AI.MaxAttempts = 2

	st := store.New()
	defer st.Close()

	trigger := transition.New(st, cfg)
	if err := trigger.Start(); err != nil {
		return err
	}
	defer trigger.Close()

	fallback := scoring.StaticScorer{Value: cfg.AI.FallbackScore, Feedback: "simulated feedback"}
	watcher := aifill.NewWatcher(aifill.New(st, cfg, fallback), st)
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Close()

	mgr := manager.New(st, cfg)
	rec, err := mgr.CreateSession(manager.CreateOptions{
		Mode:        match.ModeRanked,
		Trait:       "clarity",
		PromptID:    "prompt-001",
		PromptType:  "persuasive",
		DurationSec: *durationSec,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created %s (phase 1, %ds)\n", rec.SessionID, rec.Config.PhaseDurationSec)

	mc, err := mgr.JoinSession(rec.SessionID, "human-1", manager.Profile{
		DisplayName: "Alice",
		Rank:        *rank,
	})
	if err != nil {
		return err
	}
	defer func() { _ = mgr.LeaveSession(mc) }()

	for i := 0; i < *aiCount; i++ {
		id := fmt.Sprintf("ai-%d", i+1)
		if _, err := mgr.JoinSession(rec.SessionID, id, manager.Profile{DisplayName: id, IsAI: true}); err != nil {
			return err
		}
	}

	v, err := view.New(st, rec.SessionID)
	if err != nil {
		return err
	}
	defer v.Close()

	for phase := match.FirstPhase; phase <= match.FinalPhase; phase++ {
		remaining, err := mgr.PhaseTimeRemaining(mc)
		if err != nil {
			return err
		}
		fmt.Printf("phase %d: %ds remaining\n", phase, remaining)

		if err := mgr.SubmitPhase(mc, phase, contentFor(phase), 85); err != nil {
			return err
		}
		counts, err := mgr.SubmissionCount(mc)
		if err != nil {
			return err
		}
		fmt.Printf("phase %d: submitted %d/%d humans\n", phase, counts.Submitted, counts.Total)

		if err := waitForAdvance(v, phase); err != nil {
			return err
		}
	}

	final, err := st.Get(rec.SessionID)
	if err != nil {
		return err
	}
	fmt.Printf("session %s: state=%s\n", final.SessionID, final.State)
	for p := match.FirstPhase; p <= match.FinalPhase; p++ {
		if t, ok := final.PhaseStartTime(p); ok {
			fmt.Printf("  phase %d started %s\n", p, t.Format(time.RFC3339))
		}
	}
	return nil
}

// waitForAdvance blocks until the view observes the session leaving the
// given phase, either by advancing or by completing.
func waitForAdvance(v *view.View, phase int) error {
	timeout := time.After(30 * time.Second)
	for {
		select {
		case snap, ok := <-v.Updates():
			if !ok {
				return fmt.Errorf("view closed while waiting for phase %d to end", phase)
			}
			if snap.State == match.StateCompleted {
				fmt.Printf("phase %d: completed\n", phase)
				return nil
			}
			if snap.Phase > phase {
				fmt.Printf("phase %d: advanced to phase %d (%ds)\n", phase, snap.Phase, snap.TimeRemainingSec)
				return nil
			}
		case <-timeout:
			return fmt.Errorf("timed out waiting for phase %d to end", phase)
		}
	}
}

// contentFor builds a payload matching the phase's expected shape.
func contentFor(phase int) map[string]any {
	switch phase {
	case 1:
		return map[string]any{"text": "A first draft on the assigned prompt.", "word_count": 8}
	case 2:
		return map[string]any{"target_user_id": "ai-1", "comments": "Tighten the opening paragraph."}
	default:
		return map[string]any{"text": "A revised draft incorporating feedback.", "summary": "reworked opening"}
	}
}
