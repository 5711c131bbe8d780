// Package aifill tracks the external AI-submission collaborator. AI
// participants' submissions arrive out-of-band; this package polls for
// them with bounded attempts and falls back to a configured scorer so a
// missing generator never stalls the humans' session.
package aifill

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/quillduel/quillduel/internal/app/scoring"
	"github.com/quillduel/quillduel/internal/domain/match"
	"github.com/quillduel/quillduel/internal/infra/config"
	"github.com/quillduel/quillduel/internal/retry"
	"github.com/quillduel/quillduel/internal/store"
)

// ErrAISubmissionsUnavailable signals that the external generator did not
// deliver within the bounded polling window. Distinct from a stall: the
// caller picks the fallback path or surfaces the failure.
var ErrAISubmissionsUnavailable = errors.New("AI submissions unavailable")

// Filler waits for AI submissions and applies the fallback path.
type Filler struct {
	store    *store.Store
	cfg      *config.Config
	fallback scoring.Scorer
	now      func() time.Time
}

// New creates a filler. A nil fallback scorer disables the fallback path
// regardless of configuration.
func New(st *store.Store, cfg *config.Config, fallback scoring.Scorer) *Filler {
	return &Filler{store: st, cfg: cfg, fallback: fallback, now: time.Now}
}

// WaitForSubmissions polls until every AI player has submitted the given
// phase, bounded by the configured attempt count and interval. Exhaustion
// surfaces as ErrAISubmissionsUnavailable.
func (f *Filler) WaitForSubmissions(ctx context.Context, sessionID string, phase int) error {
	policy := retry.Policy{
		MaxAttempts: f.cfg.AI.MaxAttempts,
		Delay:       f.cfg.AIPollInterval(),
	}

	_, err := retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		missing, err := f.missingAIPlayers(sessionID, phase)
		if err != nil {
			return struct{}{}, err
		}
		if len(missing) > 0 {
			return struct{}{}, errors.Newf("%d AI submissions pending", len(missing))
		}
		return struct{}{}, nil
	})
	if errors.Is(err, retry.ErrAttemptsExhausted) {
		return errors.Mark(errors.Wrapf(err, "session %s phase %d", sessionID, phase), ErrAISubmissionsUnavailable)
	}
	return err
}

// EnsurePhase waits for the AI submissions of a phase and, when the
// generator times out and a fallback scorer is configured, writes
// fallback submissions instead of letting the session stall.
func (f *Filler) EnsurePhase(ctx context.Context, sessionID string, phase int) error {
	err := f.WaitForSubmissions(ctx, sessionID, phase)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrAISubmissionsUnavailable) {
		return err
	}
	if !f.cfg.AI.FallbackEnabled || f.fallback == nil {
		return err
	}

	zlog.Warn().Msgf("aifill: generator timed out, using fallback: session_id=%s phase=%d", sessionID, phase)
	return f.fillFallback(ctx, sessionID, phase)
}

// fillFallback writes a fallback submission for every AI player still
// missing the phase. A racing out-of-band write wins; ours is skipped.
func (f *Filler) fillFallback(ctx context.Context, sessionID string, phase int) error {
	missing, err := f.missingAIPlayers(sessionID, phase)
	if err != nil {
		return err
	}

	for _, userID := range missing {
		score, feedback, err := f.fallback.Score(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "fallback scorer")
		}
		sub := match.PhaseSubmission{
			SubmittedAt: f.now(),
			Content:     map[string]any{"text": feedback, "fallback": true},
			Score:       scoring.ClampScore(score),
		}
		err = f.store.Update(sessionID, store.SubmitPhase{UserID: userID, Phase: phase, Submission: sub})
		switch {
		case err == nil:
			zlog.Info().Msgf("aifill: fallback submission written: session_id=%s user_id=%s phase=%d", sessionID, userID, phase)
		case errors.Is(err, store.ErrAlreadySubmitted):
		case errors.Is(err, store.ErrSessionTerminated):
			return nil
		default:
			return errors.Wrapf(err, "fallback submission for %s", userID)
		}
	}
	return nil
}

// missingAIPlayers returns the AI players without a submission for the
// phase. A terminal or missing session yields an empty list: nothing
// left to wait for.
func (f *Filler) missingAIPlayers(sessionID string, phase int) ([]string, error) {
	rec, err := f.store.Get(sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if rec.IsTerminal() || rec.Config.Phase != phase {
		return nil, nil
	}

	key := match.PhaseKey(phase)
	var missing []string
	for _, p := range rec.AIPlayers() {
		if _, ok := p.Phases[key]; !ok {
			missing = append(missing, p.UserID)
		}
	}
	return missing, nil
}
