// Package scoring defines the external grading collaborator contract.
// The coordination subsystem treats scores as opaque numbers in [0,100].
package scoring

import "context"

// Scorer grades a phase submission's content. Implementations call out
// to the grading service; this subsystem never inspects the content.
type Scorer interface {
	Score(ctx context.Context, content map[string]any) (score float64, feedback string, err error)
}

// ClampScore bounds a score to [0,100].
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// StaticScorer returns a fixed score. Used as the fallback path when the
// external grader or AI generator is unavailable, and in tests.
type StaticScorer struct {
	Value    float64
	Feedback string
}

// Score implements Scorer.
func (s StaticScorer) Score(_ context.Context, _ map[string]any) (float64, string, error) {
	return ClampScore(s.Value), s.Feedback, nil
}
