// Package retry provides a bounded-attempt retry combinator.
package retry

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrAttemptsExhausted marks errors returned after the final attempt.
// Detect it with errors.Is.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy bounds a retried operation.
type Policy struct {
	MaxAttempts int           // total attempts, at least 1
	Delay       time.Duration // wait between attempts
	Backoff     float64       // delay multiplier per attempt; <=1 means fixed
}

// Do runs fn up to p.MaxAttempts times, waiting p.Delay (scaled by
// p.Backoff after each failure) between attempts. It returns fn's first
// successful result, the context error on cancellation, or the last
// failure marked with ErrAttemptsExhausted.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		return zero, errors.New("retry: MaxAttempts must be at least 1")
	}

	delay := p.Delay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
			if p.Backoff > 1 {
				delay = time.Duration(float64(delay) * p.Backoff)
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
		zlog.Debug().Msgf("retry: attempt failed: attempt=%d/%d err=%v", attempt, p.MaxAttempts, err)
	}

	return zero, errors.Mark(errors.Wrapf(lastErr, "giving up after %d attempts", p.MaxAttempts), ErrAttemptsExhausted)
}
