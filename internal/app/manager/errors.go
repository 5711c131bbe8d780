package manager

import "github.com/cockroachdb/errors"

var (
	// ErrSessionNotInitialized signals an operation before create/join.
	// This is a programming error on the caller side, never retried.
	ErrSessionNotInitialized = errors.New("no session joined")

	// ErrPhaseMismatch signals a stale submission attempt; the write is
	// discarded rather than applied to the wrong phase.
	ErrPhaseMismatch = errors.New("submission phase does not match current phase")

	// ErrInvalidPayload signals submission content that does not decode
	// into the expected shape for the phase.
	ErrInvalidPayload = errors.New("invalid phase payload")

	// ErrPersistence marks store failures surfaced to the caller. The
	// caller retries with backoff or aborts; no retry happens inside.
	ErrPersistence = errors.New("persistence failure")
)
