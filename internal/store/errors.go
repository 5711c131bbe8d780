package store

import "github.com/cockroachdb/errors"

var (
	ErrSessionExists     = errors.New("session already exists")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionTerminated = errors.New("session is terminal")
	ErrUnknownPlayer     = errors.New("player not in session")
	ErrAlreadySubmitted  = errors.New("phase already submitted")
	ErrStaleTransition   = errors.New("phase transition is stale")
	ErrStoreClosed       = errors.New("store is closed")
)
