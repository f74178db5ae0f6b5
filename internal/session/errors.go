package session

import "errors"

var (
	// ErrNoActiveSession indicates the user has no session in progress.
	ErrNoActiveSession = errors.New("session: no active session")
	// ErrNoSuggestion indicates a confirmation arrived before any
	// appointment was proposed.
	ErrNoSuggestion = errors.New("session: nothing suggested yet")
)
