package exam

import "errors"

// Sentinel errors for the engine. Only ErrUnauthorizedSession and
// ErrSessionNotFound reach HTTP clients; sourcing failures are absorbed by
// the fallback chain and at most logged.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrUnauthorizedSession = errors.New("session does not belong to this user")
	ErrSessionCompleted    = errors.New("session is already completed")
	ErrQuestionMissing     = errors.New("question no longer exists")
	ErrPoolExhausted       = errors.New("question pool exhausted")
	ErrGenerationFailed    = errors.New("question generation failed")
	ErrDuplicateQuestion   = errors.New("generated question duplicates one already answered")
	ErrWrongEndpoint       = errors.New("listening answers must be submitted as a block")
	ErrInvalidIndex        = errors.New("no question was served at that index")
)
