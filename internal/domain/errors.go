package domain

import "errors"

var (
	// ErrUnknownUser is returned when an action references an account
	// that was never provisioned.
	ErrUnknownUser = errors.New("unknown user")
	// ErrVersionConflict signals a lost optimistic-concurrency race; the
	// caller re-reads and retries against fresh state.
	ErrVersionConflict = errors.New("account version conflict")
	// ErrRetriesExhausted is surfaced when conflict retries run out; the
	// request is safe to retry externally since nothing was written.
	ErrRetriesExhausted = errors.New("award retries exhausted")
	// ErrStorageUnavailable wraps backend failures; no partial account
	// mutation is ever visible behind it.
	ErrStorageUnavailable = errors.New("ledger storage unavailable")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidTransition is returned by the quiz session when an
	// operation is not legal in the current state.
	ErrInvalidTransition = errors.New("invalid quiz session transition")
	// ErrNoChoice distinguishes selecting outside the option range.
	ErrNoChoice = errors.New("choice out of range")
)
