package batch

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation marks bad caller input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned for unknown (expired, reaped or never created) sessions.
	ErrNotFound = errors.New("session not found")
	// ErrDuplicateSession is returned by Registry.Create for an id already in use.
	ErrDuplicateSession = errors.New("session already exists")
	// ErrAlreadyProcessing is returned by Start on a session that is not idle.
	ErrAlreadyProcessing = errors.New("session already started")
	// ErrNotProcessing is returned by Pause on a session that is not processing.
	ErrNotProcessing = errors.New("session is not processing")
	// ErrNotPaused is returned by Resume on a session that is not paused.
	ErrNotPaused = errors.New("session is not paused")
	// ErrSessionTerminal is returned when mutating a completed or cancelled session.
	ErrSessionTerminal = errors.New("session already finished")
	// ErrCapacityExceeded reports an exhausted limiter. The processor waits on it
	// instead of failing items.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrRateLimited is matched by errors.Is for any *RateLimitError.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrSetup marks a session that could not be prepared and was torn down.
	ErrSetup = errors.New("session setup failed")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Setupf wraps ErrSetup with a formatted message.
func Setupf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSetup, fmt.Sprintf(format, args...))
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the item fails on this attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RateLimitError is returned by a WorkFunc when the external provider rejected
// the call because its quota is exhausted. The item fails and the session
// pauses.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return ErrRateLimited.Error()
	}
	return ErrRateLimited.Error() + ": " + e.Err.Error()
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
