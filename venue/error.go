package venue

import (
	"errors"
	"fmt"
)

// Error wraps a failure returned by a venue adapter. Retryable errors
// (rate limits, transient 5xx equivalents) may be retried by the
// dispatcher up to the instruction's retry budget; everything else fails
// the instruction immediately.
type Error struct {
	Venue     string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	return fmt.Sprintf("venue %s: %s: %v", e.Venue, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient builds a retryable venue error.
func Transient(venue string, err error) *Error {
	return &Error{Venue: venue, Retryable: true, Err: err}
}

// Permanent builds a non-retryable venue error.
func Permanent(venue string, err error) *Error {
	return &Error{Venue: venue, Retryable: false, Err: err}
}

// IsRetryable reports whether err is a transient venue error.
func IsRetryable(err error) bool {
	var ve *Error
	if !errors.As(err, &ve) {
		return false
	}
	return ve.Retryable
}
