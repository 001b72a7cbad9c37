package monitor

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// TransientFeedError marks a feed failure worth retrying: transport
// errors, timeouts, 5xx and 429 responses.
type TransientFeedError struct {
	Err error
}

func (e *TransientFeedError) Error() string {
	return fmt.Sprintf("transient feed error: %v", e.Err)
}

func (e *TransientFeedError) Unwrap() error { return e.Err }

// PermanentFeedError marks a feed failure that retrying cannot fix,
// typically a non-retryable 4xx. The poll logs it and still advances the
// subject's eligibility to avoid hot-looping on a permanently bad query.
type PermanentFeedError struct {
	StatusCode int
	Err        error
}

func (e *PermanentFeedError) Error() string {
	return fmt.Sprintf("permanent feed error (status %d): %v", e.StatusCode, e.Err)
}

func (e *PermanentFeedError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientFeedError.
func Transient(err error) error {
	return &TransientFeedError{Err: err}
}

// Permanent wraps err as a PermanentFeedError with the given status.
func Permanent(status int, err error) error {
	return &PermanentFeedError{StatusCode: status, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientFeedError.
func IsTransient(err error) bool {
	var t *TransientFeedError
	return errors.As(err, &t)
}

// IsPermanent reports whether err is (or wraps) a PermanentFeedError.
func IsPermanent(err error) bool {
	var p *PermanentFeedError
	return errors.As(err, &p)
}
