package types

import (
	"errors"
	"fmt"
)

// ValidationError rejects a malformed request before any run is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// InvalidLocationError is a permanent geolocation failure: coordinates out
// of range or a place hint that resolves to nothing.
type InvalidLocationError struct {
	Reason string
}

func (e *InvalidLocationError) Error() string {
	return fmt.Sprintf("invalid location: %s", e.Reason)
}

// TransientExternalError wraps a provider timeout or rate limit. Retryable.
type TransientExternalError struct {
	Provider string
	Err      error
}

func (e *TransientExternalError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Provider, e.Err)
}

func (e *TransientExternalError) Unwrap() error { return e.Err }

// PermanentExternalError wraps a definitive provider negative (no results,
// unsupported voice). Never retried.
type PermanentExternalError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *PermanentExternalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *PermanentExternalError) Unwrap() error { return e.Err }

// SystemFailure marks a persistence or queueing malfunction. The run is
// FAILED but eligible for retry from its last checkpoint.
type SystemFailure struct {
	Op  string
	Err error
}

func (e *SystemFailure) Error() string {
	return fmt.Sprintf("system failure during %s: %v", e.Op, e.Err)
}

func (e *SystemFailure) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var t *TransientExternalError
	return errors.As(err, &t)
}

// IsPermanent reports whether err is a definitive provider negative.
func IsPermanent(err error) bool {
	var p *PermanentExternalError
	return errors.As(err, &p)
}

// ErrNoUsableSegments terminates a run in which every POI failed.
var ErrNoUsableSegments = errors.New("no usable segments")
