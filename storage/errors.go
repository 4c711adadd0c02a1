package storage

import (
	"errors"
	"fmt"
	"time"

	"docstore/core"
)

// Storage error constants
var (
	// ErrNotFound is returned when no document matches the requested id or
	// predicate.
	ErrNotFound = errors.New("document not found")

	// ErrValidation is returned when a document cannot be accepted, e.g.
	// when an id cannot be assigned at insert time.
	ErrValidation = errors.New("document validation failed")

	// ErrConfiguration is returned for malformed required settings. It is
	// fatal and raised before any connection attempt.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrConnection marks transient backend connectivity failures. During
	// backend selection it triggers fallback to the next candidate; once a
	// backend is active it propagates to the caller unchanged.
	ErrConnection = errors.New("backend connection failed")

	// ErrTimeout marks a guarded operation that exceeded its deadline. For
	// fallback purposes it is treated like ErrConnection.
	ErrTimeout = errors.New("operation timed out")
)

// ConnectionError wraps a backend-native connectivity failure with the
// backend that produced it.
type ConnectionError struct {
	Backend core.Backend
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s backend connection failed: %v", e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// TimeoutError is produced by the timeout guard when an operation exceeds
// its deadline. Label identifies the guarded operation in logs.
type TimeoutError struct {
	Label string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Label, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// isSelectionFailure reports whether err should cause the backend selector
// to try the next candidate. Timeouts count as connection failures here;
// anything else is a hard error.
func isSelectionFailure(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout)
}
