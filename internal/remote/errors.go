package remote

import (
	"errors"
	"fmt"
)

// AuthError indicates the upstream rejected the bearer credential or the
// identity endpoint rejected the configured secret. Callers holding a cached
// credential must invalidate it and may retry once.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authorization rejected (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("authorization rejected: %s", e.Message)
}

// NotFoundError indicates the requested resource does not exist upstream.
// For data fetches this means "no data for this unit" and is not a failure.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.Resource)
}

// TransportError covers network failures, timeouts and unexpected upstream
// statuses. It fails the current unit; retry happens only on the next
// scheduled trigger, never immediately.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream returned status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}
