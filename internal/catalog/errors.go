package catalog

import (
	"errors"
	"fmt"
)

// ErrNoProduct is returned by product extractors when a page yields nothing
// usable. It is treated as a per-item failure, not a retry case.
var ErrNoProduct = errors.New("no product found in page")

// RateLimitError signals that an upstream API rejected a call for quota
// reasons. The retry policy waits a long fixed delay before trying again.
type RateLimitError struct {
	Message string
	Code    int
}

func (e *RateLimitError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("rate limited (%d): %s", e.Code, e.Message)
	}
	return "rate limited: " + e.Message
}

// ConflictError signals a busy upstream resource, e.g. a catalog item still
// being processed. Retried after a short fixed wait.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Message
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks an error as non-retryable, e.g. a validation failure or a
// duplicate SKU that is already live in the catalog.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err carries the non-retryable marker.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
