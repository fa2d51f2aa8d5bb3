package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// NotFoundError reports that a named resource does not exist server-side
// (HTTP 404, or 422 when the server rejects the identifier itself). It
// wraps ErrNotFound so callers can match with errors.Is.
type NotFoundError struct {
	Resource string
	ID       string
	Status   int
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %q not found (status %d)", e.Resource, e.ID, e.Status)
	}
	return fmt.Sprintf("%s not found (status %d)", e.Resource, e.Status)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// StatusError is any other non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("server returned status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("server returned status %d", e.Status)
}

// IsNotFound reports whether err is a not-found class failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
