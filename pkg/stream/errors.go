package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection marks any failure to reach the backend or to keep reading
	// from it. A turn that sees it is over.
	ErrConnection = errors.New("connection error")

	// ErrNoBaseURL is returned by NewClient when no backend URL is configured.
	ErrNoBaseURL = errors.New("no backend base URL configured")
)

// StatusError is returned by Open when the backend answers with a non-2xx
// status. It matches ErrConnection with errors.Is.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrConnection
}
