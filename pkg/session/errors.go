package session

import "errors"

var (
	// ErrEmptyInput is returned for submissions that are empty after trimming
	// whitespace. No message is appended and no request is made.
	ErrEmptyInput = errors.New("empty input")

	// ErrTurnInProgress is returned when Submit is called while a response is
	// still streaming.
	ErrTurnInProgress = errors.New("a response is still streaming")

	// ErrNoClient is returned by New when no stream client is configured.
	ErrNoClient = errors.New("no stream client configured")
)

// ErrorMessage replaces the assistant placeholder when a turn fails.
const ErrorMessage = "❌ Error connecting to server."
