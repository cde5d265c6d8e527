// Package sse provides a small SSE (Server-Sent Events) record reader used by
// the chatstream transport. It splits an upstream byte stream into blank-line
// delimited events and can optionally copy the raw bytes verbatim to a second
// writer, which backs the --dump-stream debugging flag.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event represents a single parsed SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n".
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string

	// HasData reports whether at least one "data:" field was seen. Events
	// made only of "event:" or "id:" fields carry no payload.
	HasData bool
}
