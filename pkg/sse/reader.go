package sse

import (
	"bufio"
	"io"
	"strings"
)

const (
	initialBufferSize = 64 * 1024
	maxLineSize       = 1024 * 1024
)

// Reader reads SSE events from a source io.Reader. When constructed with
// NewTeeReader every raw line is also written to a destination writer before
// it is parsed:
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌──────────────────────────────┐
// │   Reader.Next()  │──▶│ tee io.Writer (optional dump) │
// └──────────────────┘   └──────────────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Event       │
// └──────────────────┘
type Reader struct {
	scanner *bufio.Scanner
	tee     io.Writer

	// current accumulates fields for the event being built in the current scan.
	current *Event
	pending bool
}

// NewReader returns a Reader that parses SSE events from src.
func NewReader(src io.Reader) *Reader {
	return NewTeeReader(src, nil)
}

// NewTeeReader returns a Reader that parses SSE events from src and writes
// all raw bytes through to tee. A nil tee disables the copy.
func NewTeeReader(src io.Reader, tee io.Writer) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, initialBufferSize), maxLineSize)

	return &Reader{
		scanner: scanner,
		tee:     tee,
		current: &Event{},
	}
}

// Next returns the next parsed SSE event. It blocks until a complete event is
// available (terminated by a blank line in the stream).
// Next returns nil, nil when the source is exhausted.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		raw := r.scanner.Text()

		if r.tee != nil {
			// bufio.Scanner strips the newline, reinsert it for a verbatim copy.
			if _, err := io.WriteString(r.tee, raw+"\n"); err != nil {
				return nil, err
			}
		}

		if raw == "" {
			if r.pending {
				return r.take(), nil
			}

			// Leading blank lines and keep-alive newlines.
			continue
		}

		// Comment line.
		if strings.HasPrefix(raw, ":") {
			continue
		}

		r.parseLine(raw)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// Stream ended without a trailing blank line.
	if r.pending {
		return r.take(), nil
	}

	return nil, nil
}

// parseLine processes a single non-empty, non-comment SSE line of the form
// "field:value". A single space after the colon is stripped.
func (r *Reader) parseLine(line string) {
	field, value, ok := strings.Cut(line, ":")
	if ok {
		value = strings.TrimPrefix(value, " ")
	} else {
		// No colon: the whole line is the field name with an empty value.
		field = line
	}

	switch field {
	case "data":
		if r.current.HasData {
			r.current.Data += "\n"
		}
		r.current.Data += value
		r.current.HasData = true
		r.pending = true
	case "event":
		r.current.Type = value
		r.pending = true
	case "id":
		r.current.ID = value
		r.pending = true
	default:
		// "retry" and unknown fields are ignored.
	}
}

func (r *Reader) take() *Event {
	ev := r.current
	r.current = &Event{}
	r.pending = false
	return ev
}
