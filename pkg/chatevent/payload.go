// Package chatevent defines the JSON payloads carried by the chat stream and
// the interpreter that folds them into the open assistant message.
package chatevent

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the value of a payload's "type" field.
type Kind string

const (
	KindCheckpoint    Kind = "checkpoint"
	KindContent       Kind = "content"
	KindSearchStart   Kind = "search_start"
	KindSearchResults Kind = "search_results"
	KindEnd           Kind = "end"
)

// ErrMalformedPayload is returned by Decode when a record's data cannot be
// read as a payload.
var ErrMalformedPayload = errors.New("malformed payload")

// Payload is one decoded stream event. Only the fields relevant to Type are
// populated by the backend.
type Payload struct {
	Type         Kind     `json:"type" toml:"type"`
	CheckpointID string   `json:"checkpoint_id,omitempty" toml:"checkpoint_id,omitempty"`
	Content      string   `json:"content,omitempty" toml:"content,omitempty"`
	Query        string   `json:"query,omitempty" toml:"query,omitempty"`
	URLs         []string `json:"urls,omitempty" toml:"urls,omitempty"`
}

// Decode parses a record's data into a Payload.
func Decode(data string) (*Payload, error) {
	p := &Payload{}
	if err := json.Unmarshal([]byte(data), p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if p.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}

	return p, nil
}

// Encode renders p as a single wire record: "data: <json>" followed by a
// blank line.
func Encode(p *Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return "data: " + string(b) + "\n\n", nil
}
