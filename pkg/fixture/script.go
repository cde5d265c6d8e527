package fixture

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/chatstream/pkg/chatevent"
)

// MessagePlaceholder is replaced by the user's message in the content and
// query of scripted events.
const MessagePlaceholder = "{{message}}"

// ErrMissingType is returned for scripted events without a type.
var ErrMissingType = errors.New("missing type")

// Script is a canned turn replayed for every request. It is stored as TOML:
//
//	delay = "50ms"
//
//	[[events]]
//	type = "content"
//	content = "You said {{message}}"
type Script struct {
	// Delay between two events, as a Go duration string. Overrides the
	// server's configured delay when set.
	Delay string `toml:"delay,omitempty"`

	Events []chatevent.Payload `toml:"events"`
}

// DefaultScript returns the built-in script: a short answer that announces a
// search, lists two results and finishes with markdown.
func DefaultScript() *Script {
	return &Script{
		Events: []chatevent.Payload{
			{Type: chatevent.KindContent, Content: "Let me look that up"},
			{Type: chatevent.KindContent, Content: " for you."},
			{Type: chatevent.KindSearchStart, Query: MessagePlaceholder},
			{Type: chatevent.KindSearchResults, URLs: []string{
				"https://example.com/first",
				"https://example.com/second",
			}},
			{Type: chatevent.KindContent, Content: "\nHere is what I found about **" + MessagePlaceholder + "**:\n\n"},
			{Type: chatevent.KindContent, Content: "- the first result\n"},
			{Type: chatevent.KindContent, Content: "- the second result\n"},
		},
	}
}

// LoadScript reads and validates a TOML script from path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes and validates a TOML script.
func ParseScript(data []byte) (*Script, error) {
	s := &Script{}
	if err := toml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing script TOML: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks that every event has a type and the delay parses.
func (s *Script) Validate() error {
	if _, err := s.delay(); err != nil {
		return fmt.Errorf("invalid script delay: %w", err)
	}

	for i, ev := range s.Events {
		if ev.Type == "" {
			return fmt.Errorf("event %d: %w", i, ErrMissingType)
		}
	}

	return nil
}

func (s *Script) delay() (time.Duration, error) {
	if s.Delay == "" {
		return 0, nil
	}
	return time.ParseDuration(s.Delay)
}

// Turn returns the payloads sent for one request. A checkpoint event
// carrying newCheckpoint leads the turn when newCheckpoint is non-empty. The
// turn stops at the first scripted end event, and an end event is appended
// when the script has none.
func (s *Script) Turn(message, newCheckpoint string) []chatevent.Payload {
	out := make([]chatevent.Payload, 0, len(s.Events)+2)

	if newCheckpoint != "" {
		out = append(out, chatevent.Payload{Type: chatevent.KindCheckpoint, CheckpointID: newCheckpoint})
	}

	for _, ev := range s.Events {
		ev.Content = strings.ReplaceAll(ev.Content, MessagePlaceholder, message)
		ev.Query = strings.ReplaceAll(ev.Query, MessagePlaceholder, message)
		if len(ev.URLs) > 0 {
			ev.URLs = append([]string(nil), ev.URLs...)
		}

		out = append(out, ev)
		if ev.Type == chatevent.KindEnd {
			return out
		}
	}

	return append(out, chatevent.Payload{Type: chatevent.KindEnd})
}
