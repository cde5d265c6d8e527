package session

import "github.com/papercomputeco/chatstream/pkg/conversation"

// Phase is the turn lifecycle state of a Session.
type Phase int

const (
	// PhaseIdle accepts a new submission.
	PhaseIdle Phase = iota

	// PhaseStreaming means a response is open and being appended to.
	PhaseStreaming
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of a Session.
type State struct {
	Phase        Phase
	Conversation conversation.Conversation
	CheckpointID string
}

// Typing reports whether the "assistant is typing" indicator should show.
func (s State) Typing() bool {
	return s.Phase == PhaseStreaming
}

// Update is delivered to an Observer after every state change of a turn.
type Update struct {
	TurnID string

	// Delta is the text appended to the assistant message by this update.
	Delta string

	State State

	// Err is set on the final update of a failed turn.
	Err error
}

// Observer receives turn updates. It is called on the goroutine running
// Submit, never while the session lock is held.
type Observer func(Update)
