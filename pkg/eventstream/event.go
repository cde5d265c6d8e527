package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted once a chat turn leaves the streaming phase.
	EventTypeTurnCompleted = "chatstream.turn.completed"
)

// Outcome describes how a turn ended.
type Outcome string

const (
	// OutcomeCompleted means the backend sent an end event.
	OutcomeCompleted Outcome = "completed"

	// OutcomeClosed means the stream closed before an end event arrived.
	OutcomeClosed Outcome = "closed"

	// OutcomeFailed means the turn was aborted by a connection, status, read
	// or timeout failure.
	OutcomeFailed Outcome = "failed"
)

// TurnCompletedEvent is a transport-neutral event payload for a finished turn.
type TurnCompletedEvent struct {
	SchemaVersion int        `json:"schema_version"`
	EventType     string     `json:"event_type"`
	EventID       string     `json:"event_id"`
	EmittedAt     time.Time  `json:"emitted_at"`
	TurnID        string     `json:"turn_id"`
	CheckpointID  string     `json:"checkpoint_id,omitempty"`
	Outcome       Outcome    `json:"outcome"`
	Turn          TurnBody   `json:"turn"`
	Timing        TurnTiming `json:"timing"`
	Search        TurnSearch `json:"search"`
	Error         string     `json:"error,omitempty"`
}

// TurnBody holds the exchanged text.
type TurnBody struct {
	Request  string `json:"request"`
	Response string `json:"response"`
}

// TurnTiming captures request lifecycle metadata for the event.
type TurnTiming struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// TurnSearch lists the searches announced by the backend during the turn.
type TurnSearch struct {
	Queries []string `json:"queries,omitempty"`
	URLs    []string `json:"urls,omitempty"`
}

// NewTurnCompletedEvent stamps a new event with schema, type, id and
// emission time. Callers fill in the turn fields.
func NewTurnCompletedEvent(turnID string, outcome Outcome, started, completed time.Time) *TurnCompletedEvent {
	return &TurnCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		TurnID:        turnID,
		Outcome:       outcome,
		Timing: TurnTiming{
			StartedAt:   started,
			CompletedAt: completed,
			DurationMs:  completed.Sub(started).Milliseconds(),
		},
	}
}
