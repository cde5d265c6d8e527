// Package session runs chat turns: it sends a user message to the backend,
// folds the streamed events into the conversation and tracks whether a
// response is in flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatstream/pkg/chatevent"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/eventstream/nop"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

const publishTimeout = 5 * time.Second

// Config configures a Session.
type Config struct {
	Client *stream.Client
	Logger *slog.Logger

	// Publisher receives a TurnCompletedEvent for every finished turn.
	// Defaults to a no-op publisher.
	Publisher eventstream.Publisher

	// Timeout bounds a single turn. Zero disables it.
	Timeout time.Duration

	// Greeting seeds the conversation with an assistant message when non-empty.
	Greeting string
}

// Session holds one conversation and its continuation token. At most one
// turn runs at a time.
type Session struct {
	client    *stream.Client
	logger    *slog.Logger
	publisher eventstream.Publisher
	timeout   time.Duration

	mu    sync.Mutex
	state State
}

// turn tracks the bookkeeping of a single Submit call.
type turn struct {
	id         string
	request    string
	checkpoint string
	started    time.Time
	queries    []string
	urls       []string
}

// New creates a Session in the idle phase.
func New(cfg Config) (*Session, error) {
	if cfg.Client == nil {
		return nil, ErrNoClient
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	pub := cfg.Publisher
	if pub == nil {
		pub = nop.NewPublisher()
	}

	conv := conversation.New()
	if cfg.Greeting != "" {
		conv = conv.Append(conversation.Assistant(cfg.Greeting))
	}

	return &Session{
		client:    cfg.Client,
		logger:    log,
		publisher: pub,
		timeout:   cfg.Timeout,
		state:     State{Phase: PhaseIdle, Conversation: conv},
	}, nil
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Submit runs one turn for text and blocks until it ends. observe may be nil.
//
// Submit returns ErrEmptyInput or ErrTurnInProgress without touching the
// conversation. A turn that ends with an end event, or with the backend
// closing the stream, returns nil. Connection, status, read and timeout
// failures replace the assistant placeholder with ErrorMessage and are
// returned wrapped.
func (s *Session) Submit(ctx context.Context, text string, observe Observer) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if observe == nil {
		observe = func(Update) {}
	}

	t, snapshot, err := s.begin(text)
	if err != nil {
		return err
	}
	observe(Update{TurnID: t.id, State: snapshot})

	log := s.logger.With("turn_id", t.id)
	log.Info("turn started", "has_checkpoint", t.checkpoint != "")

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	outcome, snapshot, err := s.stream(ctx, t, log, observe)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", err, ctxErr)
		}
		failed := s.fail()
		log.Error("turn failed", "error", err)
		observe(Update{TurnID: t.id, State: failed, Err: err})
		s.publish(ctx, t, eventstream.OutcomeFailed, failed, err)
		return err
	}

	if outcome == eventstream.OutcomeClosed {
		log.Warn("stream closed before end event")
		snapshot = s.idle()
		observe(Update{TurnID: t.id, State: snapshot})
	}

	log.Info("turn finished", "outcome", string(outcome), "duration", time.Since(t.started))
	s.publish(ctx, t, outcome, snapshot, nil)

	return nil
}

// begin moves an idle session into the streaming phase, appending the user
// message and the empty assistant placeholder.
func (s *Session) begin(text string) (*turn, State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase != PhaseIdle {
		return nil, State{}, ErrTurnInProgress
	}

	s.state.Conversation = s.state.Conversation.Append(
		conversation.User(text),
		conversation.Assistant(""),
	)
	s.state.Phase = PhaseStreaming

	return &turn{
		id:         uuid.NewString(),
		request:    text,
		checkpoint: s.state.CheckpointID,
		started:    time.Now(),
	}, s.state, nil
}

// stream reads the turn's records until an end event, the stream closing,
// or a failure. On end it returns the state applied with the end event: the
// session is already idle by then and may have started another turn before
// the connection finishes closing.
func (s *Session) stream(ctx context.Context, t *turn, log *slog.Logger, observe Observer) (eventstream.Outcome, State, error) {
	st, err := s.client.Open(ctx, stream.Request{Message: t.request, CheckpointID: t.checkpoint})
	if err != nil {
		return eventstream.OutcomeFailed, State{}, err
	}
	defer st.Close()

	for {
		rec, err := st.Next()
		if err != nil {
			return eventstream.OutcomeFailed, State{}, err
		}
		if rec == nil {
			return eventstream.OutcomeClosed, State{}, nil
		}

		payload, err := chatevent.Decode(rec.Data)
		if err != nil {
			log.Warn("skipping malformed event", "error", err, "data", rec.Data)
			continue
		}

		switch payload.Type {
		case chatevent.KindSearchStart:
			t.queries = append(t.queries, payload.Query)
		case chatevent.KindSearchResults:
			t.urls = append(t.urls, payload.URLs...)
		}

		effect := chatevent.Interpret(payload)
		if effect == (chatevent.Effect{}) {
			log.Debug("ignoring event", "type", string(payload.Type))
			continue
		}

		snapshot := s.apply(effect)
		observe(Update{TurnID: t.id, Delta: effect.Append, State: snapshot})

		if effect.Done {
			return eventstream.OutcomeCompleted, snapshot, nil
		}
	}
}

// apply folds an effect into the open assistant message.
func (s *Session) apply(effect chatevent.Effect) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if effect.Checkpoint != "" {
		s.state.CheckpointID = effect.Checkpoint
	}

	if effect.Append != "" {
		last, _ := s.state.Conversation.Last()
		s.state.Conversation = s.state.Conversation.ReplaceLast(
			conversation.Assistant(last.Content + effect.Append),
		)
	}

	if effect.Done {
		s.state.Phase = PhaseIdle
	}

	return s.state
}

// fail replaces the placeholder with ErrorMessage and returns to idle.
func (s *Session) fail() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Conversation = s.state.Conversation.ReplaceLast(conversation.Assistant(ErrorMessage))
	s.state.Phase = PhaseIdle
	return s.state
}

func (s *Session) idle() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Phase = PhaseIdle
	return s.state
}

// publish emits the turn-completed event. Publish failures are logged and
// never fail the turn.
func (s *Session) publish(ctx context.Context, t *turn, outcome eventstream.Outcome, snapshot State, turnErr error) {
	event := eventstream.NewTurnCompletedEvent(t.id, outcome, t.started, time.Now())
	event.CheckpointID = snapshot.CheckpointID
	event.Search = eventstream.TurnSearch{Queries: t.queries, URLs: t.urls}
	event.Turn.Request = t.request
	if last, ok := snapshot.Conversation.Last(); ok {
		event.Turn.Response = last.Content
	}
	if turnErr != nil {
		event.Error = turnErr.Error()
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.PublishTurn(pubCtx, event); err != nil {
		s.logger.Warn("publishing turn event", "turn_id", t.id, "error", err)
	}
}
