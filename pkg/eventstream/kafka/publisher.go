// Package kafka publishes turn events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/logger"
)

const defaultWriteTimeout = 10 * time.Second

// Config configures a Kafka publisher.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes each turn event as one JSON message. Messages are keyed by
// checkpoint id so every turn of a conversation lands on the same partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a publisher backed by a kafka-go Writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, eventstream.ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		WriteTimeout:           timeout,
		AllowAutoTopicCreation: true,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...any) {
			log.Error(fmt.Sprintf(msg, args...), "component", "kafka")
		}),
	}

	return newPublisher(w, cfg.Topic, log), nil
}

func newPublisher(w messageWriter, topic string, log *slog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: log,
	}
}

// PublishTurn encodes and writes the event, blocking until the broker acks it
// or ctx is done.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	msg, err := Message(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing turn %s to %s: %w", event.TurnID, p.topic, err)
	}

	p.logger.Debug("published turn event",
		"topic", p.topic,
		"turn_id", event.TurnID,
		"event_id", event.EventID,
		"outcome", string(event.Outcome),
	)

	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Message builds the Kafka message for a turn event. The key is the
// checkpoint id, falling back to the turn id for turns that never received one.
func Message(event *eventstream.TurnCompletedEvent) (kafkago.Message, error) {
	if event == nil {
		return kafkago.Message{}, eventstream.ErrNilTurnEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encoding turn event: %w", err)
	}

	key := event.CheckpointID
	if key == "" {
		key = event.TurnID
	}

	return kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(strconv.Itoa(event.SchemaVersion))},
		},
	}, nil
}
