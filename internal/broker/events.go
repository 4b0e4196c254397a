package appkafka

import (
	"encoding/json"
	"fmt"
	"time"

	"example.com/ribbit/internal/models"
	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	RibbitCreated EventType = "ribbit_created"
	FollowCreated EventType = "follow_created"
)

// Event is the JSON value of every message on the topic. The message key
// carries the event type.
type Event struct {
	Type       EventType      `json:"type"`
	Ribbit     *models.Ribbit `json:"ribbit,omitempty"`
	Follow     *models.Follow `json:"follow,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func NewRibbitCreated(r models.Ribbit) Event {
	return Event{Type: RibbitCreated, Ribbit: &r, OccurredAt: time.Now().UTC()}
}

func NewFollowCreated(f models.Follow) Event {
	return Event{Type: FollowCreated, Follow: &f, OccurredAt: time.Now().UTC()}
}

// Message encodes the event as a Kafka message.
func (e Event) Message() (kafka.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{Key: []byte(e.Type), Value: data}, nil
}

// DecodeEvent parses a message value produced by Message.
func DecodeEvent(msg kafka.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Type == "" {
		e.Type = EventType(msg.Key)
	}
	switch e.Type {
	case RibbitCreated:
		if e.Ribbit == nil {
			return Event{}, fmt.Errorf("decode event: %s without ribbit", e.Type)
		}
	case FollowCreated:
		if e.Follow == nil {
			return Event{}, fmt.Errorf("decode event: %s without follow", e.Type)
		}
	default:
		return Event{}, fmt.Errorf("decode event: unknown type %q", e.Type)
	}
	return e, nil
}

// Publish writes events to w.
func Publish(w KafkaWriter, events ...Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msg, err := e.Message()
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return w.WriteMessages(msgs...)
}

// NopWriter discards messages. The server uses it when Kafka is disabled.
type NopWriter struct{}

func (NopWriter) WriteMessages(messages ...kafka.Message) error { return nil }

func (NopWriter) Close() error { return nil }
