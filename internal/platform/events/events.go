// Package events publishes domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const TypeLinkStatusChanged = "link.status_changed"

// LinkEvent describes a link status transition.
type LinkEvent struct {
	Type          string    `json:"type"`
	TenantID      string    `json:"tenant_id,omitempty"`
	LinkID        uuid.UUID `json:"link_id"`
	Kind          string    `json:"kind"`
	SubjectUserID uuid.UUID `json:"subject_user_id"`
	PatientUserID uuid.UUID `json:"patient_user_id"`
	FromStatus    string    `json:"from_status,omitempty"`
	ToStatus      string    `json:"to_status"`
	Version       int       `json:"version"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher emits link events.
type Publisher interface {
	PublishLinkEvent(ctx context.Context, evt LinkEvent) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by link id so every event of a
// link lands on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		}),
	}
}

func encodeLinkEvent(evt LinkEvent) (kafka.Message, error) {
	if evt.Type == "" {
		evt.Type = TypeLinkStatusChanged
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode link event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(evt.LinkID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(evt.Type)},
		},
	}, nil
}

func (p *KafkaPublisher) PublishLinkEvent(ctx context.Context, evt LinkEvent) error {
	msg, err := encodeLinkEvent(evt)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write link event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishLinkEvent(context.Context, LinkEvent) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []LinkEvent
	Err    error
}

func (r *Recorder) PublishLinkEvent(_ context.Context, evt LinkEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Events() []LinkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LinkEvent, len(r.events))
	copy(out, r.events)
	return out
}
