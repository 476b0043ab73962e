// Package events publishes newly created incidents to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/teslashibe/sentinel/pkg/incident"
)

// KindIncidentCreated tags envelopes carrying a new incident.
const KindIncidentCreated = "incident.created"

// Publisher delivers incident events.
type Publisher interface {
	Publish(ctx context.Context, inc incident.Incident) error
	Close() error
}

// Envelope is the wire form of a published event.
type Envelope struct {
	ID       string            `json:"id"`
	Kind     string            `json:"kind"`
	At       time.Time         `json:"at"`
	Incident incident.Incident `json:"incident"`
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, incident.Incident) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per incident, keyed by worker id so a
// worker's incidents stay ordered within a partition.
type KafkaPublisher struct {
	w   messageWriter
	log *slog.Logger
	now func() time.Time
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("events: no brokers provided")
	}
	if topic == "" {
		return nil, fmt.Errorf("events: topic required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return newKafkaPublisher(w, log), nil
}

func newKafkaPublisher(w messageWriter, log *slog.Logger) *KafkaPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaPublisher{
		w:   w,
		log: log.With(slog.String("component", "kafka-publisher")),
		now: time.Now,
	}
}

// Publish writes an incident.created envelope.
func (p *KafkaPublisher) Publish(ctx context.Context, inc incident.Incident) error {
	env := Envelope{
		ID:       uuid.NewString(),
		Kind:     KindIncidentCreated,
		At:       p.now().UTC(),
		Incident: inc,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(inc.WorkerID),
		Value: value,
		Time:  env.At,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(KindIncidentCreated)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: publish incident %s: %w", inc.ID, err)
	}
	p.log.Debug("incident published", "incident", inc.ID, "worker", inc.WorkerID)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
