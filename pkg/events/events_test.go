package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/teslashibe/sentinel/internal/log"
	"github.com/teslashibe/sentinel/pkg/compliance"
	"github.com/teslashibe/sentinel/pkg/incident"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherWritesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, log.Discard())

	inc := incident.Incident{
		ID:       "inc-1",
		WorkerID: "WK-02",
		Type:     compliance.ViolationZoneIntrusion,
		Severity: compliance.SeverityHigh,
		Notes:    []incident.Note{},
	}
	if err := p.Publish(context.Background(), inc); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "WK-02" {
		t.Errorf("Key = %q, want WK-02", msg.Key)
	}

	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if env.Kind != KindIncidentCreated || env.ID == "" {
		t.Errorf("envelope = %+v", env)
	}
	if env.Incident.ID != "inc-1" || env.Incident.Type != compliance.ViolationZoneIntrusion {
		t.Errorf("incident = %+v", env.Incident)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close() = %v, closed = %v", err, w.closed)
	}
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := newKafkaPublisher(&fakeWriter{err: boom}, nil)

	err := p.Publish(context.Background(), incident.Incident{ID: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("Publish error = %v, want wrapped %v", err, boom)
	}
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, "t", nil); err == nil {
		t.Error("accepted empty broker list")
	}
	if _, err := NewKafkaPublisher([]string{"localhost:9092"}, "", nil); err == nil {
		t.Error("accepted empty topic")
	}
	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "sentinel.incidents", log.Discard())
	if err != nil {
		t.Fatalf("NewKafkaPublisher error: %v", err)
	}
	_ = p.Close()
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), incident.Incident{}); err != nil {
		t.Errorf("Publish = %v", err)
	}
}
