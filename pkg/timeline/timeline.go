// Package timeline keeps a bounded, newest-first log of worker transitions.
package timeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCap is the number of events retained when no cap is given.
const DefaultCap = 20

// EventType is the kind of transition recorded.
type EventType string

const (
	EventZoneChange   EventType = "Zone Change"
	EventStatusChange EventType = "Status Change"
	EventViolation    EventType = "Violation"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventZoneChange, EventStatusChange, EventViolation:
		return true
	}
	return false
}

// UnmarshalText rejects unknown event types.
func (t *EventType) UnmarshalText(text []byte) error {
	v := EventType(text)
	if !v.Valid() {
		return fmt.Errorf("timeline: unknown event type %q", text)
	}
	*t = v
	return nil
}

// Event is one detected transition.
type Event struct {
	ID          string    `json:"id"`
	WorkerID    string    `json:"workerId"`
	Timestamp   time.Time `json:"timestamp"`
	Type        EventType `json:"type"`
	Description string    `json:"description"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(workerID string, t EventType, at time.Time, description string) Event {
	return Event{
		ID:          uuid.NewString(),
		WorkerID:    workerID,
		Timestamp:   at,
		Type:        t,
		Description: description,
	}
}

// Log is an append-only event log capped at a fixed size. The newest event
// is always first; the oldest falls off when the cap is exceeded.
type Log struct {
	mu     sync.RWMutex
	cap    int
	events []Event
}

// NewLog creates a log. A non-positive cap uses DefaultCap.
func NewLog(cap int) *Log {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Log{cap: cap, events: make([]Event, 0, cap)}
}

// Append records e as the newest event.
func (l *Log) Append(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, Event{})
	copy(l.events[1:], l.events)
	l.events[0] = e
	if len(l.events) > l.cap {
		l.events = l.events[:l.cap]
	}
}

// List returns a copy of the events, newest first.
func (l *Log) List() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Cap returns the retention cap.
func (l *Log) Cap() int { return l.cap }
