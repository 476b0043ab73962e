// Package incident holds the bounded, newest-first incident list and the
// operator commands that mutate it.
package incident

import (
	"time"

	"github.com/teslashibe/sentinel/pkg/compliance"
)

// DefaultCap is the number of incidents retained when no cap is given.
const DefaultCap = 50

// Note is an operator annotation.
type Note struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// Incident is a recorded violation.
type Incident struct {
	ID           string                   `json:"id"`
	Timestamp    time.Time                `json:"timestamp"`
	WorkerID     string                   `json:"workerId"`
	Type         compliance.ViolationType `json:"type"`
	Severity     compliance.Severity      `json:"severity"`
	Confidence   float64                  `json:"confidence"`
	Details      string                   `json:"details"`
	Acknowledged bool                     `json:"acknowledged"`
	Notes        []Note                   `json:"notes"`
}

// Draft is the part of an incident the caller supplies; the store fills in
// id, timestamp, acknowledgement and notes.
type Draft struct {
	WorkerID string
	Verdict  compliance.Verdict
}

// clone returns a copy that shares no slice with i.
func (i Incident) clone() Incident {
	notes := make([]Note, len(i.Notes))
	copy(notes, i.Notes)
	i.Notes = notes
	return i
}
