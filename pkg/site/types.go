// Package site defines the monitored area: worker observations,
// named zones, and the classifier that maps a position to a zone.
package site

import (
	"encoding/json"
	"fmt"
	"time"
)

// ZoneID identifies a zone by its display name.
type ZoneID string

const (
	ZoneSafe          ZoneID = "Safe"
	ZoneLoadingDock   ZoneID = "Loading Dock"
	ZoneExcavationPit ZoneID = "Excavation Pit"
)

// MotionStatus is what the worker is doing at observation time.
type MotionStatus string

const (
	MotionMoving     MotionStatus = "Moving"
	MotionStationary MotionStatus = "Stationary"
	MotionWorking    MotionStatus = "Working"
)

// Valid reports whether m is one of the known statuses.
func (m MotionStatus) Valid() bool {
	switch m {
	case MotionMoving, MotionStationary, MotionWorking:
		return true
	}
	return false
}

// UnmarshalText rejects unknown statuses so bad wire data never reaches
// the evaluator.
func (m *MotionStatus) UnmarshalText(text []byte) error {
	v := MotionStatus(text)
	if !v.Valid() {
		return fmt.Errorf("site: unknown motion status %q", text)
	}
	*m = v
	return nil
}

// Position is a point in percentage units, each axis in [0,100].
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clamp returns p limited to [lo,hi] on both axes.
func (p Position) Clamp(lo, hi float64) Position {
	return Position{X: clamp(p.X, lo, hi), Y: clamp(p.Y, lo, hi)}
}

// InBounds reports whether p lies within the [0,100] frame.
func (p Position) InBounds() bool {
	return p.X >= 0 && p.X <= 100 && p.Y >= 0 && p.Y <= 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PPE holds the protective equipment flags detected on a worker.
type PPE struct {
	HasHelmet bool `json:"hasHelmet"`
	HasVest   bool `json:"hasVest"`
}

// WorkerSnapshot is one observation of one worker. Snapshots are replaced
// wholesale on every update cycle; nothing patches them in place.
//
// Position and PPE are embedded so the JSON form stays flat:
// {id, x, y, hasHelmet, hasVest, zone, status, lastSeen}.
type WorkerSnapshot struct {
	ID string `json:"id"`
	Position
	PPE
	Zone     ZoneID       `json:"zone"`
	Status   MotionStatus `json:"status"`
	LastSeen time.Time    `json:"lastSeen"`

	// Confidence is attached by the perception pipeline when it has one.
	Confidence *float64 `json:"confidence,omitempty"`
}

// lastSeenLayouts are tried in order. Perception services that stamp with
// a naive local clock send ISO-8601 without an offset; those are read as UTC.
var lastSeenLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseLastSeen parses a lastSeen timestamp.
func ParseLastSeen(s string) (time.Time, error) {
	for _, layout := range lastSeenLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("site: unrecognised lastSeen %q", s)
}

// UnmarshalJSON accepts lastSeen with or without a UTC offset.
func (w *WorkerSnapshot) UnmarshalJSON(data []byte) error {
	type plain WorkerSnapshot
	aux := struct {
		*plain
		LastSeen *string `json:"lastSeen"`
	}{plain: (*plain)(w)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	w.LastSeen = time.Time{}
	if aux.LastSeen == nil || *aux.LastSeen == "" {
		return nil
	}
	t, err := ParseLastSeen(*aux.LastSeen)
	if err != nil {
		return err
	}
	w.LastSeen = t
	return nil
}

// String is used in log lines.
func (w WorkerSnapshot) String() string {
	return fmt.Sprintf("%s@(%.1f,%.1f) %s %s helmet=%t vest=%t",
		w.ID, w.X, w.Y, w.Zone, w.Status, w.HasHelmet, w.HasVest)
}

// Validate checks the fields a perception source must fill in.
func (w WorkerSnapshot) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("site: worker id required")
	}
	if !w.Position.InBounds() {
		return fmt.Errorf("site: worker %s position (%.2f,%.2f) outside [0,100]", w.ID, w.X, w.Y)
	}
	if !w.Status.Valid() {
		return fmt.Errorf("site: worker %s has unknown status %q", w.ID, w.Status)
	}
	if w.Confidence != nil && (*w.Confidence < 0 || *w.Confidence > 1) {
		return fmt.Errorf("site: worker %s confidence %.3f outside [0,1]", w.ID, *w.Confidence)
	}
	return nil
}

// DecodeBatch parses a JSON array of snapshots and validates each one.
// A worker id may appear at most once.
func DecodeBatch(data []byte) ([]WorkerSnapshot, error) {
	var batch []WorkerSnapshot
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("site: decode batch: %w", err)
	}
	seen := make(map[string]bool, len(batch))
	for _, w := range batch {
		if err := w.Validate(); err != nil {
			return nil, err
		}
		if seen[w.ID] {
			return nil, fmt.Errorf("site: worker %s listed twice in batch", w.ID)
		}
		seen[w.ID] = true
	}
	return batch, nil
}
