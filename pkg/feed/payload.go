// Package feed carries the live site state between the monitor and its
// viewers: the payload type, a consumer that applies pushed snapshots, and a
// reconnecting websocket client.
package feed

import (
	"encoding/json"
	"fmt"

	"github.com/teslashibe/sentinel/pkg/incident"
	"github.com/teslashibe/sentinel/pkg/site"
	"github.com/teslashibe/sentinel/pkg/timeline"
)

// System status values reported in Stats.
const (
	StatusAutonomous = "Autonomous"
	StatusStopped    = "Stopped"
)

// Stats summarizes the monitor's own health.
type Stats struct {
	CPU           float64 `json:"cpu"`
	Latency       float64 `json:"latency"`
	ActiveWorkers int     `json:"active_workers"`
	SystemStatus  string  `json:"system_status"`
}

// Paused reports whether the monitor has stopped analysing.
func (s Stats) Paused() bool {
	return s.SystemStatus == StatusStopped
}

// Payload is one authoritative snapshot of the whole observable state.
type Payload struct {
	Workers   []site.WorkerSnapshot `json:"workers"`
	Incidents []incident.Incident   `json:"incidents"`
	Timeline  []timeline.Event      `json:"timeline"`
	Stats     Stats                 `json:"stats"`
}

// Encode marshals p, normalizing nil collections to empty arrays.
func (p Payload) Encode() ([]byte, error) {
	if p.Workers == nil {
		p.Workers = []site.WorkerSnapshot{}
	}
	if p.Incidents == nil {
		p.Incidents = []incident.Incident{}
	}
	if p.Timeline == nil {
		p.Timeline = []timeline.Event{}
	}
	return json.Marshal(p)
}

// Decode parses a payload. Every collection must be present; a missing
// key is treated as malformed rather than as an empty list.
func Decode(data []byte) (Payload, error) {
	var raw struct {
		Workers   *[]site.WorkerSnapshot `json:"workers"`
		Incidents *[]incident.Incident   `json:"incidents"`
		Timeline  *[]timeline.Event      `json:"timeline"`
		Stats     *Stats                 `json:"stats"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.Workers == nil || raw.Incidents == nil || raw.Timeline == nil || raw.Stats == nil {
		return Payload{}, fmt.Errorf("%w: missing workers, incidents, timeline or stats", ErrMalformedPayload)
	}
	p := Payload{
		Workers:   *raw.Workers,
		Incidents: *raw.Incidents,
		Timeline:  *raw.Timeline,
		Stats:     *raw.Stats,
	}
	for _, w := range p.Workers {
		if err := w.Validate(); err != nil {
			return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}
	return p, nil
}
