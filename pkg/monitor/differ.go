package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/sentinel/pkg/compliance"
	"github.com/teslashibe/sentinel/pkg/incident"
	"github.com/teslashibe/sentinel/pkg/site"
	"github.com/teslashibe/sentinel/pkg/timeline"
)

// Observation pairs a worker's previous and current state. Prev and
// PrevVerdict are nil on first sighting.
type Observation struct {
	Prev        *site.WorkerSnapshot
	Curr        site.WorkerSnapshot
	PrevVerdict *compliance.Verdict
	Verdict     compliance.Verdict
}

// Result is what one Diff produced.
type Result struct {
	Events   []timeline.Event
	Incident *incident.Incident
}

// Differ turns observation pairs into timeline events and edge-triggered
// incidents.
type Differ struct {
	incidents *incident.Store
	timeline  *timeline.Log
	now       func() time.Time
}

// NewDiffer creates a differ writing into the given store and log.
func NewDiffer(incidents *incident.Store, tl *timeline.Log) *Differ {
	return &Differ{incidents: incidents, timeline: tl, now: time.Now}
}

// Diff compares obs.Prev with obs.Curr and records what changed.
//
// A zone change yields a Zone Change event. A motion or PPE change within
// the same zone yields a Status Change event. A verdict moving from None
// (or absent) to a violation, or between two violation types, creates an
// incident and a Violation event; a persisting violation does not.
//
// If the incident store rejects the incident, the error is returned and
// no Violation event is recorded.
func (d *Differ) Diff(ctx context.Context, obs Observation) (Result, error) {
	if obs.Prev != nil && obs.Prev.ID != obs.Curr.ID {
		panic(fmt.Sprintf("monitor: diff of mismatched workers %q and %q", obs.Prev.ID, obs.Curr.ID))
	}

	var res Result
	at := obs.Curr.LastSeen
	if at.IsZero() {
		at = d.now()
	}

	if prev := obs.Prev; prev != nil {
		switch {
		case prev.Zone != obs.Curr.Zone:
			res.Events = append(res.Events, d.record(obs.Curr.ID, timeline.EventZoneChange, at,
				fmt.Sprintf("Moved from %s to %s", prev.Zone, obs.Curr.Zone)))
		case prev.Status != obs.Curr.Status || prev.PPE != obs.Curr.PPE:
			res.Events = append(res.Events, d.record(obs.Curr.ID, timeline.EventStatusChange, at,
				describeStatus(*prev, obs.Curr)))
		}
	}

	if !violationEdge(obs.PrevVerdict, obs.Verdict) {
		return res, nil
	}

	inc, err := d.incidents.Add(ctx, incident.Draft{WorkerID: obs.Curr.ID, Verdict: obs.Verdict})
	if err != nil {
		return res, err
	}
	res.Incident = &inc
	res.Events = append(res.Events, d.record(obs.Curr.ID, timeline.EventViolation, at,
		fmt.Sprintf("%s: %s", inc.Type, inc.Details)))
	return res, nil
}

func (d *Differ) record(workerID string, t timeline.EventType, at time.Time, desc string) timeline.Event {
	e := timeline.NewEvent(workerID, t, at, desc)
	d.timeline.Append(e)
	return e
}

// violationEdge reports whether curr starts a new violation relative to prev.
// Severity changes within the same type are not edges.
func violationEdge(prev *compliance.Verdict, curr compliance.Verdict) bool {
	if !curr.IsViolation() {
		return false
	}
	if prev == nil || !prev.IsViolation() {
		return true
	}
	return prev.Type != curr.Type
}

func describeStatus(prev, curr site.WorkerSnapshot) string {
	var parts []string
	if prev.Status != curr.Status {
		parts = append(parts, fmt.Sprintf("%s to %s", prev.Status, curr.Status))
	}
	if prev.HasHelmet != curr.HasHelmet {
		parts = append(parts, equipment("helmet", curr.HasHelmet))
	}
	if prev.HasVest != curr.HasVest {
		parts = append(parts, equipment("vest", curr.HasVest))
	}
	return strings.Join(parts, ", ")
}

func equipment(item string, on bool) string {
	if on {
		return item + " on"
	}
	return item + " removed"
}
