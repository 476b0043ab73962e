// Package monitor owns the tracked worker set and runs each observation
// batch through classification, evaluation and diffing.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/sentinel/pkg/compliance"
	"github.com/teslashibe/sentinel/pkg/events"
	"github.com/teslashibe/sentinel/pkg/feed"
	"github.com/teslashibe/sentinel/pkg/incident"
	"github.com/teslashibe/sentinel/pkg/site"
	"github.com/teslashibe/sentinel/pkg/timeline"
)

// Recorder receives pipeline measurements. *metrics.Metrics implements it.
type Recorder interface {
	IncidentCreated(violationType, severity string)
	EventRecorded(eventType string)
	ObserveUpdate(d time.Duration)
	SetActiveWorkers(n int)
	PublishFailed()
}

// Config holds monitor dependencies. Nil fields get defaults.
type Config struct {
	Layout    *site.Layout
	Evaluator *compliance.Evaluator
	Incidents *incident.Store
	Timeline  *timeline.Log
	Publisher events.Publisher
	Recorder  Recorder
	Logger    *slog.Logger
}

// Summary reports what one Update did.
type Summary struct {
	Workers   int
	Events    []timeline.Event
	Incidents []incident.Incident
	Dropped   []string
}

type tracked struct {
	snap    site.WorkerSnapshot
	verdict compliance.Verdict
}

// Monitor is the single owner of live worker state. Update is the only
// way state changes; concurrent Updates are serialized.
type Monitor struct {
	mu      sync.Mutex
	workers map[string]tracked
	order   []string

	layout    *site.Layout
	evaluator *compliance.Evaluator
	incidents *incident.Store
	timeline  *timeline.Log
	differ    *Differ
	publisher events.Publisher
	recorder  Recorder
	logger    *slog.Logger

	statsMu sync.RWMutex
	stats   feed.Stats
}

// New creates a monitor.
func New(cfg Config) *Monitor {
	if cfg.Layout == nil {
		cfg.Layout = site.DefaultLayout()
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = compliance.NewEvaluator(nil)
	}
	if cfg.Incidents == nil {
		cfg.Incidents = incident.NewStore()
	}
	if cfg.Timeline == nil {
		cfg.Timeline = timeline.NewLog(timeline.DefaultCap)
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Monitor{
		workers:   make(map[string]tracked),
		layout:    cfg.Layout,
		evaluator: cfg.Evaluator,
		incidents: cfg.Incidents,
		timeline:  cfg.Timeline,
		differ:    NewDiffer(cfg.Incidents, cfg.Timeline),
		publisher: cfg.Publisher,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		stats:     feed.Stats{SystemStatus: feed.StatusAutonomous},
	}
}

// Update replaces the tracked worker set with batch. Each worker's zone is
// derived from its position before evaluation; workers absent from batch
// are dropped. A worker listed twice is diffed against its earlier entry,
// so the later one wins without firing the edge again. New incidents are
// published after the state lock is released. Incident store failures are
// collected and returned after the whole batch has been processed.
func (m *Monitor) Update(ctx context.Context, batch []site.WorkerSnapshot) (Summary, error) {
	start := time.Now()

	m.mu.Lock()
	sum, err := m.apply(ctx, batch)
	m.mu.Unlock()

	for _, inc := range sum.Incidents {
		m.publish(ctx, inc)
	}

	elapsed := time.Since(start)
	if m.recorder != nil {
		m.recorder.ObserveUpdate(elapsed)
		m.recorder.SetActiveWorkers(sum.Workers)
	}
	return sum, err
}

// apply runs the batch against the tracked state. m.mu must be held.
func (m *Monitor) apply(ctx context.Context, batch []site.WorkerSnapshot) (Summary, error) {
	var (
		sum  Summary
		errs []error
		next = make(map[string]tracked, len(batch))
	)
	order := make([]string, 0, len(batch))

	for _, w := range batch {
		w.Zone = m.layout.Classify(w.Position)
		verdict := m.evaluator.Evaluate(w)

		obs := Observation{Curr: w, Verdict: verdict}
		prev, ok := next[w.ID]
		if !ok {
			prev, ok = m.workers[w.ID]
		}
		if ok {
			obs.Prev = &prev.snap
			obs.PrevVerdict = &prev.verdict
		}

		res, err := m.differ.Diff(ctx, obs)
		if err != nil {
			m.logger.Error("incident not recorded", "worker", w.ID, "error", err)
			errs = append(errs, err)
			// Keep the old verdict so the edge fires again next batch.
			if obs.PrevVerdict != nil {
				verdict = *obs.PrevVerdict
			} else {
				verdict = compliance.Compliant
			}
		}

		if _, dup := next[w.ID]; !dup {
			order = append(order, w.ID)
		}
		next[w.ID] = tracked{snap: w, verdict: verdict}
		sum.Events = append(sum.Events, res.Events...)
		if res.Incident != nil {
			sum.Incidents = append(sum.Incidents, *res.Incident)
		}
		m.recordEvents(res)
	}

	for id := range m.workers {
		if _, ok := next[id]; !ok {
			sum.Dropped = append(sum.Dropped, id)
		}
	}
	sort.Strings(sum.Dropped)

	m.workers = next
	m.order = order
	sum.Workers = len(next)

	m.statsMu.Lock()
	m.stats.ActiveWorkers = sum.Workers
	m.statsMu.Unlock()

	return sum, errors.Join(errs...)
}

func (m *Monitor) publish(ctx context.Context, inc incident.Incident) {
	m.logger.Warn("incident",
		"worker", inc.WorkerID,
		"type", inc.Type,
		"severity", inc.Severity,
		"confidence", inc.Confidence)
	if err := m.publisher.Publish(ctx, inc); err != nil {
		m.logger.Error("publish incident", "incident", inc.ID, "error", err)
		if m.recorder != nil {
			m.recorder.PublishFailed()
		}
	}
}

func (m *Monitor) recordEvents(res Result) {
	if m.recorder == nil {
		return
	}
	for _, e := range res.Events {
		m.recorder.EventRecorded(string(e.Type))
	}
	if res.Incident != nil {
		m.recorder.IncidentCreated(string(res.Incident.Type), string(res.Incident.Severity))
	}
}

// Workers returns the tracked workers in batch order.
func (m *Monitor) Workers() []site.WorkerSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]site.WorkerSnapshot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.workers[id].snap)
	}
	return out
}

// Verdict returns the current verdict for a tracked worker.
func (m *Monitor) Verdict(id string) (compliance.Verdict, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.workers[id]
	return t.verdict, ok
}

// SetStats updates the CPU and latency figures reported in snapshots.
func (m *Monitor) SetStats(cpu, latencyMs float64) {
	m.statsMu.Lock()
	m.stats.CPU = cpu
	m.stats.Latency = latencyMs
	m.statsMu.Unlock()
}

// SetRunning sets the reported system status.
func (m *Monitor) SetRunning(running bool) {
	m.statsMu.Lock()
	if running {
		m.stats.SystemStatus = feed.StatusAutonomous
	} else {
		m.stats.SystemStatus = feed.StatusStopped
	}
	m.statsMu.Unlock()
}

// Stats returns the current stats.
func (m *Monitor) Stats() feed.Stats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	return m.stats
}

// Incidents exposes the incident store for operator commands.
func (m *Monitor) Incidents() *incident.Store { return m.incidents }

// Timeline exposes the event log.
func (m *Monitor) Timeline() *timeline.Log { return m.timeline }

// Layout returns the zone layout.
func (m *Monitor) Layout() *site.Layout { return m.layout }

// Snapshot returns the live feed payload.
func (m *Monitor) Snapshot() feed.Payload {
	return feed.Payload{
		Workers:   m.Workers(),
		Incidents: m.incidents.List(),
		Timeline:  m.timeline.List(),
		Stats:     m.Stats(),
	}
}
