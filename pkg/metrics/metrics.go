// Package metrics exposes Prometheus collectors for the monitor.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application collectors on a private registry.
type Metrics struct {
	incidents    *prometheus.CounterVec
	events       *prometheus.CounterVec
	updateTime   prometheus.Histogram
	ingestErrors prometheus.Counter
	publishFails prometheus.Counter
	polls        *prometheus.CounterVec

	activeWorkers atomic.Int64
	feedClients   atomic.Int64
	running       atomic.Bool

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		incidents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_incidents_total",
			Help: "Incidents created by violation type and severity.",
		}, []string{"type", "severity"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_timeline_events_total",
			Help: "Timeline events recorded by type.",
		}, []string{"type"}),
		updateTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_update_duration_seconds",
			Help:    "Time spent classifying, evaluating and diffing one observation batch.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		ingestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_ingest_errors_total",
			Help: "Observation batches rejected as malformed.",
		}),
		publishFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_publish_errors_total",
			Help: "Incident events that failed to publish.",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_analysis_polls_total",
			Help: "Analysis status polls by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.incidents,
		m.events,
		m.updateTime,
		m.ingestErrors,
		m.publishFails,
		m.polls,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "sentinel_active_workers",
			Help: "Workers in the most recent observation batch.",
		}, func() float64 { return float64(m.activeWorkers.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "sentinel_feed_clients",
			Help: "Connected live feed clients.",
		}, func() float64 { return float64(m.feedClients.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "sentinel_analysis_running",
			Help: "1 while the monitoring agent is running, 0 when stopped.",
		}, func() float64 {
			if m.running.Load() {
				return 1
			}
			return 0
		}),
	)

	return m
}

// IncidentCreated counts a new incident.
func (m *Metrics) IncidentCreated(violationType, severity string) {
	m.incidents.WithLabelValues(violationType, severity).Inc()
}

// EventRecorded counts a timeline event.
func (m *Metrics) EventRecorded(eventType string) {
	m.events.WithLabelValues(eventType).Inc()
}

// ObserveUpdate records the duration of one monitor update.
func (m *Metrics) ObserveUpdate(d time.Duration) {
	m.updateTime.Observe(d.Seconds())
}

// SetActiveWorkers sets the tracked worker gauge.
func (m *Metrics) SetActiveWorkers(n int) {
	m.activeWorkers.Store(int64(n))
}

// SetFeedClients sets the connected client gauge.
func (m *Metrics) SetFeedClients(n int) {
	m.feedClients.Store(int64(n))
}

// SetRunning records whether the agent is running.
func (m *Metrics) SetRunning(running bool) {
	m.running.Store(running)
}

// IngestRejected counts a malformed ingest batch.
func (m *Metrics) IngestRejected() {
	m.ingestErrors.Inc()
}

// PublishFailed counts a failed incident publish.
func (m *Metrics) PublishFailed() {
	m.publishFails.Inc()
}

// PollCompleted counts an analysis status poll by outcome
// ("ok", "error", "timeout").
func (m *Metrics) PollCompleted(outcome string) {
	m.polls.WithLabelValues(outcome).Inc()
}

// Registry exposes the underlying registry, for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
