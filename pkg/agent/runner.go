// Package agent drives the monitor from a scenario generator and pushes
// each resulting snapshot to live feed clients.
package agent

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/sentinel/pkg/hub"
	"github.com/teslashibe/sentinel/pkg/monitor"
	"github.com/teslashibe/sentinel/pkg/scenario"
)

// DefaultInterval matches the dashboard's refresh cadence.
const DefaultInterval = 600 * time.Millisecond

// Broadcaster delivers encoded snapshots. *hub.Hub implements it.
type Broadcaster interface {
	Broadcast(msg hub.Message)
}

// Recorder mirrors the running flag. *metrics.Metrics implements it.
type Recorder interface {
	SetRunning(running bool)
}

// Option configures a Runner.
type Option func(*Runner)

// WithGenerator sets the observation source. Without one the runner only
// publishes, which is how ingest mode uses it.
func WithGenerator(g scenario.Generator) Option {
	return func(r *Runner) { r.gen = g }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithCPU sets the CPU sampler.
func WithCPU(s CPUSampler) Option {
	return func(r *Runner) { r.cpu = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// Runner owns the monitoring loop. It starts in the running state.
type Runner struct {
	mon      *monitor.Monitor
	out      Broadcaster
	gen      scenario.Generator
	recorder Recorder
	cpu      CPUSampler
	logger   *slog.Logger

	running atomic.Bool
	tickMu  sync.Mutex
}

// NewRunner creates a runner that updates mon and broadcasts to out.
func NewRunner(mon *monitor.Monitor, out Broadcaster, opts ...Option) *Runner {
	r := &Runner{
		mon:    mon,
		out:    out,
		cpu:    NewRuntimeCPU(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "agent")
	r.setRunning(true)
	return r
}

// Start resumes analysis. It is a no-op when already running.
func (r *Runner) Start() {
	if r.running.Load() {
		return
	}
	r.setRunning(true)
	r.logger.Info("analysis started")
	r.Publish()
}

// Stop pauses analysis. Tracked state is kept and still served.
func (r *Runner) Stop() {
	if !r.running.Load() {
		return
	}
	r.setRunning(false)
	r.logger.Info("analysis stopped")
	r.Publish()
}

// Running reports whether ticks update the monitor.
func (r *Runner) Running() bool {
	return r.running.Load()
}

func (r *Runner) setRunning(running bool) {
	r.running.Store(running)
	r.mon.SetRunning(running)
	if r.recorder != nil {
		r.recorder.SetRunning(running)
	}
}

// Tick pulls one batch from the generator, applies it and broadcasts the
// snapshot. It reports whether an update happened. Ticks never overlap.
func (r *Runner) Tick(ctx context.Context, now time.Time) (bool, error) {
	if !r.running.Load() || r.gen == nil {
		return false, nil
	}

	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	batch := r.gen.Next(now)
	start := time.Now()
	sum, err := r.mon.Update(ctx, batch)
	r.Observed(time.Since(start))

	if len(sum.Incidents) > 0 || len(sum.Dropped) > 0 {
		r.logger.Debug("tick",
			"workers", sum.Workers,
			"events", len(sum.Events),
			"incidents", len(sum.Incidents),
			"dropped", sum.Dropped)
	}
	r.Publish()
	return true, err
}

// Observed records the latency of an update that happened outside Tick and
// refreshes the CPU figure.
func (r *Runner) Observed(latency time.Duration) {
	r.mon.SetStats(r.cpu.Sample(), float64(latency.Microseconds())/1000)
}

// Publish broadcasts the current snapshot.
func (r *Runner) Publish() {
	data, err := r.mon.Snapshot().Encode()
	if err != nil {
		r.logger.Error("encode snapshot", "error", err)
		return
	}
	r.out.Broadcast(hub.NewJSONMessage(data))
}

// Run ticks every interval until ctx is done. Update errors are logged;
// the loop keeps going.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.Publish()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := r.Tick(ctx, now); err != nil {
				r.logger.Warn("tick failed", "error", err)
			}
		}
	}
}
