package playback

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/sentinel/pkg/site"
)

// DefaultTickInterval approximates a display refresh.
const DefaultTickInterval = 33 * time.Millisecond

// PositionSource reports the current playback position in seconds.
// ok is false while nothing is loaded.
type PositionSource interface {
	Position() (seconds float64, ok bool)
}

// Sink receives the worker set of each newly selected frame.
type Sink interface {
	Update(ctx context.Context, workers []site.WorkerSnapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, workers []site.WorkerSnapshot) error

// Update calls f.
func (f SinkFunc) Update(ctx context.Context, workers []site.WorkerSnapshot) error {
	return f(ctx, workers)
}

// Player follows a PositionSource and forwards each frame change to a Sink,
// so recorded video drives the same pipeline as live telemetry.
type Player struct {
	sync   *Synchronizer
	source PositionSource
	sink   Sink
	logger *slog.Logger

	current int
}

// NewPlayer creates a player.
func NewPlayer(s *Synchronizer, src PositionSource, sink Sink, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{sync: s, source: src, sink: sink, logger: logger, current: -1}
}

// Tick samples the position once. It reports whether a frame was forwarded.
// A sink error is returned and the frame is retried on the next tick.
func (p *Player) Tick(ctx context.Context, now time.Time) (bool, error) {
	pos, ok := p.source.Position()
	if !ok {
		return false, nil
	}
	i := p.sync.Index(pos)
	if i < 0 || i == p.current {
		return false, nil
	}

	frame := p.sync.frames[i]
	workers := make([]site.WorkerSnapshot, len(frame.Workers))
	for j, w := range frame.Workers {
		if w.LastSeen.IsZero() {
			w.LastSeen = now
		}
		workers[j] = w
	}
	if err := p.sink.Update(ctx, workers); err != nil {
		return false, err
	}
	p.current = i
	return true, nil
}

// Current returns the index of the last forwarded frame, or -1.
func (p *Player) Current() int { return p.current }

// Run ticks every interval until ctx is cancelled.
func (p *Player) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := p.Tick(ctx, now); err != nil {
				p.logger.Warn("frame not applied", "frame", p.current, "error", err)
			}
		}
	}
}

// Clock is a PositionSource driven by wall time from a start instant, used
// when replaying without a real video element.
type Clock struct {
	start time.Time
	now   func() time.Time
	rate  float64
}

// NewClock starts a playback clock at rate times real time.
func NewClock(rate float64) *Clock {
	if rate <= 0 {
		rate = 1
	}
	return &Clock{start: time.Now(), now: time.Now, rate: rate}
}

// Position returns elapsed seconds scaled by rate.
func (c *Clock) Position() (float64, bool) {
	return c.now().Sub(c.start).Seconds() * c.rate, true
}
