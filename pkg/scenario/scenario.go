// Package scenario produces observation batches without a perception
// pipeline: a seeded random walk for demos and a scripted sequence for
// tests.
package scenario

import (
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/teslashibe/sentinel/pkg/site"
)

// Generator yields the next complete batch of observations.
type Generator interface {
	Next(now time.Time) []site.WorkerSnapshot
}

// Walk parameters.
const (
	StepSize   = 1.5
	MinCoord   = 5.0
	MaxCoord   = 95.0
	EventOdds  = 0.005
	motionOdds = 0.005
)

// InitialWorkers is the starting crew of the random walk.
func InitialWorkers() []site.WorkerSnapshot {
	return []site.WorkerSnapshot{
		{ID: "WK-01", Position: site.Position{X: 20, Y: 20}, PPE: site.PPE{HasHelmet: true, HasVest: true}, Status: site.MotionWorking},
		{ID: "WK-02", Position: site.Position{X: 70, Y: 30}, PPE: site.PPE{HasHelmet: true, HasVest: false}, Status: site.MotionMoving},
		{ID: "WK-03", Position: site.Position{X: 15, Y: 70}, PPE: site.PPE{HasHelmet: false, HasVest: true}, Status: site.MotionStationary},
	}
}

var statuses = []site.MotionStatus{site.MotionMoving, site.MotionStationary, site.MotionWorking}

// RandomWalk jitters each worker by up to StepSize per axis per tick,
// clamps to [MinCoord, MaxCoord], and occasionally drops or restores a
// helmet or changes motion status. Equal seeds give equal sequences.
type RandomWalk struct {
	mu      sync.Mutex
	rng     *rand.Rand
	workers []site.WorkerSnapshot
}

// NewRandomWalk starts a walk from InitialWorkers.
func NewRandomWalk(seed uint64) *RandomWalk {
	return NewRandomWalkFrom(seed, InitialWorkers())
}

// NewRandomWalkFrom starts a walk from workers.
func NewRandomWalkFrom(seed uint64, workers []site.WorkerSnapshot) *RandomWalk {
	return &RandomWalk{
		rng:     rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5)),
		workers: slices.Clone(workers),
	}
}

// Next advances every worker one step.
func (r *RandomWalk) Next(now time.Time) []site.WorkerSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.workers {
		w := &r.workers[i]
		w.X += (r.rng.Float64() - 0.5) * 2 * StepSize
		w.Y += (r.rng.Float64() - 0.5) * 2 * StepSize
		w.Position = w.Position.Clamp(MinCoord, MaxCoord)
		w.LastSeen = now

		switch roll := r.rng.Float64(); {
		case roll > 1-EventOdds && w.HasHelmet:
			w.HasHelmet = false
		case roll < EventOdds && !w.HasHelmet:
			w.HasHelmet = true
		}
		if r.rng.Float64() < motionOdds {
			w.Status = statuses[r.rng.IntN(len(statuses))]
		}
	}
	return slices.Clone(r.workers)
}

// Scripted replays fixed batches in order and then repeats the last one.
// LastSeen is stamped with the tick time.
type Scripted struct {
	mu    sync.Mutex
	steps [][]site.WorkerSnapshot
	next  int
}

// NewScripted creates a generator over steps.
func NewScripted(steps ...[]site.WorkerSnapshot) *Scripted {
	return &Scripted{steps: steps}
}

// Next returns the next scripted batch.
func (s *Scripted) Next(now time.Time) []site.WorkerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.steps) == 0 {
		return nil
	}
	i := min(s.next, len(s.steps)-1)
	if s.next < len(s.steps) {
		s.next++
	}
	batch := slices.Clone(s.steps[i])
	for j := range batch {
		batch[j].LastSeen = now
	}
	return batch
}

// Remaining reports how many scripted steps have not been returned yet.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.next
}
