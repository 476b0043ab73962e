package agent

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const cpuMetric = "/cpu/classes/total:cpu-seconds"

// CPUSampler reports process CPU use as a percentage of available cores.
type CPUSampler interface {
	Sample() float64
}

// RuntimeCPU derives CPU use from the Go runtime's own accounting,
// averaged over the interval since the previous sample.
type RuntimeCPU struct {
	mu      sync.Mutex
	samples []metrics.Sample
	lastCPU float64
	lastAt  time.Time
	now     func() time.Time
}

// NewRuntimeCPU creates a sampler. The first Sample returns 0.
func NewRuntimeCPU() *RuntimeCPU {
	return &RuntimeCPU{
		samples: []metrics.Sample{{Name: cpuMetric}},
		now:     time.Now,
	}
}

// Sample returns CPU percent in [0,100].
func (r *RuntimeCPU) Sample() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics.Read(r.samples)
	if r.samples[0].Value.Kind() != metrics.KindFloat64 {
		return 0
	}
	cpu := r.samples[0].Value.Float64()
	at := r.now()

	var pct float64
	if !r.lastAt.IsZero() {
		wall := at.Sub(r.lastAt).Seconds() * float64(runtime.GOMAXPROCS(0))
		if wall > 0 {
			pct = min(max((cpu-r.lastCPU)/wall*100, 0), 100)
		}
	}
	r.lastCPU, r.lastAt = cpu, at
	return pct
}

// FixedCPU always reports the same figure.
type FixedCPU float64

// Sample returns f.
func (f FixedCPU) Sample() float64 { return float64(f) }
