package compliance

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/teslashibe/sentinel/pkg/site"
)

// Confidence bounds used when the perception source attaches none.
const (
	MinSampledConfidence = 0.88
	MaxSampledConfidence = 0.99
)

// ConfidenceSource supplies a confidence for verdicts whose observation
// carries none.
type ConfidenceSource interface {
	Sample() float64
}

// SeededConfidence samples uniformly in [MinSampledConfidence,
// MaxSampledConfidence] from a PCG generator. The same seed always yields
// the same sequence.
type SeededConfidence struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededConfidence creates a deterministic confidence source.
func NewSeededConfidence(seed uint64) *SeededConfidence {
	return &SeededConfidence{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Sample returns the next confidence value.
func (s *SeededConfidence) Sample() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MinSampledConfidence + s.rng.Float64()*(MaxSampledConfidence-MinSampledConfidence)
}

// FixedConfidence always returns the same value.
type FixedConfidence float64

// Sample returns f.
func (f FixedConfidence) Sample() float64 { return float64(f) }

// Evaluator applies the site rules in order; the first matching rule wins:
//
//  1. no helmet                     -> PPE Violation, High
//  2. helmet but no vest            -> PPE Violation, Medium
//  3. moving inside the pit         -> Zone Intrusion, High
//  4. otherwise                     -> None
type Evaluator struct {
	confidence ConfidenceSource
}

// NewEvaluator creates an evaluator. A nil source uses seed 1.
func NewEvaluator(src ConfidenceSource) *Evaluator {
	if src == nil {
		src = NewSeededConfidence(1)
	}
	return &Evaluator{confidence: src}
}

// Evaluate returns the verdict for w. The worker's zone must already be
// classified. Unknown motion statuses panic: callers validate wire input.
func (e *Evaluator) Evaluate(w site.WorkerSnapshot) Verdict {
	if !w.Status.Valid() {
		panic(fmt.Sprintf("compliance: worker %s has unknown status %q", w.ID, w.Status))
	}
	if w.Zone == "" {
		panic(fmt.Sprintf("compliance: worker %s evaluated before zone classification", w.ID))
	}

	switch {
	case !w.HasHelmet:
		return e.violation(w, ViolationPPE, SeverityHigh, "Worker missing helmet")
	case !w.HasVest:
		return e.violation(w, ViolationPPE, SeverityMedium, "Worker missing high-visibility vest")
	case w.Zone == site.ZoneExcavationPit && w.Status == site.MotionMoving:
		return e.violation(w, ViolationZoneIntrusion, SeverityHigh, "Worker moving inside Excavation Pit")
	default:
		return Compliant
	}
}

func (e *Evaluator) violation(w site.WorkerSnapshot, t ViolationType, s Severity, details string) Verdict {
	conf := 0.0
	if w.Confidence != nil {
		conf = *w.Confidence
	} else {
		conf = e.confidence.Sample()
	}
	return Verdict{Type: t, Severity: s, Confidence: conf, Details: details}
}
