package compliance

import (
	"encoding/json"
	"testing"

	"github.com/teslashibe/sentinel/pkg/site"
)

func worker(helmet, vest bool, zone site.ZoneID, status site.MotionStatus) site.WorkerSnapshot {
	return site.WorkerSnapshot{
		ID:     "WK-01",
		PPE:    site.PPE{HasHelmet: helmet, HasVest: vest},
		Zone:   zone,
		Status: status,
	}
}

func TestEvaluateRules(t *testing.T) {
	e := NewEvaluator(FixedConfidence(0.9))

	tests := []struct {
		name     string
		w        site.WorkerSnapshot
		wantType ViolationType
		wantSev  Severity
	}{
		{"no helmet beats everything", worker(false, true, site.ZoneSafe, site.MotionWorking), ViolationPPE, SeverityHigh},
		{"no helmet no vest in pit", worker(false, false, site.ZoneExcavationPit, site.MotionMoving), ViolationPPE, SeverityHigh},
		{"no vest", worker(true, false, site.ZoneSafe, site.MotionWorking), ViolationPPE, SeverityMedium},
		{"no vest moving in pit", worker(true, false, site.ZoneExcavationPit, site.MotionMoving), ViolationPPE, SeverityMedium},
		{"moving in pit", worker(true, true, site.ZoneExcavationPit, site.MotionMoving), ViolationZoneIntrusion, SeverityHigh},
		{"working in pit", worker(true, true, site.ZoneExcavationPit, site.MotionWorking), ViolationNone, ""},
		{"moving on dock", worker(true, true, site.ZoneLoadingDock, site.MotionMoving), ViolationNone, ""},
		{"compliant", worker(true, true, site.ZoneSafe, site.MotionWorking), ViolationNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate(tt.w)
			if got.Type != tt.wantType || got.Severity != tt.wantSev {
				t.Errorf("Evaluate() = {%s %s}, want {%s %s}", got.Type, got.Severity, tt.wantType, tt.wantSev)
			}
			if got.IsViolation() != (tt.wantType != ViolationNone) {
				t.Errorf("IsViolation() = %v for %s", got.IsViolation(), got.Type)
			}
		})
	}
}

func TestEvaluateUsesUpstreamConfidence(t *testing.T) {
	e := NewEvaluator(FixedConfidence(0.5))
	w := worker(false, true, site.ZoneSafe, site.MotionWorking)
	c := 0.73
	w.Confidence = &c

	if got := e.Evaluate(w).Confidence; got != 0.73 {
		t.Errorf("Confidence = %v, want upstream 0.73", got)
	}
}

func TestSeededConfidenceDeterministicAndBounded(t *testing.T) {
	a := NewSeededConfidence(7)
	b := NewSeededConfidence(7)

	for i := 0; i < 1000; i++ {
		va, vb := a.Sample(), b.Sample()
		if va != vb {
			t.Fatalf("sample %d differs: %v vs %v", i, va, vb)
		}
		if va < MinSampledConfidence || va > MaxSampledConfidence {
			t.Fatalf("sample %d = %v outside [%v,%v]", i, va, MinSampledConfidence, MaxSampledConfidence)
		}
	}
}

func TestSeededConfidenceSeedsDiffer(t *testing.T) {
	a := NewSeededConfidence(1)
	b := NewSeededConfidence(2)
	if a.Sample() == b.Sample() && a.Sample() == b.Sample() {
		t.Error("different seeds produced identical sequences")
	}
}

func TestEvaluatePanicsOnUnknownStatus(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Evaluate should panic on unknown status")
		}
	}()
	NewEvaluator(nil).Evaluate(worker(true, true, site.ZoneSafe, "Flying"))
}

func TestViolationTypeUnmarshal(t *testing.T) {
	var v struct {
		Type     ViolationType `json:"type"`
		Severity Severity      `json:"severity"`
	}
	if err := json.Unmarshal([]byte(`{"type":"Zone Intrusion","severity":"High"}`), &v); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if v.Type != ViolationZoneIntrusion || v.Severity != SeverityHigh {
		t.Errorf("got %+v", v)
	}
	if err := json.Unmarshal([]byte(`{"type":"Trespass"}`), &v); err == nil {
		t.Error("Unmarshal accepted unknown type")
	}
	if err := json.Unmarshal([]byte(`{"severity":"Extreme"}`), &v); err == nil {
		t.Error("Unmarshal accepted unknown severity")
	}
}
