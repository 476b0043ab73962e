// Package compliance turns a worker observation into a violation verdict.
package compliance

import "fmt"

// ViolationType classifies what rule a worker broke.
type ViolationType string

const (
	ViolationNone          ViolationType = "None"
	ViolationPPE           ViolationType = "PPE Violation"
	ViolationZoneIntrusion ViolationType = "Zone Intrusion"
	ViolationUnsafePosture ViolationType = "Unsafe Posture"
)

// Valid reports whether t is a known type.
func (t ViolationType) Valid() bool {
	switch t {
	case ViolationNone, ViolationPPE, ViolationZoneIntrusion, ViolationUnsafePosture:
		return true
	}
	return false
}

// UnmarshalText rejects unknown violation types.
func (t *ViolationType) UnmarshalText(text []byte) error {
	v := ViolationType(text)
	if !v.Valid() {
		return fmt.Errorf("compliance: unknown violation type %q", text)
	}
	*t = v
	return nil
}

// Severity ranks a violation.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// UnmarshalText rejects unknown severities.
func (s *Severity) UnmarshalText(text []byte) error {
	v := Severity(text)
	if !v.Valid() {
		return fmt.Errorf("compliance: unknown severity %q", text)
	}
	*s = v
	return nil
}

// Verdict is the compliance classification of one observation.
// Severity and Confidence are zero when Type is ViolationNone.
type Verdict struct {
	Type       ViolationType `json:"type"`
	Severity   Severity      `json:"severity,omitempty"`
	Confidence float64       `json:"confidence"`
	Details    string        `json:"details,omitempty"`
}

// Compliant is the verdict for a worker breaking no rule.
var Compliant = Verdict{Type: ViolationNone}

// IsViolation reports whether the verdict flags a rule break.
func (v Verdict) IsViolation() bool {
	return v.Type != ViolationNone && v.Type != ""
}
