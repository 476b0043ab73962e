package incident

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when an incident id is unknown.
	ErrNotFound = errors.New("incident: not found")

	// ErrValidation is returned for malformed operator input.
	ErrValidation = errors.New("incident: validation failed")
)

// ValidationError describes which field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("incident: invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
