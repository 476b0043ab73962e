package analysis

import (
	"errors"
	"fmt"
)

// Sentinel errors for task outcomes.
var (
	// ErrTaskFailed is set when the service reports the job failed.
	// It is terminal: the poller does not retry.
	ErrTaskFailed = errors.New("analysis: task failed")

	// ErrPollTimeout is set when the job is still running after MaxAttempts polls.
	ErrPollTimeout = errors.New("analysis: gave up polling")

	// ErrMalformedResult is returned when a completed task's result cannot
	// be decoded. The poller treats it as a task failure.
	ErrMalformedResult = errors.New("analysis: malformed result")

	// ErrBusy is returned by Submit while another task is in progress.
	ErrBusy = errors.New("analysis: task already in progress")

	// ErrCancelled is set when the caller tears the poller down mid-task.
	ErrCancelled = errors.New("analysis: cancelled")
)

// APIError is a non-2xx response from the analysis service.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("analysis: API error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound returns true for HTTP 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsServerError returns true for HTTP 5xx.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// TransportError wraps a failed exchange with the service. The task is left
// as it was and the next tick polls again.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("analysis: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

func wrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
