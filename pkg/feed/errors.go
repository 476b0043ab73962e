package feed

import (
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned when a pushed message cannot be applied.
var ErrMalformedPayload = errors.New("feed: malformed payload")

// TransportError wraps a websocket failure. Transport errors are recoverable:
// the client reconnects and local state is kept.
type TransportError struct {
	Op  string
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("feed: %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
