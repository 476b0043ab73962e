package analysis

import (
	"log/slog"
	"time"

	"github.com/teslashibe/sentinel/internal/httpc"
)

// Config holds poller and HTTP backend configuration.
type Config struct {
	// BaseURL of the analysis service, e.g. "http://localhost:8000".
	BaseURL string

	// Polling
	Interval    time.Duration
	MaxAttempts int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// Observer is told about every poll outcome. Optional.
	Observer PollObserver

	Logger *slog.Logger
}

// PollObserver receives poll outcomes ("ok", "error", "timeout").
// *metrics.Metrics implements it.
type PollObserver interface {
	PollCompleted(outcome string)
}

// Option is a functional option for configuring the poller and backend.
type Option func(*Config)

// WithBaseURL sets the service base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(c *Config) { c.Interval = d }
}

// WithMaxAttempts bounds the number of status polls per task.
func WithMaxAttempts(n int) Option {
	return func(c *Config) { c.MaxAttempts = n }
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithObserver sets the poll observer.
func WithObserver(o PollObserver) Option {
	return func(c *Config) { c.Observer = o }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig polls once a second for up to ten minutes.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "http://localhost:8000",
		Interval:    time.Second,
		MaxAttempts: 600,
		Timeout:     httpc.DefaultTimeout,
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
