package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 30 * time.Second
	readTimeout        = 60 * time.Second
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBackoff overrides the reconnect delays.
func WithBackoff(base, limit time.Duration) ClientOption {
	return func(c *Client) {
		c.baseDelay = base
		c.maxDelay = limit
	}
}

// WithReadTimeout sets how long the connection may stay silent. Server
// pings count as traffic.
func WithReadTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.readTimeout = d }
}

// WithHeader sets headers sent on every dial.
func WithHeader(h http.Header) ClientOption {
	return func(c *Client) { c.header = h }
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// Client reads the live feed websocket into a Consumer, reconnecting with
// exponential backoff until its context is cancelled. Messages are applied
// strictly in delivery order.
type Client struct {
	url      string
	consumer *Consumer
	dialer   websocket.Dialer
	header   http.Header
	logger   *slog.Logger

	baseDelay   time.Duration
	maxDelay    time.Duration
	readTimeout time.Duration
}

// NewClient creates a client for the feed at url.
func NewClient(url string, consumer *Consumer, opts ...ClientOption) *Client {
	c := &Client{
		url:       url,
		consumer:  consumer,
		dialer:    websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:    slog.Default(),
		baseDelay:   reconnectBaseDelay,
		maxDelay:    reconnectMaxDelay,
		readTimeout: readTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "feed.client")
	return c
}

// Run connects and consumes until ctx is done. It returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	delay := c.baseDelay
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.consumer.OnDisconnect(err)
		if connected {
			delay = c.baseDelay
		}
		c.logger.Warn("feed disconnected, reconnecting", "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}

// session runs one connection. connected reports whether the dial succeeded.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("status %d: %w", resp.StatusCode, err)
		}
		return false, &TransportError{Op: "dial", URL: c.url, Err: err}
	}
	defer conn.Close()

	c.consumer.OnConnect()
	c.logger.Info("feed connected", "url", c.url)

	// Unblock ReadMessage when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// An idle feed only carries pings; each one extends the deadline.
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, &TransportError{Op: "read", URL: c.url, Err: err}
		}
		if err := c.consumer.OnMessage(data); err != nil {
			if errors.Is(err, ErrMalformedPayload) {
				c.logger.Warn("dropping malformed payload", "error", err)
				continue
			}
			return true, err
		}
	}
}
