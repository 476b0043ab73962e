package feed

import (
	"sync"
	"time"
)

// View is what a dashboard renders: the last applied payload plus
// connection state. Paused and Connected are derived, never pushed.
type View struct {
	Payload
	Connected bool
	Paused    bool
	UpdatedAt time.Time
	LastError error
}

// Consumer applies pushed snapshots. Every accepted message replaces the
// whole view; nothing is merged with earlier state.
type Consumer struct {
	mu       sync.RWMutex
	view     View
	now      func() time.Time
	onUpdate func(View)
}

// NewConsumer creates a consumer with an empty, disconnected view.
func NewConsumer() *Consumer {
	return &Consumer{now: time.Now}
}

// OnUpdate registers fn to be called with each new view. fn runs with no
// locks held.
func (c *Consumer) OnUpdate(fn func(View)) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// OnMessage decodes and applies one pushed message. Malformed messages are
// rejected with ErrMalformedPayload and leave the view untouched.
func (c *Consumer) OnMessage(data []byte) error {
	p, err := Decode(data)
	if err != nil {
		return err
	}
	c.Apply(p)
	return nil
}

// Apply replaces the view with p.
func (c *Consumer) Apply(p Payload) {
	c.mu.Lock()
	c.view.Payload = p
	c.view.Paused = p.Stats.Paused()
	c.view.Connected = true
	c.view.UpdatedAt = c.now()
	c.view.LastError = nil
	v, fn := c.view, c.onUpdate
	c.mu.Unlock()

	if fn != nil {
		fn(v)
	}
}

// OnConnect marks the feed live.
func (c *Consumer) OnConnect() {
	c.setConnected(true, nil)
}

// OnDisconnect marks the feed offline and keeps the last payload so the
// display goes stale instead of blank.
func (c *Consumer) OnDisconnect(err error) {
	c.setConnected(false, err)
}

func (c *Consumer) setConnected(connected bool, err error) {
	c.mu.Lock()
	c.view.Connected = connected
	c.view.LastError = err
	v, fn := c.view, c.onUpdate
	c.mu.Unlock()

	if fn != nil {
		fn(v)
	}
}

// View returns the current view.
func (c *Consumer) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Stale reports whether the view is being shown while offline.
func (c *Consumer) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.view.Connected && !c.view.UpdatedAt.IsZero()
}
