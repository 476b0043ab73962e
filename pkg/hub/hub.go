package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Hub maintains the set of active clients and broadcasts messages to them.
// The most recent message is kept and sent to every client on join, so a
// dashboard that connects between ticks renders immediately.
type Hub struct {
	name   string
	logger *slog.Logger

	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu      sync.RWMutex
	latest  *Message
	onCount func(int)

	running atomic.Bool
	done    chan struct{}
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// OnClientCount registers fn to be called with the client count whenever
// it changes.
func (h *Hub) OnClientCount(fn func(int)) {
	h.mu.Lock()
	h.onCount = fn
	h.mu.Unlock()
}

// Run starts the hub's main loop and blocks until ctx is done. All clients
// are closed on return. A hub runs once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer close(h.done)
	defer h.running.Store(false)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			latest := h.latest
			h.mu.Unlock()
			if latest != nil {
				select {
				case client.send <- *latest:
				default:
				}
			}
			h.logger.Info("client connected", "clients", count)
			h.countChanged(count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "clients", count)
			h.countChanged(count)

		case message := <-h.broadcast:
			dropped := 0
			h.mu.Lock()
			h.latest = &message
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's buffer is full; drop it.
					close(client.send)
					delete(h.clients, client)
					dropped++
				}
			}
			count := len(h.clients)
			h.mu.Unlock()
			if dropped > 0 {
				h.logger.Warn("dropped slow clients", "dropped", dropped)
				h.countChanged(count)
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	h.countChanged(0)
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) countChanged(n int) {
	h.mu.RLock()
	fn := h.onCount
	h.mu.RUnlock()
	if fn != nil {
		fn(n)
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// Latest returns the last broadcast message, if any.
func (h *Hub) Latest() (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return Message{}, false
	}
	return *h.latest, true
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
