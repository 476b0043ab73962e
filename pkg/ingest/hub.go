// Package ingest accepts worker observation batches from perception
// sources over websocket and applies them to the monitor.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/sentinel/pkg/monitor"
	"github.com/teslashibe/sentinel/pkg/protocol"
	"github.com/teslashibe/sentinel/pkg/site"
)

const applyTimeout = 5 * time.Second

// Applier runs one observation batch. *monitor.Monitor implements it.
type Applier interface {
	Update(ctx context.Context, batch []site.WorkerSnapshot) (monitor.Summary, error)
}

// Recorder counts rejected batches. *metrics.Metrics implements it.
type Recorder interface {
	IngestRejected()
}

// SourceConnection represents a connected perception source
type SourceConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	Batches   uint64

	mu sync.Mutex
}

// Send sends a message to the source
func (s *SourceConnection) Send(msg *protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages websocket connections from perception sources
type Hub struct {
	mu       sync.RWMutex
	sources  map[string]*SourceConnection
	applier  Applier
	recorder Recorder
	logger   *slog.Logger

	onApplied func(sourceID string, sum monitor.Summary, elapsed time.Duration)

	// Serializes batches across sources so updates never overlap.
	applyMu sync.Mutex

	messagesReceived atomic.Uint64
	batchesApplied   atomic.Uint64
	batchesRejected  atomic.Uint64
}

// NewHub creates a hub that applies batches to applier.
func NewHub(applier Applier, recorder Recorder, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sources:  make(map[string]*SourceConnection),
		applier:  applier,
		recorder: recorder,
		logger:   logger.With("component", "ingest"),
	}
}

// OnApplied sets the callback run after each applied batch with the time
// the update took.
func (h *Hub) OnApplied(callback func(sourceID string, sum monitor.Summary, elapsed time.Duration)) {
	h.mu.Lock()
	h.onApplied = callback
	h.mu.Unlock()
}

// RegisterRoutes registers the ingest websocket routes. The caller is
// expected to have installed the /ws upgrade middleware.
func (h *Hub) RegisterRoutes(app fiber.Router) {
	app.Get("/ws/ingest", websocket.New(h.handleSource))
	app.Get("/ws/ingest/:id", websocket.New(h.handleSource))
}

// handleSource handles one source connection
func (h *Hub) handleSource(c *websocket.Conn) {
	sourceID := c.Params("id")
	if sourceID == "" {
		sourceID = uuid.NewString()
	}

	src := &SourceConnection{
		ID:        sourceID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	h.sources[sourceID] = src
	count := len(h.sources)
	h.mu.Unlock()

	h.logger.Info("source connected", "source", sourceID, "sources", count)

	defer func() {
		h.mu.Lock()
		if h.sources[sourceID] == src {
			delete(h.sources, sourceID)
		}
		count := len(h.sources)
		h.mu.Unlock()

		h.logger.Info("source disconnected", "source", sourceID, "sources", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("source read error", "source", sourceID, "error", err)
			return
		}

		src.mu.Lock()
		src.LastSeen = time.Now()
		src.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(src, data)
	}
}

// handleMessage processes one message from a source and replies on the
// same connection.
func (h *Hub) handleMessage(src *SourceConnection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.reject(src, 0, err)
		return
	}

	switch msg.Type {
	case protocol.TypeObservations:
		seq, batch, err := msg.GetObservations()
		if err != nil {
			h.reject(src, seq, err)
			return
		}
		start := time.Now()
		sum, err := h.apply(batch)
		elapsed := time.Since(start)
		if err != nil {
			// The batch itself was applied; only side effects failed.
			h.logger.Warn("batch applied with errors", "source", src.ID, "seq", seq, "error", err)
		}
		h.batchesApplied.Add(1)
		src.mu.Lock()
		src.Batches++
		src.mu.Unlock()

		h.mu.RLock()
		cb := h.onApplied
		h.mu.RUnlock()
		if cb != nil {
			cb(src.ID, sum, elapsed)
		}

		h.reply(src, func() (*protocol.Message, error) {
			return protocol.NewAckMessage(seq, sum.Workers, len(sum.Incidents))
		})

	case protocol.TypePing:
		h.reply(src, func() (*protocol.Message, error) {
			return protocol.NewPongMessage(msg.Timestamp)
		})

	default:
		// Sources have no reason to send ack, error or pong.
	}
}

func (h *Hub) apply(batch []site.WorkerSnapshot) (monitor.Summary, error) {
	h.applyMu.Lock()
	defer h.applyMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()
	return h.applier.Update(ctx, batch)
}

func (h *Hub) reject(src *SourceConnection, seq uint64, err error) {
	h.batchesRejected.Add(1)
	if h.recorder != nil {
		h.recorder.IngestRejected()
	}
	h.logger.Warn("rejected message", "source", src.ID, "seq", seq, "error", err)
	h.reply(src, func() (*protocol.Message, error) {
		return protocol.NewErrorMessage(seq, err)
	})
}

func (h *Hub) reply(src *SourceConnection, build func() (*protocol.Message, error)) {
	msg, err := build()
	if err == nil {
		err = src.Send(msg)
	}
	if err != nil {
		h.logger.Debug("reply failed", "source", src.ID, "error", err)
	}
}

// GetSource returns a source connection by ID
func (h *Hub) GetSource(sourceID string) *SourceConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sources[sourceID]
}

// SourceCount returns the number of connected sources
func (h *Hub) SourceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sources)
}

// Stats contains hub statistics
type Stats struct {
	SourceCount      int    `json:"source_count"`
	MessagesReceived uint64 `json:"messages_received"`
	BatchesApplied   uint64 `json:"batches_applied"`
	BatchesRejected  uint64 `json:"batches_rejected"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		SourceCount:      h.SourceCount(),
		MessagesReceived: h.messagesReceived.Load(),
		BatchesApplied:   h.batchesApplied.Load(),
		BatchesRejected:  h.batchesRejected.Load(),
	}
}

// SourceInfo contains info about a connected source
type SourceInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Batches   uint64    `json:"batches"`
}

// GetSourceInfos returns info about all connected sources
func (h *Hub) GetSourceInfos() []SourceInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]SourceInfo, 0, len(h.sources))
	for _, s := range h.sources {
		s.mu.Lock()
		infos = append(infos, SourceInfo{
			ID:        s.ID,
			Connected: s.Connected,
			LastSeen:  s.LastSeen,
			Batches:   s.Batches,
		})
		s.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for source inspection
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	sources := api.Group("/sources")

	sources.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sources": h.GetSourceInfos(),
			"count":   h.SourceCount(),
		})
	})

	sources.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}
