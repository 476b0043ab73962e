package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	gws "github.com/gorilla/websocket"

	"github.com/teslashibe/sentinel/internal/log"
	"github.com/teslashibe/sentinel/pkg/incident"
	"github.com/teslashibe/sentinel/pkg/monitor"
	"github.com/teslashibe/sentinel/pkg/protocol"
	"github.com/teslashibe/sentinel/pkg/site"
)

type fakeApplier struct {
	mu      sync.Mutex
	batches [][]site.WorkerSnapshot
}

func (f *fakeApplier) Update(_ context.Context, batch []site.WorkerSnapshot) (monitor.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	sum := monitor.Summary{Workers: len(batch)}
	for _, w := range batch {
		if !w.HasHelmet {
			sum.Incidents = append(sum.Incidents, incident.Incident{WorkerID: w.ID})
		}
	}
	return sum, nil
}

func (f *fakeApplier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type countingRecorder struct {
	mu       sync.Mutex
	rejected int
}

func (r *countingRecorder) IngestRejected() {
	r.mu.Lock()
	r.rejected++
	r.mu.Unlock()
}

func (r *countingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rejected
}

func startServer(t *testing.T, h *Hub) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	h.RegisterRoutes(app)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String()
}

func dial(t *testing.T, url string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *gws.Conn) *protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("parse reply %s: %v", data, err)
	}
	return msg
}

func TestNewHub(t *testing.T) {
	hub := NewHub(&fakeApplier{}, nil, log.Discard())

	if hub.SourceCount() != 0 {
		t.Error("SourceCount should be 0 initially")
	}
	stats := hub.GetStats()
	if stats.MessagesReceived != 0 || stats.BatchesApplied != 0 || stats.BatchesRejected != 0 {
		t.Errorf("GetStats() = %+v, want zero", stats)
	}
	if hub.GetSource("nonexistent") != nil {
		t.Error("GetSource should return nil for unknown source")
	}
	if len(hub.GetSourceInfos()) != 0 {
		t.Error("GetSourceInfos should be empty initially")
	}
}

func TestObservationsAreAppliedAndAcked(t *testing.T) {
	applier := &fakeApplier{}
	hub := NewHub(applier, nil, log.Discard())
	applied := make(chan string, 1)
	hub.OnApplied(func(sourceID string, sum monitor.Summary, _ time.Duration) { applied <- sourceID })

	conn := dial(t, startServer(t, hub)+"/ws/ingest/cam-1")

	batch := []site.WorkerSnapshot{
		{ID: "WK-01", Position: site.Position{X: 50, Y: 50}, Status: site.MotionMoving},
		{ID: "WK-02", Position: site.Position{X: 10, Y: 10}, PPE: site.PPE{HasHelmet: true, HasVest: true}, Status: site.MotionWorking},
	}
	msg, _ := protocol.NewObservationsMessage(3, batch)
	data, _ := msg.Bytes()
	if err := conn.WriteMessage(gws.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	reply := readReply(t, conn)
	if reply.Type != protocol.TypeAck {
		t.Fatalf("reply type = %s, want ack", reply.Type)
	}
	var ack protocol.AckData
	if err := json.Unmarshal(reply.Data, &ack); err != nil {
		t.Fatalf("ack data: %v", err)
	}
	if ack.Seq != 3 || ack.Workers != 2 || ack.Incidents != 1 {
		t.Errorf("ack = %+v, want seq 3, 2 workers, 1 incident", ack)
	}

	select {
	case id := <-applied:
		if id != "cam-1" {
			t.Errorf("OnApplied source = %q, want cam-1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnApplied not called")
	}

	if applier.count() != 1 {
		t.Errorf("applied batches = %d, want 1", applier.count())
	}
	infos := hub.GetSourceInfos()
	if len(infos) != 1 || infos[0].ID != "cam-1" || infos[0].Batches != 1 {
		t.Errorf("GetSourceInfos() = %+v, want cam-1 with 1 batch", infos)
	}
	if hub.GetStats().BatchesApplied != 1 {
		t.Errorf("BatchesApplied = %d, want 1", hub.GetStats().BatchesApplied)
	}
}

func TestInvalidMessagesAreRejected(t *testing.T) {
	applier := &fakeApplier{}
	rec := &countingRecorder{}
	hub := NewHub(applier, rec, log.Discard())
	conn := dial(t, startServer(t, hub)+"/ws/ingest")

	inputs := []string{
		`garbage`,
		`{"type":"frame"}`,
		`{"type":"observations","data":{"seq":9,"workers":[{"id":"W","x":120,"y":1,"status":"Moving"}]}}`,
	}
	for _, in := range inputs {
		if err := conn.WriteMessage(gws.TextMessage, []byte(in)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if reply := readReply(t, conn); reply.Type != protocol.TypeError {
			t.Errorf("reply to %q = %s, want error", in, reply.Type)
		}
	}

	if applier.count() != 0 {
		t.Errorf("applied batches = %d, want 0", applier.count())
	}
	if rec.count() != len(inputs) {
		t.Errorf("IngestRejected calls = %d, want %d", rec.count(), len(inputs))
	}
	if hub.GetStats().BatchesRejected != uint64(len(inputs)) {
		t.Errorf("BatchesRejected = %d, want %d", hub.GetStats().BatchesRejected, len(inputs))
	}
}

func TestPingPong(t *testing.T) {
	hub := NewHub(&fakeApplier{}, nil, log.Discard())
	conn := dial(t, startServer(t, hub)+"/ws/ingest")

	if err := conn.WriteMessage(gws.TextMessage, []byte(`{"type":"ping","ts":42}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply := readReply(t, conn)
	if reply.Type != protocol.TypePong {
		t.Fatalf("reply type = %s, want pong", reply.Type)
	}
	var pong protocol.PongData
	_ = reply.ParseData(&pong)
	if pong.PingTS != 42 || pong.ServerTS == 0 {
		t.Errorf("pong = %+v", pong)
	}
}

func TestSourceDisconnectUnregisters(t *testing.T) {
	hub := NewHub(&fakeApplier{}, nil, log.Discard())
	conn := dial(t, startServer(t, hub)+"/ws/ingest/cam-2")

	deadline := time.Now().Add(2 * time.Second)
	for hub.SourceCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("source never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.SourceCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("source never unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAPIRoutes(t *testing.T) {
	hub := NewHub(&fakeApplier{}, nil, log.Discard())
	app := fiber.New()
	hub.RegisterAPIRoutes(app.Group("/api"))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/sources/stats", nil))
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	var stats Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	if stats.SourceCount != 0 {
		t.Errorf("SourceCount = %d, want 0", stats.SourceCount)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/api/sources/", nil))
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
