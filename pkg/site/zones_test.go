package site

import (
	"encoding/json"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	layout := DefaultLayout()

	tests := []struct {
		name string
		pos  Position
		want ZoneID
	}{
		{"loading dock", Position{X: 70, Y: 20}, ZoneLoadingDock},
		{"excavation pit", Position{X: 10, Y: 60}, ZoneExcavationPit},
		{"open ground", Position{X: 50, Y: 50}, ZoneSafe},
		{"dock corner inclusive", Position{X: 60, Y: 10}, ZoneLoadingDock},
		{"dock far edge inclusive", Position{X: 95, Y: 50}, ZoneLoadingDock},
		{"just outside dock", Position{X: 59.9, Y: 20}, ZoneSafe},
		{"pit far corner", Position{X: 45, Y: 90}, ZoneExcavationPit},
		{"origin", Position{X: 0, Y: 0}, ZoneSafe},
		{"far corner", Position{X: 100, Y: 100}, ZoneSafe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := layout.Classify(tt.pos); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.pos, got, tt.want)
			}
		})
	}
}

func TestClassifyTotalOverGrid(t *testing.T) {
	layout := DefaultLayout()
	for x := 0.0; x <= 100; x += 2.5 {
		for y := 0.0; y <= 100; y += 2.5 {
			p := Position{X: x, Y: y}
			got := layout.Classify(p)
			if !layout.Has(got) {
				t.Fatalf("Classify(%v) = %q, not a layout zone", p, got)
			}
			if again := layout.Classify(p); again != got {
				t.Fatalf("Classify(%v) not deterministic: %q then %q", p, got, again)
			}
		}
	}
}

func TestClassifyPriorityOnOverlap(t *testing.T) {
	layout, err := NewLayout(
		Zone{ID: "Crane Swing", Rect: Rect{X: 0, Y: 0, W: 50, H: 50}},
		Zone{ID: "Scaffold", Rect: Rect{X: 25, Y: 25, W: 50, H: 50}},
	)
	if err != nil {
		t.Fatalf("NewLayout error: %v", err)
	}

	if got := layout.Classify(Position{X: 30, Y: 30}); got != "Crane Swing" {
		t.Errorf("overlap = %q, want first declared zone", got)
	}
	if got := layout.Classify(Position{X: 60, Y: 60}); got != "Scaffold" {
		t.Errorf("second zone = %q, want Scaffold", got)
	}
}

func TestNewLayoutRejects(t *testing.T) {
	tests := []struct {
		name  string
		zones []Zone
	}{
		{"safe reserved", []Zone{{ID: ZoneSafe, Rect: Rect{W: 1, H: 1}}}},
		{"empty id", []Zone{{Rect: Rect{W: 1, H: 1}}}},
		{"zero width", []Zone{{ID: "A", Rect: Rect{W: 0, H: 1}}}},
		{"duplicate", []Zone{{ID: "A", Rect: Rect{W: 1, H: 1}}, {ID: "A", Rect: Rect{W: 2, H: 2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLayout(tt.zones...); err == nil {
				t.Error("NewLayout() = nil error, want error")
			}
		})
	}
}

func TestZonesIncludesSafeBackground(t *testing.T) {
	zones := DefaultLayout().Zones()
	if len(zones) != 3 {
		t.Fatalf("len(Zones) = %d, want 3", len(zones))
	}
	if zones[0].ID != ZoneSafe || zones[0].W != 100 || zones[0].H != 100 {
		t.Errorf("Zones()[0] = %+v, want full-frame Safe", zones[0])
	}
}

func TestWorkerSnapshotJSONIsFlat(t *testing.T) {
	w := WorkerSnapshot{
		ID:       "WK-01",
		Position: Position{X: 20, Y: 30},
		PPE:      PPE{HasHelmet: true},
		Zone:     ZoneSafe,
		Status:   MotionWorking,
		LastSeen: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	for _, key := range []string{"id", "x", "y", "hasHelmet", "hasVest", "zone", "status", "lastSeen"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("JSON missing key %q: %s", key, data)
		}
	}
	if _, ok := raw["confidence"]; ok {
		t.Errorf("confidence should be omitted when nil: %s", data)
	}
}

func TestDecodeBatchRejectsBadStatus(t *testing.T) {
	_, err := DecodeBatch([]byte(`[{"id":"WK-01","x":1,"y":1,"status":"Flying"}]`))
	if err == nil {
		t.Fatal("DecodeBatch() = nil error, want unknown status error")
	}
}

func TestDecodeBatchRejectsOutOfRange(t *testing.T) {
	_, err := DecodeBatch([]byte(`[{"id":"WK-01","x":101,"y":1,"status":"Moving"}]`))
	if err == nil {
		t.Fatal("DecodeBatch() = nil error, want position error")
	}
}

func TestDecodeBatch(t *testing.T) {
	batch, err := DecodeBatch([]byte(`[{"id":"WK-01","x":10,"y":60,"hasHelmet":true,"hasVest":true,"status":"Moving","confidence":0.9}]`))
	if err != nil {
		t.Fatalf("DecodeBatch error: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("len = %d, want 1", len(batch))
	}
	if batch[0].Confidence == nil || *batch[0].Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", batch[0].Confidence)
	}
	if batch[0].Status != MotionMoving {
		t.Errorf("Status = %q, want Moving", batch[0].Status)
	}
}

func TestPositionClamp(t *testing.T) {
	p := Position{X: -3, Y: 120}.Clamp(5, 95)
	if p.X != 5 || p.Y != 95 {
		t.Errorf("Clamp = %+v, want {5 95}", p)
	}
}

func TestDecodeBatchRejectsDuplicateIDs(t *testing.T) {
	_, err := DecodeBatch([]byte(`[
		{"id":"WK-01","x":10,"y":60,"status":"Moving"},
		{"id":"WK-01","x":11,"y":60,"status":"Moving"}
	]`))
	if err == nil {
		t.Fatal("DecodeBatch() = nil error, want duplicate id error")
	}
}

func TestLastSeenFormats(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", `"2025-01-01T12:00:00.5Z"`, time.Date(2025, 1, 1, 12, 0, 0, 500_000_000, time.UTC)},
		{"offset", `"2025-01-01T14:00:00+02:00"`, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"naive micros", `"2025-01-01T12:00:00.123456"`, time.Date(2025, 1, 1, 12, 0, 0, 123_456_000, time.UTC)},
		{"naive seconds", `"2025-01-01T12:00:00"`, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"space separator", `"2025-01-01 12:00:00.25"`, time.Date(2025, 1, 1, 12, 0, 0, 250_000_000, time.UTC)},
		{"missing", `null`, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte(`{"id":"WK-01","x":10,"y":60,"hasHelmet":true,"status":"Moving","lastSeen":` + tt.in + `}`)
			var w WorkerSnapshot
			if err := json.Unmarshal(data, &w); err != nil {
				t.Fatalf("Unmarshal error: %v", err)
			}
			if !w.LastSeen.Equal(tt.want) {
				t.Errorf("LastSeen = %v, want %v", w.LastSeen, tt.want)
			}
			if w.ID != "WK-01" || w.X != 10 || !w.HasHelmet || w.Status != MotionMoving {
				t.Errorf("other fields lost: %+v", w)
			}
		})
	}
}

func TestLastSeenRejectsGarbage(t *testing.T) {
	var w WorkerSnapshot
	if err := json.Unmarshal([]byte(`{"id":"WK-01","status":"Moving","lastSeen":"yesterday"}`), &w); err == nil {
		t.Error("Unmarshal() = nil error, want lastSeen error")
	}
}

func TestLastSeenRoundTrip(t *testing.T) {
	in := WorkerSnapshot{ID: "WK-02", Status: MotionWorking, LastSeen: time.Date(2025, 3, 4, 5, 6, 7, 8, time.UTC)}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var out WorkerSnapshot
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !out.LastSeen.Equal(in.LastSeen) {
		t.Errorf("LastSeen = %v, want %v", out.LastSeen, in.LastSeen)
	}
}
