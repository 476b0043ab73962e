package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/sentinel/internal/log"
	"github.com/teslashibe/sentinel/pkg/compliance"
	"github.com/teslashibe/sentinel/pkg/incident"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

func openTemp(t *testing.T) (*DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sentinel.db")
	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, dbPath
}

func sample(id string, at time.Time) incident.Incident {
	return incident.Incident{
		ID:         id,
		Timestamp:  at,
		WorkerID:   "WK-0" + id,
		Type:       compliance.ViolationPPE,
		Severity:   compliance.SeverityHigh,
		Confidence: 0.93,
		Details:    "Worker missing helmet",
		Notes:      []incident.Note{},
	}
}

func TestNewCreatesFile(t *testing.T) {
	_, dbPath := openTemp(t)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}
}

func TestRecentOrderIsInsertionOrder(t *testing.T) {
	db, _ := openTemp(t)
	repo := NewIncidentRepository(db)
	ctx := context.Background()

	// Timestamps deliberately run backwards.
	for i, id := range []string{"1", "2", "3"} {
		if err := repo.Insert(ctx, sample(id, t0.Add(-time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Insert(%s) error: %v", id, err)
		}
	}

	got, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	want := []string{"3", "2", "1"}
	if len(got) != len(want) {
		t.Fatalf("Recent() returned %d incidents, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("Recent()[%d].ID = %s, want %s", i, got[i].ID, want[i])
		}
	}
	if !got[2].Timestamp.Equal(t0) {
		t.Errorf("Timestamp = %v, want %v", got[2].Timestamp, t0)
	}
	if got[0].Type != compliance.ViolationPPE || got[0].Severity != compliance.SeverityHigh {
		t.Errorf("type/severity = %s/%s", got[0].Type, got[0].Severity)
	}

	limited, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "3" {
		t.Errorf("Recent(2) = %+v", limited)
	}
}

func TestAcknowledgeAndNotes(t *testing.T) {
	db, _ := openTemp(t)
	repo := NewIncidentRepository(db)
	ctx := context.Background()

	if err := repo.Insert(ctx, sample("1", t0)); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if err := repo.Acknowledge(ctx, "1"); err != nil {
		t.Fatalf("Acknowledge error: %v", err)
	}
	notes := []incident.Note{
		{Timestamp: t0.Add(time.Second), Content: "first"},
		{Timestamp: t0.Add(2 * time.Second), Content: "second"},
	}
	for _, n := range notes {
		if err := repo.AppendNote(ctx, "1", n); err != nil {
			t.Fatalf("AppendNote error: %v", err)
		}
	}

	got, err := repo.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if !got[0].Acknowledged {
		t.Error("Acknowledged = false")
	}
	if len(got[0].Notes) != 2 || got[0].Notes[0].Content != "first" || got[0].Notes[1].Content != "second" {
		t.Errorf("Notes = %+v", got[0].Notes)
	}
	if !got[0].Notes[1].Timestamp.Equal(notes[1].Timestamp) {
		t.Errorf("note timestamp = %v, want %v", got[0].Notes[1].Timestamp, notes[1].Timestamp)
	}
}

func TestUnknownIncident(t *testing.T) {
	db, _ := openTemp(t)
	repo := NewIncidentRepository(db)
	ctx := context.Background()

	if err := repo.Acknowledge(ctx, "missing"); !errors.Is(err, incident.ErrNotFound) {
		t.Errorf("Acknowledge(missing) = %v, want ErrNotFound", err)
	}
	if err := repo.AppendNote(ctx, "missing", incident.Note{Timestamp: t0, Content: "x"}); !errors.Is(err, incident.ErrNotFound) {
		t.Errorf("AppendNote(missing) = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing) = %v, want nil", err)
	}
}

func TestDeleteRemovesNotes(t *testing.T) {
	db, _ := openTemp(t)
	repo := NewIncidentRepository(db)
	ctx := context.Background()

	inc := sample("1", t0)
	inc.Notes = []incident.Note{{Timestamp: t0, Content: "pre"}}
	if err := repo.Insert(ctx, inc); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if err := repo.Delete(ctx, "1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 0 {
		t.Errorf("Count() = %d, %v; want 0", n, err)
	}
	var notes int
	if err := db.Conn().QueryRow(`SELECT COUNT(1) FROM incident_notes`).Scan(&notes); err != nil {
		t.Fatalf("count notes: %v", err)
	}
	if notes != 0 {
		t.Errorf("orphaned notes = %d, want 0", notes)
	}
}

func TestDuplicateInsertFails(t *testing.T) {
	db, _ := openTemp(t)
	repo := NewIncidentRepository(db)
	ctx := context.Background()

	if err := repo.Insert(ctx, sample("1", t0)); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if err := repo.Insert(ctx, sample("1", t0)); err == nil {
		t.Error("second Insert with same id succeeded")
	}
}

func TestStoreSurvivesReload(t *testing.T) {
	_, dbPath := openTemp(t)
	ctx := context.Background()

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store := incident.NewStore(
		incident.WithRepository(NewIncidentRepository(db)),
		incident.WithCap(2),
		incident.WithLogger(log.Discard()))

	var ids []string
	for _, w := range []string{"WK-01", "WK-02", "WK-03"} {
		inc, err := store.Add(ctx, incident.Draft{
			WorkerID: w,
			Verdict:  compliance.Verdict{Type: compliance.ViolationZoneIntrusion, Severity: compliance.SeverityHigh, Confidence: 0.9},
		})
		if err != nil {
			t.Fatalf("Add error: %v", err)
		}
		ids = append(ids, inc.ID)
	}
	if err := store.Resolve(ctx, ids[2]); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if _, err := store.AddNote(ctx, ids[1], "checked"); err != nil {
		t.Fatalf("AddNote error: %v", err)
	}
	db.Close()

	db2, err := New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	reloaded := incident.NewStore(
		incident.WithRepository(NewIncidentRepository(db2)),
		incident.WithCap(2),
		incident.WithLogger(log.Discard()))
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	got := reloaded.List()
	if len(got) != 2 {
		t.Fatalf("reloaded %d incidents, want 2", len(got))
	}
	if got[0].ID != ids[2] || got[1].ID != ids[1] {
		t.Errorf("order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, ids[2], ids[1])
	}
	if !got[0].Acknowledged {
		t.Error("acknowledgement lost on reload")
	}
	if len(got[1].Notes) != 1 || got[1].Notes[0].Content != "checked" {
		t.Errorf("notes lost on reload: %+v", got[1].Notes)
	}
}
