package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/sentinel/pkg/compliance"
	"github.com/teslashibe/sentinel/pkg/incident"
)

// IncidentRepository implements incident.Repository for SQLite.
type IncidentRepository struct {
	db *DB
}

var _ incident.Repository = (*IncidentRepository)(nil)

// NewIncidentRepository creates a new SQLite incident repository.
func NewIncidentRepository(db *DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Insert adds an incident and any notes it already carries.
func (r *IncidentRepository) Insert(ctx context.Context, inc incident.Incident) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO incidents (id, timestamp, worker_id, type, severity, confidence, details, acknowledged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, inc.ID, formatTime(inc.Timestamp), inc.WorkerID, string(inc.Type), string(inc.Severity),
		inc.Confidence, inc.Details, inc.Acknowledged)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}

	for _, n := range inc.Notes {
		if err := insertNote(ctx, tx, inc.ID, n); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Acknowledge marks an incident acknowledged.
func (r *IncidentRepository) Acknowledge(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	res, err := r.db.conn.ExecContext(ctx, `UPDATE incidents SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge incident: %w", err)
	}
	return requireRow(res, id)
}

// Delete removes an incident and its notes. Unknown ids are not an error.
func (r *IncidentRepository) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM incident_notes WHERE incident_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete notes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM incidents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete incident: %w", err)
	}
	return tx.Commit()
}

// AppendNote adds a note to an incident.
func (r *IncidentRepository) AppendNote(ctx context.Context, id string, note incident.Note) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var exists int
	err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM incidents WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up incident: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", incident.ErrNotFound, id)
	}

	_, err = r.db.conn.ExecContext(ctx, `
		INSERT INTO incident_notes (incident_id, timestamp, content) VALUES (?, ?, ?)
	`, id, formatTime(note.Timestamp), note.Content)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertNote(ctx context.Context, tx execer, id string, n incident.Note) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO incident_notes (incident_id, timestamp, content) VALUES (?, ?, ?)
	`, id, formatTime(n.Timestamp), n.Content)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", incident.ErrNotFound, id)
	}
	return nil
}

// Recent returns up to limit incidents, newest inserted first, with their
// notes in insertion order.
func (r *IncidentRepository) Recent(ctx context.Context, limit int) ([]incident.Incident, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, timestamp, worker_id, type, severity, confidence, details, acknowledged
		FROM incidents ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var (
		out   []incident.Incident
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			inc      incident.Incident
			ts       string
			typ, sev string
		)
		if err := rows.Scan(&inc.ID, &ts, &inc.WorkerID, &typ, &sev, &inc.Confidence, &inc.Details, &inc.Acknowledged); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		if inc.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("incident %s: bad timestamp %q: %w", inc.ID, ts, err)
		}
		inc.Type = compliance.ViolationType(typ)
		inc.Severity = compliance.Severity(sev)
		inc.Notes = []incident.Note{}
		index[inc.ID] = len(out)
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate incidents: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	if err := r.attachNotes(ctx, out, index); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *IncidentRepository) attachNotes(ctx context.Context, out []incident.Incident, index map[string]int) error {
	ids := make([]any, 0, len(out))
	for _, inc := range out {
		ids = append(ids, inc.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT incident_id, timestamp, content FROM incident_notes
		WHERE incident_id IN (`+placeholders+`) ORDER BY seq ASC
	`, ids...)
	if err != nil {
		return fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, ts string
		var n incident.Note
		if err := rows.Scan(&id, &ts, &n.Content); err != nil {
			return fmt.Errorf("failed to scan note: %w", err)
		}
		if n.Timestamp, err = parseTime(ts); err != nil {
			return fmt.Errorf("note on %s: bad timestamp %q: %w", id, ts, err)
		}
		i := index[id]
		out[i].Notes = append(out[i].Notes, n)
	}
	return rows.Err()
}

// Count returns the number of stored incidents.
func (r *IncidentRepository) Count(ctx context.Context) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var n int
	if err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM incidents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count incidents: %w", err)
	}
	return n, nil
}
