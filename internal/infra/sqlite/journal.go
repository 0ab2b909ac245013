// Journal schema and operations.
// Every completed façade operation and every slot lifecycle transition is
// appended here. The daemon reads it back for `saira history` and to
// restore resident models on start.
package sqlite

import (
	"fmt"
	"time"

	"github.com/saira-network/saira/internal/domain"
)

// timeLayout is fixed-width so TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ─── Journal Schema ─────────────────────────────────────────────────────────

// JournalMigrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func JournalMigrations() []string {
	return []string{
		// One row per completed operation
		`CREATE TABLE IF NOT EXISTS operations (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			op          TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			duration_us INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_created ON operations(created_at)`,

		// Slot lifecycle transitions
		`CREATE TABLE IF NOT EXISTS model_events (
			seq   INTEGER PRIMARY KEY AUTOINCREMENT,
			kind  TEXT NOT NULL,
			path  TEXT NOT NULL,
			event TEXT NOT NULL,
			at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_model_events_kind ON model_events(kind, seq)`,
	}
}

// ─── Operations ─────────────────────────────────────────────────────────────

// RecordOperation appends a completed operation. Implements domain.Journal.
func (db *DB) RecordOperation(rec domain.OperationRecord) error {
	_, err := db.db.Exec(`
		INSERT INTO operations (id, kind, op, outcome, error, duration_us, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Kind.String(), string(rec.Op), rec.Outcome, rec.Error,
		rec.Duration.Microseconds(), rec.CreatedAt.UTC().Format(timeLayout))
	return err
}

// RecentOperations returns up to limit operations, newest first.
func (db *DB) RecentOperations(limit int) ([]domain.OperationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.Query(`
		SELECT id, kind, op, outcome, error, duration_us, created_at
		FROM operations ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OperationRecord
	for rows.Next() {
		var (
			rec        domain.OperationRecord
			kind, op   string
			durationUS int64
			createdAt  string
		)
		if err := rows.Scan(&rec.ID, &kind, &op, &rec.Outcome, &rec.Error, &durationUS, &createdAt); err != nil {
			return nil, err
		}
		if rec.Kind, err = domain.ParseModelKind(kind); err != nil {
			return nil, fmt.Errorf("operation %s: %w", rec.ID, err)
		}
		rec.Op = domain.OperationKind(op)
		rec.Duration = time.Duration(durationUS) * time.Microsecond
		rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// OperationCounts returns completed operations grouped by kind/op/outcome.
func (db *DB) OperationCounts() (map[string]int, error) {
	rows, err := db.db.Query(`
		SELECT kind || '.' || op || '.' || outcome, COUNT(*)
		FROM operations GROUP BY kind, op, outcome
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

// ─── Model Events ───────────────────────────────────────────────────────────

// RecordModelEvent appends a lifecycle transition. Implements domain.Journal.
func (db *DB) RecordModelEvent(ev domain.ModelEvent) error {
	_, err := db.db.Exec(`
		INSERT INTO model_events (kind, path, event, at) VALUES (?, ?, ?, ?)
	`, ev.Kind.String(), ev.Path, ev.Event, ev.At.UTC().Format(timeLayout))
	return err
}

// LastEvent returns the most recent event for kind, or nil if there is none.
func (db *DB) LastEvent(kind domain.ModelKind) (*domain.ModelEvent, error) {
	rows, err := db.db.Query(`
		SELECT path, event, at FROM model_events
		WHERE kind = ? ORDER BY seq DESC LIMIT 1
	`, kind.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	ev := &domain.ModelEvent{Kind: kind}
	var at string
	if err := rows.Scan(&ev.Path, &ev.Event, &at); err != nil {
		return nil, err
	}
	ev.At, _ = time.Parse(timeLayout, at)
	return ev, rows.Err()
}

// ResidentModels returns the models that were loaded when the previous
// process stopped: those whose last event is "loaded" (the process died
// with the model resident) or "shutdown" (released by a clean shutdown).
func (db *DB) ResidentModels() ([]domain.ModelEvent, error) {
	var out []domain.ModelEvent
	for _, kind := range domain.ModelKinds {
		ev, err := db.LastEvent(kind)
		if err != nil {
			return nil, fmt.Errorf("last event %s: %w", kind, err)
		}
		if ev == nil {
			continue
		}
		if ev.Event == domain.EventLoaded || ev.Event == domain.EventShutdown {
			out = append(out, *ev)
		}
	}
	return out, nil
}
