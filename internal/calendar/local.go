package calendar

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/user/fairweather/internal/types"
)

// Local records events in a SQLite database under the data directory.
type Local struct {
	db       *sql.DB
	duration time.Duration
	now      func() time.Time
}

// OpenLocal opens (creating if needed) the events database at path.
func OpenLocal(path string, duration time.Duration) (*Local, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &Local{db: db, duration: durationOr(duration), now: time.Now}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

func (l *Local) Close() error {
	return l.db.Close()
}

func (l *Local) migrate() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		activity TEXT NOT NULL,
		location TEXT,
		description TEXT,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_at);
	`)
	return err
}

// Schedule implements types.SchedulingSink.
func (l *Local) Schedule(ctx context.Context, activity string, when time.Time, location string) (*types.ScheduledEvent, error) {
	id := uuid.New().String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO events (id, activity, location, description, start_at, end_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, activity, location, description(activity),
		when.UTC().Format(time.RFC3339), when.Add(l.duration).UTC().Format(time.RFC3339),
		l.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("calendar: insert event: %w", err)
	}
	return &types.ScheduledEvent{ID: id}, nil
}

// List returns events starting at or after from, earliest first. A zero
// limit returns all of them. Times are stored in UTC so text order is
// chronological.
func (l *Local) List(ctx context.Context, from time.Time, limit int) ([]*Event, error) {
	q := `SELECT id, activity, location, start_at, end_at, created_at FROM events WHERE start_at >= ? ORDER BY start_at`
	args := []any{from.UTC().Format(time.RFC3339)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("calendar: list events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e                     Event
			loc                   sql.NullString
			start, end, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Activity, &loc, &start, &end, &createdAt); err != nil {
			return nil, fmt.Errorf("calendar: scan event: %w", err)
		}
		e.Location = loc.String
		if e.Start, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("calendar: event %s: %w", e.ID, err)
		}
		e.End, _ = time.Parse(time.RFC3339, end)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		events = append(events, &e)
	}
	return events, rows.Err()
}
