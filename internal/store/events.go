// Package store persists the context event log in SQLite. The log is a
// diagnostic record only: every in-memory decision stands on its own and
// nothing reads the store back into the pipeline.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// EventType tags a logged record.
type EventType string

const (
	EventContextSnapshot EventType = "context_snapshot"
	EventIntentProposed  EventType = "intent_proposed"
	EventPopupShown      EventType = "popup_shown"
	EventPopupRejected   EventType = "popup_rejected"
	EventUserResponse    EventType = "user_response"
	EventStateChange     EventType = "state_change"
)

// Event is one row of the context event log.
type Event struct {
	ID          int64
	Timestamp   time.Time
	Type        EventType
	AppName     string
	WindowTitle string
	IdleTime    int
	FileChanges int
	ErrorCount  int
	// Data carries arbitrary event-specific fields, stored as JSON.
	Data map[string]any
}

// EventStore owns the SQLite handle. Writes are serialised behind a single
// connection; SQLite with WAL handles the rest.
type EventStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	logger *zap.Logger
}

// NewEventStore opens (creating if needed) the event log at path.
func NewEventStore(path string, logger *zap.Logger) (*EventStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logger.Debug("failed to set sqlite synchronous=NORMAL", zap.Error(err))
	}

	s := &EventStore{db: db, dbPath: path, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("event store ready", zap.String("path", path))
	return s, nil
}

func (s *EventStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS context_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		event_type TEXT NOT NULL,
		app_name TEXT,
		window_title TEXT,
		idle_time INTEGER DEFAULT 0,
		file_changes INTEGER DEFAULT 0,
		error_count INTEGER DEFAULT 0,
		data TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON context_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_events_type ON context_events(event_type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// InsertEvent appends one record.
func (s *EventStore) InsertEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	var data any
	if len(ev.Data) > 0 {
		raw, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		data = string(raw)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO context_events
			(timestamp, event_type, app_name, window_title, idle_time, file_changes, error_count, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Timestamp.UTC(), string(ev.Type), ev.AppName, ev.WindowTitle,
		ev.IdleTime, ev.FileChanges, ev.ErrorCount, data)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events newest-first, optionally filtered
// by type (empty eventType means all).
func (s *EventStore) RecentEvents(ctx context.Context, limit int, eventType EventType) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, timestamp, event_type, app_name, window_title, idle_time, file_changes, error_count, data
		FROM context_events`
	args := []any{}
	if eventType != "" {
		query += " WHERE event_type = ?"
		args = append(args, string(eventType))
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// EventsSince returns all events at or after t, newest-first.
func (s *EventStore) EventsSince(ctx context.Context, t time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, app_name, window_title, idle_time, file_changes, error_count, data
		FROM context_events
		WHERE timestamp >= ?
		ORDER BY timestamp DESC`, t.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var (
			ev          Event
			eventType   string
			appName     sql.NullString
			windowTitle sql.NullString
			data        sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &eventType, &appName, &windowTitle,
			&ev.IdleTime, &ev.FileChanges, &ev.ErrorCount, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Type = EventType(eventType)
		ev.AppName = appName.String
		ev.WindowTitle = windowTitle.String
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &ev.Data); err != nil {
				// A corrupt data blob should not hide the row itself.
				ev.Data = map[string]any{"_raw": data.String}
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CleanupOlderThan deletes events older than the given number of days and
// returns how many rows went away.
func (s *EventStore) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if days <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", days)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM context_events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("event retention cleanup",
			zap.Int64("deleted", n), zap.Int("days", days))
	}
	return n, nil
}

// Stats summarises the log.
type Stats struct {
	TotalEvents  int64
	CountsByType map[EventType]int64
	OldestEvent  time.Time
	NewestEvent  time.Time
}

func (s *EventStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{CountsByType: make(map[EventType]int64)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM context_events GROUP BY event_type`)
	if err != nil {
		return stats, fmt.Errorf("failed to query event counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t string
			n int64
		)
		if err := rows.Scan(&t, &n); err != nil {
			return stats, err
		}
		stats.CountsByType[EventType(t)] = n
		stats.TotalEvents += n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	var oldest, newest sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT MIN(timestamp), MAX(timestamp) FROM context_events`).Scan(&oldest, &newest)
	if err != nil {
		return stats, err
	}
	if oldest.Valid {
		stats.OldestEvent = oldest.Time
	}
	if newest.Valid {
		stats.NewestEvent = newest.Time
	}
	return stats, nil
}

// Close releases the database handle.
func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
