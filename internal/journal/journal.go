// Package journal records run lifecycle events in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	driverName = "sqlite"

	EventRunStarted   = "run_started"
	EventFileStarted  = "file_started"
	EventFileSkipped  = "file_skipped"
	EventChunkWritten = "chunk_written"
	EventChunkSkipped = "chunk_skipped"
	EventChunkFailed  = "chunk_failed"
	EventRowsDropped  = "rows_dropped"
	EventRunCancelled = "run_cancelled"
	EventRunFailed    = "run_failed"
	EventRunCompleted = "run_completed"
)

// Schema creates the run_events table.
const Schema = `
CREATE TABLE IF NOT EXISTS run_events (
    event_id    TEXT PRIMARY KEY,
    run_id      TEXT NOT NULL,
    event_type  TEXT NOT NULL,
    file_name   TEXT NOT NULL DEFAULT '',
    chunk_index INTEGER NOT NULL DEFAULT -1,
    row_count   INTEGER NOT NULL DEFAULT 0,
    detail      TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, created_at);
`

// Event is one journal entry.
type Event struct {
	RunID      string
	Type       string
	File       string
	ChunkIndex int
	Rows       int
	Detail     string
	CreatedAt  time.Time
}

// Recorder receives run events. Implementations never fail the run.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// Journal writes events to SQLite. Write failures are logged, not returned.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens or creates the journal database at path and applies the schema.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 10000", "PRAGMA synchronous = NORMAL"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{db: db, logger: logger, now: time.Now}, nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

func (j *Journal) Record(ctx context.Context, event Event) {
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = j.now()
	}
	_, err := j.db.ExecContext(context.WithoutCancel(ctx), `
		INSERT INTO run_events (
			event_id, run_id, event_type, file_name, chunk_index, row_count, detail, created_at
		) VALUES (?,?,?,?,?,?,?,?)`,
		uuid.NewString(), event.RunID, event.Type, event.File, event.ChunkIndex, event.Rows, event.Detail, createdAt.UnixMilli())
	if err != nil {
		j.logger.Warn("journal write failed", zap.String("event_type", event.Type), zap.Error(err))
	}
}

// Events returns the events of runID in insertion order.
func (j *Journal) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, event_type, file_name, chunk_index, row_count, detail, created_at
		FROM run_events WHERE run_id = ? ORDER BY created_at, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var event Event
		var createdAt int64
		if err := rows.Scan(&event.RunID, &event.Type, &event.File, &event.ChunkIndex, &event.Rows, &event.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		event.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, event)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error { return j.db.Close() }
