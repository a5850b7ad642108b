// Package journal persists diagnostic trace events in SQL so the history
// outlives the in-memory window.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/core/ports"
	"github.com/tjfontaine/memories-gateway/internal/storage/dialect"
)

// Store is a SQL trace journal.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ ports.TraceJournal = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // sqlite or postgres
	DSN    string
}

// Open connects to the database and creates the schema if needed.
func Open(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.Name() == string(dialect.SQLite) {
		// Serializes writers and keeps :memory: databases on one connection.
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	s := &Store{db: db, dialect: d}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// OpenSQLite opens a SQLite journal at path.
func OpenSQLite(path string) (*Store, error) {
	return Open(Config{Driver: "sqlite", DSN: path})
}

func (s *Store) initSchema() error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS trace_events (
id %s,
kind TEXT NOT NULL,
method TEXT,
url TEXT NOT NULL,
status INTEGER,
message TEXT,
recorded_at BIGINT NOT NULL
)`, s.dialect.AutoIncrementClause()),
		`CREATE INDEX IF NOT EXISTS idx_trace_events_recorded_at ON trace_events(recorded_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

type eventRow struct {
	ID         int64          `db:"id"`
	Kind       string         `db:"kind"`
	Method     sql.NullString `db:"method"`
	URL        string         `db:"url"`
	Status     sql.NullInt64  `db:"status"`
	Message    sql.NullString `db:"message"`
	RecordedAt int64          `db:"recorded_at"`
}

func (r eventRow) event() domain.TraceEvent {
	ev := domain.TraceEvent{
		Kind:      domain.TraceKind(r.Kind),
		Method:    r.Method.String,
		URL:       r.URL,
		Message:   r.Message.String,
		Timestamp: r.RecordedAt,
	}
	if r.Status.Valid {
		status := int(r.Status.Int64)
		ev.Status = &status
	}
	return ev
}

// Append stores one event.
func (s *Store) Append(ctx context.Context, ev domain.TraceEvent) error {
	var status sql.NullInt64
	if ev.HasStatus() {
		status = sql.NullInt64{Int64: int64(ev.StatusCode()), Valid: true}
	}
	recordedAt := ev.Timestamp
	if recordedAt == 0 {
		recordedAt = time.Now().UnixMilli()
	}

	query := s.dialect.Rebind(`INSERT INTO trace_events (kind, method, url, status, message, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		string(ev.Kind),
		nullString(ev.Method),
		ev.URL,
		status,
		nullString(ev.Message),
		recordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append trace event: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest events, oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.TraceEvent, error) {
	if limit <= 0 {
		return nil, nil
	}

	var rows []eventRow
	query := s.dialect.Rebind(`SELECT id, kind, method, url, status, message, recorded_at
FROM trace_events ORDER BY id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list trace events: %w", err)
	}

	events := make([]domain.TraceEvent, len(rows))
	for i, row := range rows {
		events[len(rows)-1-i] = row.event()
	}
	return events, nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM trace_events`); err != nil {
		return 0, fmt.Errorf("failed to count trace events: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
