package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"parlor-server/internal/store"
)

// defaultRowCap bounds the debug_logs table. The oldest rows are
// pruned on insert once the cap is exceeded.
const defaultRowCap = 10000

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db     *sql.DB
	rowCap int
}

// New opens (or creates) the SQLite database at dbPath and ensures the
// schema exists.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &SQLiteStore{db: db, rowCap: defaultRowCap}, nil
}

func ensureSchema(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS debug_logs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp  TEXT NOT NULL,
		message    TEXT NOT NULL,
		data       TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_debug_logs_created_at ON debug_logs(created_at);
	`
	_, err := db.Exec(query)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendDebugLog stores one debug entry and prunes the table down to
// the row cap.
func (s *SQLiteStore) AppendDebugLog(ctx context.Context, timestamp, message, data string) (*store.DebugEntry, error) {
	createdAt := time.Now().UTC()
	query := `
		INSERT INTO debug_logs (timestamp, message, data, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, timestamp, message, data, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert debug log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if err := s.pruneDebugLogs(ctx); err != nil {
		return nil, fmt.Errorf("prune debug logs: %w", err)
	}

	return &store.DebugEntry{
		ID:        id,
		Timestamp: timestamp,
		Message:   message,
		Data:      data,
		CreatedAt: createdAt,
	}, nil
}

// pruneDebugLogs drops the oldest rows beyond the cap. The log is a
// diagnostic sink, so staying bounded beats keeping history.
func (s *SQLiteStore) pruneDebugLogs(ctx context.Context) error {
	query := `
		DELETE FROM debug_logs
		WHERE id NOT IN (
			SELECT id FROM debug_logs ORDER BY id DESC LIMIT ?
		)
	`
	_, err := s.db.ExecContext(ctx, query, s.rowCap)
	return err
}

// DebugLogsSince lists entries stored at or after since, oldest first.
func (s *SQLiteStore) DebugLogsSince(ctx context.Context, since time.Time) ([]*store.DebugEntry, error) {
	query := `
		SELECT id, timestamp, message, data, created_at
		FROM debug_logs
		WHERE created_at >= ?
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query debug logs: %w", err)
	}
	defer rows.Close()

	var entries []*store.DebugEntry
	for rows.Next() {
		var e store.DebugEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Message, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan debug log: %w", err)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

var _ store.Store = (*SQLiteStore)(nil)
