// Package store provides SQLite-based persistence for RVC.
// It manages record tables, their append-only history tables, and the
// transactions that keep the two consistent.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store represents the SQLite database store
type Store struct {
	db    *sql.DB
	retry *RetryConfig
	now   func() time.Time
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new store connection. Write transactions take the database
// write lock at BEGIN, so concurrent writers are serialized.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, retry: DefaultRetryConfig(), now: time.Now}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetRetryConfig replaces the retry policy for transient lock errors
func (s *Store) SetRetryConfig(cfg *RetryConfig) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	s.retry = cfg
}

// Initialize creates the bookkeeping schema
func (s *Store) Initialize() error {
	schema := `
	-- Record types provisioned in this database
	CREATE TABLE IF NOT EXISTS rvc_record_types (
		name TEXT PRIMARY KEY,
		table_name TEXT NOT NULL UNIQUE,
		definition JSON NOT NULL,
		provisioned_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- RVC schema version tracking
	CREATE TABLE IF NOT EXISTS rvc_schema_version (
		version INTEGER PRIMARY KEY
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Mark as current schema version
	_, err = s.db.Exec("INSERT OR REPLACE INTO rvc_schema_version (version) VALUES (?)", currentSchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

// DB returns the underlying database connection for advanced queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn in one write transaction. fn's writes commit together or
// not at all. Transient lock errors restart fn from scratch; fn must not
// leak state from a failed attempt.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.retry.retry(ctx, "transaction", func() error {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if err := fn(&Tx{tx: sqlTx, now: s.now}); err != nil {
			_ = sqlTx.Rollback()
			return err
		}

		if err := sqlTx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// parseTimestamp parses a timestamp string from SQLite in various formats
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999+07:00",
		"2006-01-02 15:04:05.999999-07:00",
		"2006-01-02 15:04:05.999999+07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05+07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
