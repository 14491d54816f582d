// Package store implements the scheduler's durable Task and Agent storage on
// SQLite, with conditional writes keyed on a per-record version column.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Marksio90/narrative-dispatch/internal/scheduler"
)

// SQLiteStore implements scheduler.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ scheduler.Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode and a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return newStore(ctx, db)
}

// NewMemoryStore creates an in-memory SQLite store for testing. Each call
// gets its own named database so stores in the same process stay isolated.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening memory database: %w", err)
	}
	return newStore(ctx, db)
}

func newStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	// Required for modernc.org/sqlite: _foreign_keys is not honored in the
	// connection string.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// One writer connection avoids SQLITE_BUSY churn under concurrent
	// transitions; reads share it.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
