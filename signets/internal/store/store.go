// Package store provides the persistent layer for signets.
//
// A Store holds two independent namespaces in one SQLite database: bookmark
// records keyed by content id, and a single serialized search index blob.
// There is no transaction spanning both; the index can always be rebuilt
// from the records.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when a record or the index blob does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrStorage wraps every failure of the underlying database other than a
// plain miss. Callers must not treat it as ErrNotFound.
var ErrStorage = errors.New("store: storage error")

// Store wraps the signets database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
// The schema must have been applied (see ApplySchema).
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Open opens (or creates) the SQLite database at path, applies pragmas and
// the schema. The caller must blank-import modernc.org/sqlite.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if err := ApplySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return db, nil
}

const maxRetries = 3

// isBusy reports whether err indicates an SQLite BUSY condition.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// exec runs a write with retry on SQLITE_BUSY (100/200 ms backoff).
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	for i := range maxRetries {
		res, err := s.DB.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if !isBusy(err) || i == maxRetries-1 {
			return nil, err
		}
		t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, fmt.Errorf("store: exec: max retries exceeded")
}

// storageErr tags err as a storage failure for op.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
