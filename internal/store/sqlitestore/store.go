// Package sqlitestore implements store.Store on an embedded SQLite database
// through modernc.org/sqlite. It is the default backend.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/cockroachdb/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/albapepper/cricket-data/internal/store"
)

//go:embed schema.sql
var Schema string

// now renders the current UTC time the way the schema defaults do.
const now = "strftime('%Y-%m-%dT%H:%M:%fZ', 'now')"

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a SQLite-backed store.Store.
type Store struct {
	*queries
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path. Use ":memory:" for
// a throwaway database. The schema is not applied until Migrate.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	// SQLite allows a single writer; one connection also keeps an in-memory
	// database alive for the lifetime of the Store.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "apply %q", p)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite")
	}
	return &Store{queries: &queries{db: db}, db: db}, nil
}

// Migrate applies the schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return errors.Wrap(err, "apply sqlite schema")
}

// WithTx runs fn inside a transaction. fn must only use the Tx it is given.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	var n int
	return errors.Wrap(s.db.QueryRowContext(ctx, "SELECT 1").Scan(&n), "ping sqlite")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// isForeignKeyViolation reports whether err is SQLite's FK constraint error.
func isForeignKeyViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}
