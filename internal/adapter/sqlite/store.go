// Package sqlite is an embedded store with the same semantics as the
// postgres store, for local runs and tests. Timestamps are stored as unix
// microseconds.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema/origins.sql
var originsSchema string

//go:embed schema/inputs.sql
var inputsSchema string

// Store is a SQLite-backed locator store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path. Pass ":memory:" for a private
// in-memory database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory database
	// lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the origin tables and their constraints if missing.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.execSchema(ctx, originsSchema); err != nil {
		return fmt.Errorf("migrate origins: %w", err)
	}
	s.logger.Debug("origin schema ready")
	return nil
}

// MigrateInputs creates the station and pick tables.
func (s *Store) MigrateInputs(ctx context.Context) error {
	if err := s.execSchema(ctx, inputsSchema); err != nil {
		return fmt.Errorf("migrate inputs: %w", err)
	}
	return nil
}

func (s *Store) execSchema(ctx context.Context, schema string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	return tx.Commit()
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

// inClause returns "(?,?,...)" with n placeholders and the ids as arguments.
func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
}
