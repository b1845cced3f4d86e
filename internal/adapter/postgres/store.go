// Package postgres is the production store: it reads stations and picks and
// persists origins and their arrivals in PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/origins.sql
var originsSchema string

//go:embed schema/inputs.sql
var inputsSchema string

// Store wraps a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to the database and verifies the connection.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool resources.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the origin tables and their constraints if missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, originsSchema); err != nil {
		return fmt.Errorf("migrate origins: %w", err)
	}
	s.logger.Debug("origin schema ready")
	return nil
}

// MigrateInputs creates the station and pick tables. Production deployments
// get these from the ingestion side.
func (s *Store) MigrateInputs(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, inputsSchema); err != nil {
		return fmt.Errorf("migrate inputs: %w", err)
	}
	return nil
}
