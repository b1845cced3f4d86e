// Package store opens the configured storage backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/seismic-locator/internal/adapter/api"
	"github.com/couchcryptid/seismic-locator/internal/adapter/postgres"
	"github.com/couchcryptid/seismic-locator/internal/adapter/sqlite"
	"github.com/couchcryptid/seismic-locator/internal/config"
	"github.com/couchcryptid/seismic-locator/internal/domain"
	"github.com/couchcryptid/seismic-locator/internal/pipeline"
)

// Backend is the full surface shared by the postgres and sqlite stores.
type Backend interface {
	pipeline.Store
	api.OriginReader

	UpsertStations(ctx context.Context, stations []domain.Station) error
	InsertPicks(ctx context.Context, picks []domain.PhasePick) ([]domain.PhasePick, error)

	Migrate(ctx context.Context) error
	MigrateInputs(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*postgres.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
)

// Open connects to the backend selected by cfg.StoreDriver. With AutoMigrate
// set, the origin tables are created if missing; the sqlite backend also gets
// its input tables since nothing else owns that file.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		b, err = postgres.New(ctx, cfg.DatabaseURL, logger)
	case config.DriverSQLite:
		b, err = sqlite.Open(cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	if !cfg.AutoMigrate {
		return b, nil
	}
	if cfg.StoreDriver == config.DriverSQLite {
		if err := b.MigrateInputs(ctx); err != nil {
			return nil, closeOnError(err, b)
		}
	}
	if err := b.Migrate(ctx); err != nil {
		return nil, closeOnError(err, b)
	}
	logger.Info("store ready", "driver", cfg.StoreDriver)
	return b, nil
}

// closeOnError closes c after a failed setup step, keeping both errors.
func closeOnError(err error, c io.Closer) error {
	if cerr := c.Close(); cerr != nil {
		return errors.Join(err, fmt.Errorf("close store: %w", cerr))
	}
	return err
}
