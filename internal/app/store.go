// Package app wires configuration into the concrete store backend shared by
// cmd/ingest and cmd/api.
package app

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-data/internal/config"
	"github.com/albapepper/cricket-data/internal/db"
	"github.com/albapepper/cricket-data/internal/store"
	"github.com/albapepper/cricket-data/internal/store/pgstore"
	"github.com/albapepper/cricket-data/internal/store/sqlitestore"
)

// OpenStore opens the backend selected by cfg.DBDriver and applies its
// schema.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := db.New(ctx, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres")
		}
		logger.Info("Connected to postgres", "max_conns", cfg.DBPoolMaxConns)
		return pgstore.New(pool), nil

	case config.DriverSQLite:
		s, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		logger.Info("Opened sqlite store", "path", cfg.SQLitePath)
		return s, nil
	}
	return nil, errors.Newf("unsupported store driver %q", cfg.DBDriver)
}
