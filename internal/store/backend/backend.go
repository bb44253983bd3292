// Package backend opens the table selected in the configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/notify"
	"github.com/Makepad-fr/tada/internal/store"
	"github.com/Makepad-fr/tada/internal/store/jsonstore"
	"github.com/Makepad-fr/tada/internal/store/memstore"
	"github.com/Makepad-fr/tada/internal/store/pgstore"
	"github.com/Makepad-fr/tada/internal/store/remote"
	"github.com/Makepad-fr/tada/internal/store/sqlitestore"
)

// Open builds the configured table, wrapped in the redis notifier when
// redis is configured.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Table, error) {
	table, err := open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened", slog.String("backend", cfg.Store.Backend))

	if !cfg.Redis.Enabled() {
		return table, nil
	}
	client, err := notify.Dial(ctx, cfg.Redis.URL)
	if err != nil {
		table.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	logger.Debug("redis fan-out enabled", slog.String("channel", cfg.Redis.Channel))
	return notify.New(table, client, cfg.Redis.Channel, logger), nil
}

func open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Table, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memstore.New(), nil
	case config.BackendJSON:
		s, err := jsonstore.Open(cfg.JSON.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("init json store: %w", err)
		}
		logger.Debug("json store file", slog.String("path", s.Path()))
		return s, nil
	case config.BackendSQLite:
		db, err := sqlitestore.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return db, nil
	case config.BackendPostgres:
		s, err := pgstore.Open(ctx, cfg.Postgres.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, nil
	case config.BackendRemote:
		vault, err := auth.DefaultVault()
		if err != nil {
			return nil, fmt.Errorf("init remote store: %w", err)
		}
		c, err := remote.New(cfg.Remote.URL, cfg.Remote.Timeout, logger, remote.WithToken(vault.TokenSource(logger)))
		if err != nil {
			return nil, fmt.Errorf("init remote store: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
