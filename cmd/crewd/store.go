package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/memory"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/postgres"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/sqlite"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/config"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/database"
)

// openStore connects the configured backend. A backend that cannot be
// reached degrades to the in-memory store so the pipeline keeps serving.
func openStore(ctx context.Context, cfg *config.Config) database.Store {
	store, err := connectStore(ctx, cfg)
	if err != nil {
		slog.Warn("storage unavailable, falling back to memory", "driver", cfg.Storage.Driver, "error", err)
		return memory.NewStore()
	}
	slog.Info("storage connected", "driver", cfg.Storage.Driver)
	return store
}

func connectStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return postgres.NewStore(pool), nil
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return memory.NewStore(), nil
	}
}
