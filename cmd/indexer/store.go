package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wasmScope/internal/config"
	"wasmScope/internal/store"
	"wasmScope/internal/store/memory"
	"wasmScope/internal/store/postgres"
	"wasmScope/internal/store/sqlite"
)

type stores struct {
	entities store.Store
	// cursors is nil for the memory backend, which does not outlive a run.
	cursors store.CursorStore
	close   func()
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (stores, error) {
	var out stores
	switch cfg.Backend {
	case "memory":
		out = stores{entities: memory.New(), close: func() {}}
	case "postgres":
		if cfg.PGDSN == "" {
			return stores{}, fmt.Errorf("pg-dsn is required")
		}
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return stores{}, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return stores{}, err
		}
		out = stores{entities: pg, cursors: pg, close: pg.Close}
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return stores{}, err
		}
		out = stores{entities: db, cursors: db, close: func() {
			if err := db.Close(); err != nil {
				logger.Warn("close sqlite", zap.Error(err))
			}
		}}
	default:
		return stores{}, fmt.Errorf("unknown store %q", cfg.Backend)
	}

	if cfg.Journal != "" {
		out.entities = store.NewJournal(out.entities, cfg.Journal)
		logger.Info("journaling store writes", zap.String("journal", cfg.Journal))
	}
	return out, nil
}
