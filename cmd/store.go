package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/providory/outreach/internal/store"
)

// openStore builds the configured store backend. Callers own Close.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}

	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "csv":
		return store.NewCSV(cfg.Store.CSVPath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
