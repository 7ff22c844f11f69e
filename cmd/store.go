package cmd

import (
	"context"
	"fmt"

	"github.com/michrafnabil/facegate/internal/config"
	"github.com/michrafnabil/facegate/internal/store"
	"github.com/michrafnabil/facegate/internal/store/postgres"
)

// openStore picks the whitelist backend: PostgreSQL with pgvector when
// DATABASE_URL is configured, local NPZ archives otherwise. The returned
// cleanup function must be called when done.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.Database.URL == "" {
		s := store.NewArchiveStore(cfg.Paths.PrototypesPath, cfg.Paths.ReferencesPath)
		return s, func() {}, nil
	}

	fmt.Println("Connecting to PostgreSQL...")
	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := pool.Migrate(ctx, cfg.Embedder.Dim); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres.NewStore(pool), func() { pool.Close() }, nil
}
