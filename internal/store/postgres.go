package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"corpusd/internal/config"
)

// PostgresStore is the production Store implementation, backed by a pgx
// connection pool. All writes to sources and segments go through it; it is
// safe for concurrent use by every pool in the orchestrator.
type PostgresStore struct {
	pool         *pgxpool.Pool
	embeddingDim int
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// Open connects to Postgres, applies the schema, and returns a ready Store.
func Open(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store: open: nil config")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse database_url: %w", err)
	}
	poolCfg.MaxConns = int32(max(cfg.NDB*2, 4))

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	s := &PostgresStore{pool: pool, embeddingDim: cfg.EmbeddingDimension}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies connectivity, used by startup health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
