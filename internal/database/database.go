// Package database opens PostgreSQL connection pools with pgvector
// support.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// NewPool creates a pgx connection pool for the given postgres:// URL.
// Every new connection registers the pgvector codec so vector columns
// scan and encode natively.
func NewPool(ctx context.Context, connURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection URL: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// EmbeddingDim reports the dimensionality of the chunks table's
// embedding column. pgvector stores the dimension as the column's type
// modifier, so callers can verify their configured dimension against
// the migrated schema before the first insert.
func EmbeddingDim(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var typmod int
	err := pool.QueryRow(ctx,
		`SELECT atttypmod FROM pg_attribute
		 WHERE attrelid = 'chunks'::regclass AND attname = 'embedding'`).Scan(&typmod)
	if err != nil {
		return 0, fmt.Errorf("reading embedding column dimension: %w", err)
	}
	return typmod, nil
}
