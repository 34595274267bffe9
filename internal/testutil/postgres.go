// Package testutil provides shared test infrastructure: a disposable
// PostgreSQL container with the chunks schema applied, a silent logger
// and a deterministic offline embedder.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/quarrylabs/quarry/db"
	"github.com/quarrylabs/quarry/internal/database"
)

// PostgresDB is a running pgvector-enabled PostgreSQL instance with the
// schema migrated and pgvector types registered on the pool.
type PostgresDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// SetupPostgres starts a disposable PostgreSQL container, applies all
// migrations and returns a ready connection pool. The container and
// pool are torn down via t.Cleanup.
func SetupPostgres(t *testing.T) *PostgresDB {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("quarry_test"),
		postgres.WithUsername("quarry_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("starting PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	if err := db.Migrate(connStr); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	pool, err := database.NewPool(ctx, connStr)
	if err != nil {
		t.Fatalf("creating connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return &PostgresDB{Pool: pool, ConnStr: connStr}
}
