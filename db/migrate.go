// Package db provides database migration support.
package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx v5 driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate runs all pending database migrations. Migrations are
// embedded at compile time and executed in order; golang-migrate
// manages the schema_migrations table and only applies what is new.
//
// connURL must be a postgres:// or postgresql:// URL.
func Migrate(connURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	dbURL, err := toMigrateURL(connURL)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			slog.Warn("closing migration source", "error", srcErr)
		}
		if dbErr != nil {
			slog.Warn("closing migration database connection", "error", dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	slog.Debug("database migrations applied")
	return nil
}

// toMigrateURL rewrites a postgres URL to the pgx5:// scheme that the
// golang-migrate pgx v5 driver registers under.
func toMigrateURL(connURL string) (string, error) {
	switch {
	case strings.HasPrefix(connURL, "postgres://"):
		return "pgx5://" + strings.TrimPrefix(connURL, "postgres://"), nil
	case strings.HasPrefix(connURL, "postgresql://"):
		return "pgx5://" + strings.TrimPrefix(connURL, "postgresql://"), nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme in %q (want postgres:// or postgresql://)", connURL)
	}
}
