// Package migrations creates and seeds the sample tables in Postgres.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed postgres/*.sql
var MigrationsFS embed.FS

func RunMigrations(databaseURL string) error {
	slog.Info("Running sample schema migrations from embedded files")

	sourceInstance, err := iofs.New(MigrationsFS, "postgres")
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver: %w", err)
	}

	migrateDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database connection for migration: %w", err)
	}
	defer func() {
		if cerr := migrateDB.Close(); cerr != nil {
			slog.Warn("Error closing migration db connection", "error", cerr)
		}
	}()

	if err = migrateDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database for migration: %w", err)
	}

	dbDriver, err := postgres.WithInstance(migrateDB, &postgres.Config{
		MigrationsTable: "emquery_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create postgres driver instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceInstance, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogAdapter{logger: slog.Default().With("component", "migrate")}

	err = m.Up()
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		slog.Warn("Error closing migration source", "error", srcErr)
	}
	if dbErr != nil {
		slog.Warn("Error closing migration database connection", "error", dbErr)
	}

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		slog.Info("No sample schema changes to apply")
	case err != nil:
		return fmt.Errorf("migration failed: %w", err)
	default:
		slog.Info("Sample schema migrations completed successfully")
	}
	return nil
}

type migrateLogAdapter struct {
	logger *slog.Logger
}

func (l *migrateLogAdapter) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *migrateLogAdapter) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}
