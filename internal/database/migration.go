package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/pulsehook/pulsehook/internal/logging"
)

// RunMigrations applies all pending schema migrations from the given source
// path (e.g. "file://migrations") against the database at dsn.
func RunMigrations(sourceURL, dsn string, logger *logging.Logger) error {
	m, err := migrate.New(sourceURL, dsn)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	if logger != nil {
		logger.Plain().Info("database migrations applied")
	}
	return nil
}
