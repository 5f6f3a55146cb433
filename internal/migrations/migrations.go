// Package migrations applies the embedded database schema.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var files embed.FS

// Up migrates the database at databaseURL to the latest version.
func Up(databaseURL string, logger *slog.Logger) error {
	src, err := iofs.New(files, "sql")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, driverURL(databaseURL))
	if err != nil {
		return fmt.Errorf("initialising migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to apply")
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("migrations applied", "version", version)
	return nil
}

// driverURL rewrites a postgres:// URL to the scheme the pgx/v5 migrate
// driver registers.
func driverURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, prefix); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}
