// Package migrations applies the embedded schema migrations for the SQL
// feed store.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// Dialect selects the migration set.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Up applies all pending migrations to db. An up-to-date schema is not an
// error. db is left open.
func Up(db *sql.DB, dialect Dialect) error {
	src, err := iofs.New(files, string(dialect))
	if err != nil {
		return fmt.Errorf("load %s migrations: %w", dialect, err)
	}
	defer src.Close()

	var driver database.Driver
	switch dialect {
	case SQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	case Postgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return fmt.Errorf("unknown dialect %q", dialect)
	}
	if err != nil {
		return fmt.Errorf("init %s migration driver: %w", dialect, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		log.Info().Uint("version", version).Bool("dirty", dirty).Str("dialect", string(dialect)).Msg("database: schema migrated")
	}
	return nil
}
