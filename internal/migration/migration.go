package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// SchemaTable records the applied version of the pricewatch schema.
const SchemaTable = "pricewatch_schema_migrations"

var ErrNoDatabase = errors.New("migration_database_required")

// RunMigrations brings the postgres schema for invoice lines, agreements and
// alert resolutions up to the latest embedded version and returns it.
func RunMigrations(db *sql.DB) (uint, error) {
	if db == nil {
		return 0, ErrNoDatabase
	}

	scripts, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return 0, fmt.Errorf("read embedded schema: %w", err)
	}
	source, err := iofs.New(scripts, ".")
	if err != nil {
		return 0, fmt.Errorf("load schema scripts: %w", err)
	}
	target, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: SchemaTable})
	if err != nil {
		return 0, fmt.Errorf("bind schema table %s: %w", SchemaTable, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", target)
	if err != nil {
		return 0, fmt.Errorf("prepare pricewatch schema: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("upgrade pricewatch schema: %w", err)
	}

	// m.Close would close the shared *sql.DB owned by pkg/db.
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read pricewatch schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("pricewatch schema version %d is dirty", version)
	}
	return version, nil
}
