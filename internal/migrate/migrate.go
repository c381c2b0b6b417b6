// Package migrate applies the embedded schema migrations for the two
// databases this project owns: the sqlite import-state store and the postgres
// update queue.
package migrate

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed sql/state/*.sql
var stateMigrations embed.FS

//go:embed sql/queue/*.sql
var queueMigrations embed.FS

// State migrates the sqlite user-state schema.
func State(db *sqlx.DB) error {
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating driver: %w", err)
	}

	source, err := iofs.New(stateMigrations, "sql/state")
	if err != nil {
		return fmt.Errorf("creating source from fs: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "userstate", driver)
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up: %w", err)
	}

	return nil
}

// Queue migrates the postgres queue schema.
func Queue(db *sqlx.DB, dbname string) error {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating driver: %w", err)
	}

	source, err := iofs.New(queueMigrations, "sql/queue")
	if err != nil {
		return fmt.Errorf("creating source from fs: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbname, driver)
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up: %w", err)
	}

	return nil
}
