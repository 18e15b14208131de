package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/layover/internal/store/migrations"
)

// MigrateResult reports the schema version after Migrate.
type MigrateResult struct {
	Version uint
	Changed bool
}

// ErrDirtySchema means a previous migration stopped halfway and the
// database needs manual repair.
var ErrDirtySchema = errors.New("record schema is dirty")

// Migrate brings the layover schema (users, matches, connections, messages,
// reactions, notifications, blocks, reports) up to the latest version.
func (db *DB) Migrate() (*MigrateResult, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("load schema migrations: %w", err)
	}
	drv, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{MigrationsTable: "layover_schema"})
	if err != nil {
		return nil, fmt.Errorf("schema driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return nil, fmt.Errorf("schema migrator: %w", err)
	}

	if _, dirty, verr := m.Version(); verr == nil && dirty {
		return nil, fmt.Errorf("%s: %w", db.path, ErrDirtySchema)
	}

	changed := true
	if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
		changed = false
	} else if err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return nil, fmt.Errorf("schema version: %w", err)
	}
	return &MigrateResult{Version: version, Changed: changed}, nil
}
