package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const busyTimeoutMillis = 5000

// dsn is the connection string shared by the repository and the migrator.
// Concurrent writers wait on the lock instead of failing with SQLITE_BUSY.
func dsn(dbPath string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMillis))
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + dbPath + "?" + q.Encode()
}

// SchemaChange reports what RunMigrations did.
type SchemaChange struct {
	From    uint
	To      uint
	Applied bool
}

// RunMigrations brings the schema at dbPath up to the latest embedded
// migration. It uses its own connection and leaves none open.
func RunMigrations(dbPath string) (SchemaChange, error) {
	migrateDB, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return SchemaChange{}, fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return SchemaChange{}, fmt.Errorf("create sqlite driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return SchemaChange{}, fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return SchemaChange{}, fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	var change SchemaChange
	change.From, err = schemaVersion(m)
	if err != nil {
		return SchemaChange{}, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return SchemaChange{}, fmt.Errorf("run migrations: %w", err)
	}
	change.To, err = schemaVersion(m)
	if err != nil {
		return SchemaChange{}, err
	}
	change.Applied = change.To != change.From
	return change, nil
}

func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read schema version: %w", err)
	case dirty:
		return v, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, nil
}
