package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

const (
	// LatestMigrationVersion is the newest schema version this binary
	// knows. It guards against running on a database written by a newer
	// release.
	//
	// NOTE: This MUST be updated when a new migration is added.
	LatestMigrationVersion uint = 1
)

// ErrMigrationDowngrade is returned when the journal was written by a newer
// schema version.
var ErrMigrationDowngrade = errors.New("journal downgrade detected")

// migrationLogger adapts the package logger to migrate.Logger.
type migrationLogger struct{}

// Printf implements migrate.Logger.
func (migrationLogger) Printf(format string, v ...any) {
	log.Infof(strings.TrimRight(format, "\n"), v...)
}

// Verbose implements migrate.Logger.
func (migrationLogger) Verbose() bool {
	return false
}

// migrateUp brings db to LatestMigrationVersion.
func migrateUp(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("unable to create migration driver: %w", err)
	}

	return applyMigrations(
		sqlSchemas, driver, "migrations", "sqlite3",
		LatestMigrationVersion,
	)
}

// applyMigrations runs the migrations found under path in fsys against
// driver, up to latest.
func applyMigrations(fsys fs.FS, driver database.Driver, path, dbName string,
	latest uint) error {

	source, err := httpfs.New(http.FS(fsys), path)
	if err != nil {
		return err
	}

	sqlMigrate, err := migrate.NewWithInstance(
		"migrations", source, dbName, driver,
	)
	if err != nil {
		return err
	}

	version, dirty, err := sqlMigrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("unable to determine current migration "+
			"version: %w", err)
	}

	// A dirty version means an earlier migration failed half way.
	if dirty {
		return fmt.Errorf("journal is in a dirty state at version "+
			"%v, manual intervention required", version)
	}

	if version > latest {
		return fmt.Errorf("%w: db_version=%v, "+
			"latest_migration_version=%v", ErrMigrationDowngrade,
			version, latest)
	}

	log.DebugS(context.Background(), "Applying journal migrations",
		"current_db_version", version,
		"latest_migration_version", latest)

	sqlMigrate.Log = migrationLogger{}

	err = sqlMigrate.Migrate(latest)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
