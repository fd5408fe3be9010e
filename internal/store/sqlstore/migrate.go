package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/thammarongsak/waibon-safe-room/migrations"
)

// NewMigrator builds a migrator over an open DB. Migrations come from dir when
// set, otherwise from the embedded files for the DB's dialect. The returned
// release func frees the migrator's resources without closing db.
func NewMigrator(ctx context.Context, db *DB, dir string) (*migrate.Migrate, func(), error) {
	src, err := openSource(db.Dialect, dir)
	if err != nil {
		return nil, nil, err
	}

	var (
		drv     database.Driver
		release = func() { src.Close() }
	)
	switch db.Dialect {
	case DialectPostgres:
		conn, err := db.DB.Conn(ctx)
		if err != nil {
			src.Close()
			return nil, nil, fmt.Errorf("migration conn: %w", err)
		}
		drv, err = postgres.WithConnection(ctx, conn, &postgres.Config{})
		if err != nil {
			conn.Close()
			src.Close()
			return nil, nil, fmt.Errorf("postgres migration driver: %w", err)
		}
		release = func() {
			conn.Close()
			src.Close()
		}
	case DialectSQLite:
		drv, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
		if err != nil {
			src.Close()
			return nil, nil, fmt.Errorf("sqlite migration driver: %w", err)
		}
	default:
		src.Close()
		return nil, nil, fmt.Errorf("unknown database dialect %q", db.Dialect)
	}

	m, err := migrate.NewWithInstance("migrations", src, string(db.Dialect), drv)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, release, nil
}

func openSource(dialect Dialect, dir string) (source.Driver, error) {
	if dir != "" {
		src, err := source.Open("file://" + dir)
		if err != nil {
			return nil, fmt.Errorf("open migrations dir %s: %w", dir, err)
		}
		return src, nil
	}
	src, err := iofs.New(migrations.FS, string(dialect))
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	return src, nil
}

// MigrateUp applies all pending migrations and returns the resulting version.
func MigrateUp(ctx context.Context, db *DB, dir string) (uint, error) {
	m, release, err := NewMigrator(ctx, db, dir)
	if err != nil {
		return 0, err
	}
	defer release()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate up: %w", err)
	}
	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, err
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, nil
}
