package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thammarongsak/waibon-safe-room/internal/config"
	"github.com/thammarongsak/waibon-safe-room/internal/store/sqlstore"
	"github.com/thammarongsak/waibon-safe-room/internal/upgrade"
)

// openDatabase opens Postgres when DATABASE_URL is set in postgres mode,
// otherwise the SQLite file.
func openDatabase(cfg *config.Config) (*sqlstore.DB, error) {
	if cfg.Database.IsPostgres() {
		return sqlstore.OpenDB(sqlstore.DialectPostgres, cfg.Database.PostgresDSN)
	}
	if cfg.Database.Mode == "postgres" {
		slog.Warn("database mode is postgres but DATABASE_URL is not set, using sqlite", "path", cfg.Database.SQLitePath)
	}
	return sqlstore.OpenDB(sqlstore.DialectSQLite, cfg.Database.SQLitePath)
}

// prepareSchema migrates and runs data hooks when auto_migrate is on;
// otherwise it refuses to start against an incompatible schema.
func prepareSchema(ctx context.Context, cfg *config.Config, db *sqlstore.DB) error {
	if cfg.Database.AutoMigrate {
		v, err := sqlstore.MigrateUp(ctx, db, resolveMigrationsDir())
		if err != nil {
			return err
		}
		slog.Info("schema ready", "version", v, "dialect", db.Dialect)
		if n, err := upgrade.RunPendingHooks(ctx, db); err != nil {
			return fmt.Errorf("data hooks: %w", err)
		} else if n > 0 {
			slog.Info("data hooks applied", "count", n)
		}
		return nil
	}

	s, err := upgrade.CheckSchema(ctx, db)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	if err := s.Err(); err != nil {
		fmt.Print(upgrade.FormatError(s))
		return err
	}
	return nil
}
