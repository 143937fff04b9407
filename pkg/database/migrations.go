package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql
)

//go:embed migrations
var migrationsFS embed.FS

// RunMigrations applies pending database migrations using golang-migrate with
// embedded migration files.
//
// Migration files are embedded into the binary using go:embed, ensuring they're
// available in production deployments without requiring external files.
//
// Migration workflow:
//  1. Developer adds a pair of files under pkg/database/migrations/
//     (<version>_<name>.up.sql and .down.sql)
//  2. Files embedded into binary at compile time
//  3. Review & commit: Check SQL files, commit to git
//  4. Deploy: Build binary (migrations embedded automatically)
//  5. Auto-apply: App applies pending migrations on startup (this function)
//
// golang-migrate drives a database/sql connection, so a dedicated short-lived
// *sql.DB is opened here rather than borrowing from the pgx pool.
func RunMigrations(ctx context.Context, cfg Config) error {
	return RunMigrationsDSN(ctx, cfg.DSN(), cfg.Database)
}

// RunMigrationsDSN applies migrations against an explicit connection string.
// The test harness uses this to migrate per-test schemas by passing a DSN
// whose search_path points at the schema under test.
func RunMigrationsDSN(ctx context.Context, dsn, database string) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("failed to check embedded migrations: %w", err)
	}

	if !hasMigrations {
		return fmt.Errorf("no embedded migration files found - binary may be built incorrectly")
	}

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database for migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, database, driver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		_ = sourceDriver.Close()
		_ = db.Close()
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close the source driver explicitly instead of m.Close(): m.Close() would
	// also close the database driver, and the dedicated *sql.DB is closed below.
	if err := sourceDriver.Close(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to close migration source: %w", err)
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close migration connection: %w", err)
	}

	return nil
}

// hasEmbeddedMigrations checks if the embedded FS contains any .sql migration files
func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		// If the migrations directory doesn't exist in the embed, no migrations
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			return true, nil
		}
	}

	return false, nil
}
