package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"washpos/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations_pg/*.sql
var gooseMigrationsPgFS embed.FS

// ApplyMigrations brings the schema up to date. Postgres goes through goose;
// the sqlite test runtime gets the equivalent schema applied directly.
func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	isPG, err := isPostgresDB(ctx, db)
	if err != nil {
		return err
	}
	if !isPG {
		if !isTestRuntime() {
			return fmt.Errorf("sqlite schema is supported only in go test runtime")
		}
		return applySQLiteSchema(ctx, db)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	goose.SetBaseFS(gooseMigrationsPgFS)
	if logger != nil {
		logger.Printf("applying goose migrations")
	}
	if err := goose.UpContext(ctx, db, "migrations_pg"); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("goose migrations applied")
	}
	return nil
}

// MigrationStatus prints the goose status table for the embedded migrations.
// Postgres only; the sqlite test schema is not goose-versioned.
func MigrationStatus(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	isPG, err := isPostgresDB(ctx, db)
	if err != nil {
		return err
	}
	if !isPG {
		return fmt.Errorf("migration status is only available for postgres")
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	goose.SetBaseFS(gooseMigrationsPgFS)
	return goose.StatusContext(ctx, db, "migrations_pg")
}

func isPostgresDB(ctx context.Context, db *sql.DB) (bool, error) {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false, err
	}
	var version string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return false, nil
	}
	return true, nil
}
