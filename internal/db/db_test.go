package db_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/dirsync/internal/db"
)

func openTemp(t *testing.T) (*db.DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "target.db")
	database, err := db.Open(db.DriverSQLite, dbPath)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database, dbPath
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := db.Open("postgres", "whatever"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestRequiresMigrationError(t *testing.T) {
	database, dbPath := openTemp(t)

	_, err := database.Exec(`
		CREATE TABLE schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		)
	`)
	if err != nil {
		t.Fatalf("could not create schema_migrations: %v", err)
	}
	if _, err := database.Exec(`INSERT INTO schema_migrations (version) VALUES ('000001_admin_schema.sql')`); err != nil {
		t.Fatalf("could not insert migration: %v", err)
	}

	migErr := database.RequiresMigrationError()
	if migErr == nil {
		t.Fatal("expected migration error, got nil")
	}

	errStr := migErr.Error()
	for _, want := range []string{dbPath, "000001_admin_schema.sql", "pending migration", "dirsync migrate"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should contain %q, got: %s", want, errStr)
		}
	}
}

func TestRequiresMigrationErrorFreshDB(t *testing.T) {
	database, dbPath := openTemp(t)

	migErr := database.RequiresMigrationError()
	if migErr == nil {
		t.Fatal("expected migration error for fresh db, got nil")
	}
	errStr := migErr.Error()
	if !strings.Contains(errStr, "version: none") {
		t.Errorf("fresh db error should contain 'version: none', got: %s", errStr)
	}
	if !strings.Contains(errStr, dbPath) {
		t.Errorf("error should contain db path '%s', got: %s", dbPath, errStr)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	database, _ := openTemp(t)

	applied, err := database.MigrateWithInfo()
	if err != nil {
		t.Fatalf("could not run migrations: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("expected 2 applied migrations, got %v", applied)
	}

	applied, err = database.MigrateWithInfo()
	if err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected no migrations on second run, got %v", applied)
	}

	if migErr := database.RequiresMigrationError(); migErr != nil {
		t.Errorf("expected nil for fully migrated db, got: %v", migErr)
	}
}

func TestSeedRootDepartment(t *testing.T) {
	database, _ := openTemp(t)
	if err := database.Migrate(); err != nil {
		t.Fatalf("could not run migrations: %v", err)
	}

	var ancestors string
	if err := database.QueryRow("SELECT ancestors FROM sys_dept WHERE dept_id = 100").Scan(&ancestors); err != nil {
		t.Fatalf("root department missing: %v", err)
	}
	if ancestors != "0" {
		t.Errorf("root ancestors = %q, want %q", ancestors, "0")
	}

	// AUTOINCREMENT continues after the seeded id.
	res, err := database.Exec("INSERT INTO sys_dept (parent_id, ancestors, dept_name) VALUES (100, '0,100', 'x')")
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	id, _ := res.LastInsertId()
	if id != 101 {
		t.Errorf("next dept id = %d, want 101", id)
	}
}

func TestCheckSchema(t *testing.T) {
	database, _ := openTemp(t)
	ctx := context.Background()

	if err := database.CheckSchema(ctx); err == nil {
		t.Fatal("expected schema check to fail before migration")
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("could not run migrations: %v", err)
	}
	if err := database.CheckSchema(ctx); err != nil {
		t.Errorf("schema check failed after migration: %v", err)
	}
}

func TestMigrationStatusSQLiteOnly(t *testing.T) {
	database, _ := openTemp(t)
	_, pending, err := database.MigrationStatus()
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending, got %v", pending)
	}
	if errors.Is(err, db.ErrUnmanagedSchema) {
		t.Error("sqlite target should be managed")
	}
}
