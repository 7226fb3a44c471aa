package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"

	integrations "github.com/goliatone/go-integrations"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}
	seen := map[string]bool{}
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		seen[entry.Dialect] = true
	}
	if !seen[DialectPostgres] || !seen[DialectSQLite] {
		t.Fatalf("expected postgres and sqlite trees, got %#v", seen)
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	reg, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		calls = append(calls, dialect+":"+label)
		return nil
	}, WithValidationTargets(" SQLite "), WithSourceLabel("app"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != "sqlite:app" {
		t.Fatalf("expected one sqlite registration labelled app, got %#v", calls)
	}
	if reg.SourceLabel != "app" {
		t.Fatalf("expected source label app, got %q", reg.SourceLabel)
	}
}

func TestRegister_RequiresCallback(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function to fail")
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{
		"postgres": DialectPostgres,
		"pgx":      DialectPostgres,
		"sqlite3":  DialectSQLite,
	}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil || got != want {
			t.Fatalf("expected %s for %s, got %q (%v)", want, driver, got, err)
		}
	}
	if _, err := DialectForDriver("mysql"); err == nil {
		t.Fatalf("expected unsupported driver to fail")
	}
}

func TestSQLiteCoreSchema_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-core-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	sqliteMigrations, err := fs.Sub(integrations.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_integrations_core_schema.up.sql"); err != nil {
		t.Fatalf("apply core schema: %v", err)
	}

	for _, table := range []string{"integrations", "integration_credentials", "operations", "operation_cancellations"} {
		if count := countTables(t, db, table); count != 1 {
			t.Fatalf("expected table %s after up migration", table)
		}
	}

	insertIntegration := `INSERT INTO integrations (id, user_id, service_name, status) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertIntegration, "i1", "u1", "github", "active"); err != nil {
		t.Fatalf("insert integration: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertIntegration, "i2", "u1", "github", "pending"); err == nil {
		t.Fatalf("expected unique user/service violation")
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO operation_cancellations (id, user_id, operation_id, request_type, status) VALUES (?, ?, ?, ?, ?)`,
		"c1", "u1", "missing-op", "user_requested", "requested",
	); err == nil {
		t.Fatalf("expected cancellation without operation to violate the foreign key")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_integrations_core_schema.down.sql"); err != nil {
		t.Fatalf("apply core schema down: %v", err)
	}
	if count := countTables(t, db, "integrations"); count != 0 {
		t.Fatalf("expected integrations to be dropped after down migration")
	}
}

func countTables(t *testing.T, db *sql.DB, name string) int {
	t.Helper()
	var count int
	if err := db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name,
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master for %s: %v", name, err)
	}
	return count
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
