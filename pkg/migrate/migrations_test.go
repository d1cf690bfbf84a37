package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/solestack/storefront/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one migration for %s, found %d", pattern, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsContainCounterConstraints(t *testing.T) {
	cases := map[string][]string{
		"*_create_variants.sql": {
			"CREATE TABLE IF NOT EXISTS variants",
			"CHECK (stock >= 0 AND reserved >= 0 AND reserved <= stock)",
			"CREATE TABLE IF NOT EXISTS stock_audit_entries",
			"DROP TABLE IF EXISTS variants",
		},
		"*_create_orders.sql": {
			"CREATE TABLE IF NOT EXISTS orders",
			"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
			"CHECK (returned_qty >= 0 AND returned_qty <= qty)",
			"DROP TABLE IF EXISTS orders",
		},
		"*_create_returns.sql": {
			"CREATE TABLE IF NOT EXISTS returns",
			"CREATE TABLE IF NOT EXISTS return_items",
		},
		"*_create_outbox_events.sql": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"WHERE published_at IS NULL AND terminal_at IS NULL",
		},
	}

	for pattern, checks := range cases {
		content := readMigration(t, pattern)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", pattern, sub)
			}
		}
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename to be rejected")
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Variant Barcode")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_variant_barcode.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestCreateSQLMigrationKeepsCreationOrder(t *testing.T) {
	dir := t.TempDir()
	// A version far in the future forces the bump path.
	future := filepath.Join(dir, "29990101000000_future.sql")
	if err := os.WriteFile(future, []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	first, err := migrate.CreateSQLMigration(dir, "add returns index")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := migrate.CreateSQLMigration(dir, "add audit index")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(first) != "29990101000001_add_returns_index.sql" {
		t.Fatalf("unexpected first version %s", filepath.Base(first))
	}
	if filepath.Base(second) != "29990101000002_add_audit_index.sql" {
		t.Fatalf("unexpected second version %s", filepath.Base(second))
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migrations should validate: %v", err)
	}
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	if _, err := migrate.CreateSQLMigration(t.TempDir(), " !! "); err == nil {
		t.Fatal("expected empty slug to be rejected")
	}
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"20260101000000_swapped.sql":    "-- +goose Down\n-- +goose Up\n",
		"20260101000001_unbalanced.sql": "-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n",
		"bad-name.sql":                  "-- +goose Up\n-- +goose Down\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	err := migrate.ValidateDir(dir)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"Down before Up", "unbalanced", "bad-name.sql"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}
