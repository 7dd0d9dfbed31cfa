package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsFromFS_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_a;"),
		},
		"sql/migrations/0002_more.up.sql": {
			Data: []byte("CREATE TABLE test_b (id INT);"),
		},
		"sql/migrations/0002_more.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_b;"),
		},
	}

	migrations, err := loadMigrationsFromFS(fsys)
	if err != nil {
		t.Fatalf("loadMigrationsFromFS failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}

	if migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Fatalf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].Version != 2 || migrations[1].Name != "more" {
		t.Fatalf("unexpected second migration: %+v", migrations[1])
	}
}

func TestLoadMigrationsFromFS_MissingDown(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "both up and down") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMigrationsFromFS_InvalidFilename(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/not_a_migration.sql": {
			Data: []byte("SELECT 1;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for invalid migration file name")
	}
}

func TestLoadMigrationsFromFS_EmptyFile(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("   \n"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for empty migration file body")
	}
}

func TestLoadMigrationsFromFS_NameMismatch(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql":    {Data: []byte("CREATE TABLE test_a (id INT);")},
		"sql/migrations/0001_other.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_a;")},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil || !strings.Contains(err.Error(), "two names") {
		t.Fatalf("expected name mismatch error, got %v", err)
	}
}

func TestEmbeddedMigrationsAreComplete(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("embedded migrations must load: %v", err)
	}
	if len(migrations) != 5 {
		t.Fatalf("expected 5 embedded migrations, got %d", len(migrations))
	}
	if !strings.Contains(migrations[0].UpSQL, "amount_paid_minor + due_amount_minor = total_minor") {
		t.Fatal("billing core migration must enforce the invoice balance")
	}
	if got := migrations[4].ID(); got != "0005_item_stock_flag" {
		t.Fatalf("unexpected last migration: %s", got)
	}
}

func TestCompareMigrations(t *testing.T) {
	t.Parallel()

	migrations := []migration{
		{Version: 1, Name: "billing_core", UpSQL: "CREATE TABLE invoices (id TEXT);"},
		{Version: 2, Name: "outbox_timeline", UpSQL: "CREATE TABLE outbox_messages (id TEXT);"},
		{Version: 3, Name: "idempotency_keys", UpSQL: "CREATE TABLE idempotency_keys (key TEXT);"},
	}

	status := compareMigrations(migrations, []appliedMigration{
		{Version: 1, Checksum: migrations[0].Checksum()},
		{Version: 3, Checksum: "edited-after-apply"},
	})
	if status.Version != 3 {
		t.Fatalf("expected version 3, got %d", status.Version)
	}
	if len(status.Pending) != 1 || status.Pending[0] != "0002_outbox_timeline" {
		t.Fatalf("unexpected pending: %v", status.Pending)
	}
	if len(status.Modified) != 1 || status.Modified[0] != "0003_idempotency_keys" {
		t.Fatalf("unexpected modified: %v", status.Modified)
	}
	if len(status.Applied) != 2 || status.UpToDate() {
		t.Fatalf("unexpected status: %+v", status)
	}

	clean := compareMigrations(migrations, []appliedMigration{
		{Version: 1, Checksum: migrations[0].Checksum()},
		{Version: 2, Checksum: migrations[1].Checksum()},
		{Version: 3, Checksum: migrations[2].Checksum()},
	})
	if !clean.UpToDate() || len(clean.Applied) != 3 {
		t.Fatalf("expected up-to-date status, got %+v", clean)
	}
}

func TestPlanMigrations(t *testing.T) {
	t.Parallel()

	migrations := []migration{
		{Version: 1, Name: "billing_core"},
		{Version: 2, Name: "outbox_timeline"},
		{Version: 3, Name: "idempotency_keys"},
		{Version: 4, Name: "stock_discrepancies"},
	}
	applied := []appliedMigration{{Version: 1}, {Version: 2}}

	ids := func(plan []migration) []string {
		out := make([]string, 0, len(plan))
		for _, m := range plan {
			out = append(out, m.ID())
		}
		return out
	}

	if got := ids(planMigrations(migrations, applied, migrationUp, 0)); strings.Join(got, ",") != "0003_idempotency_keys,0004_stock_discrepancies" {
		t.Fatalf("unexpected up plan: %v", got)
	}
	if got := ids(planMigrations(migrations, applied, migrationUp, 1)); strings.Join(got, ",") != "0003_idempotency_keys" {
		t.Fatalf("unexpected single-step up plan: %v", got)
	}
	if got := ids(planMigrations(migrations, applied, migrationDown, 5)); strings.Join(got, ",") != "0002_outbox_timeline,0001_billing_core" {
		t.Fatalf("down plan must go newest first: %v", got)
	}
	if got := planMigrations(migrations, nil, migrationDown, 1); len(got) != 0 {
		t.Fatalf("nothing to roll back on empty schema, got %v", ids(got))
	}
}
