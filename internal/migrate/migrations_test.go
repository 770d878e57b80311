package migrate_test

import (
	"testing"

	"rescueline/internal/migrate"
	"rescueline/internal/store"
)

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := store.Open(store.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := migrate.Migrate(db.Conn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrate.Migrate(db.Conn); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var version int
	if err := db.Conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}

	var count int
	if err := db.Conn.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("schema_version rows = %d, want 1", count)
	}

	// The applied schema is usable after the repeat run.
	if _, err := db.Conn.Exec(`INSERT INTO slots(key, value, updated_at) VALUES ('k', 'v', '2026-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("insert into slots: %v", err)
	}
}
