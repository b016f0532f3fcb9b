package store

import (
	"context"
	"database/sql"
	"reflect"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(driverName, MemoryTarget)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSplitStatements(t *testing.T) {
	script := `
-- +migrate Up
CREATE TABLE a (id INTEGER);
-- a comment; with a semicolon
CREATE TABLE b (id INTEGER);

;
`
	got := SplitStatements(script)
	want := []string{"CREATE TABLE a (id INTEGER)", "CREATE TABLE b (id INTEGER)"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyMigrations_SkipsApplied(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"m/0001_items.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE items (id INTEGER PRIMARY KEY);\n-- +migrate Down\nDROP TABLE items;")},
	}

	if err := applyMigrations(ctx, db, fsys, "m"); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	// Without the applied marker the plain CREATE TABLE would fail here.
	if err := applyMigrations(ctx, db, fsys, "m"); err != nil {
		t.Fatalf("second apply should be a no-op: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 migration row, got %d", n)
	}
}

func TestApplyMigrations_FailureIsNotRecorded(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"m/0001_broken.sql": &fstest.MapFile{Data: []byte("CREATE TABLE ok (id INTEGER);\nCREATE TABLE oops (;")},
	}

	if err := applyMigrations(ctx, db, fsys, "m"); err == nil {
		t.Fatal("expected broken migration to fail")
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 0 {
		t.Fatalf("failed migration must not be recorded, got %d rows", n)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'ok'`).Scan(&n); err != nil {
		t.Fatalf("inspect schema: %v", err)
	}
	if n != 0 {
		t.Fatal("statements before the failure must be rolled back")
	}
}

func TestEnsureSchema_CreatesMirrorTables(t *testing.T) {
	db := openRawDB(t)
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	for _, table := range mirroredTables {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n); err != nil {
			t.Fatalf("inspect %s: %v", table, err)
		}
		if n != 1 {
			t.Fatalf("expected table %s to exist", table)
		}
	}
}
