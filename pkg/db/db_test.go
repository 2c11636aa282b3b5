package db

import (
	"path/filepath"
	"testing"
	"time"
)

func TestInitAndMigrate(t *testing.T) {
	dir := t.TempDir()
	d, err := Init(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	defer d.Close()

	// All tables must exist after migration.
	for _, table := range []string{"cache", "grid_samples", "occurrences", "persistent_state"} {
		var name string
		err := d.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing: %v", table, err)
		}
	}

	// Migrations must be idempotent.
	if err := d.migrate(); err != nil {
		t.Errorf("second migrate() error: %v", err)
	}
}

func TestPruneCache(t *testing.T) {
	dir := t.TempDir()
	d, err := Init(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	old := time.Now().Add(-48 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES (?, ?, ?)", "stale", []byte("x"), old); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Exec("INSERT INTO cache (key, value) VALUES (?, ?)", "fresh", []byte("y")); err != nil {
		t.Fatal(err)
	}

	if err := d.PruneCache(24 * time.Hour); err != nil {
		t.Fatalf("PruneCache() error: %v", err)
	}

	var count int
	if err := d.QueryRow("SELECT count(*) FROM cache").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("cache rows after prune = %d, want 1", count)
	}
}
