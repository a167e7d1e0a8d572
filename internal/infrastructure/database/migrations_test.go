package database

import (
	"context"
	"embed"
	"testing"
)

//go:embed testdata/*.sql
var fixtureFS embed.FS

// useFixtureMigrations points the package at the testdata fixtures for
// the duration of one test.
func useFixtureMigrations(t *testing.T) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	})
	MigrationsFS = fixtureFS
	MigrationsDir = "testdata"
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	useFixtureMigrations(t)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "transition_log") {
		t.Fatal("transition_log not created")
	}
	pending, err := db.PendingMigrations(ctx)
	if err != nil {
		t.Fatalf("PendingMigrations() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after migrate = %v, want none", pending)
	}

	// Rerunning against an up-to-date database is a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	useFixtureMigrations(t)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "transition_log") {
		t.Error("transition_log survived rollback")
	}
	pending, err := db.PendingMigrations(ctx)
	if err != nil {
		t.Fatalf("PendingMigrations() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending after rollback = %v, want the rolled-back version", pending)
	}
}

func TestMigrateWithoutEmbeddedFiles(t *testing.T) {
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	})
	MigrationsFS = embed.FS{}
	MigrationsDir = "."

	db := openTestDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

func TestPendingMigrations(t *testing.T) {
	useFixtureMigrations(t)
	db := openTestDB(t)

	pending, err := db.PendingMigrations(context.Background())
	if err != nil {
		t.Fatalf("PendingMigrations() error = %v", err)
	}
	if len(pending) != 1 || pending[0] != "20260301_080000" {
		t.Errorf("pending = %v, want [20260301_080000]", pending)
	}
}

func TestSplitMigrationName(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantDesc    string
		wantUp      bool
		wantOk      bool
	}{
		{"20260210_000000_history_journal.up.sql", "20260210_000000", "history_journal", true, true},
		{"20260210_000000_history_journal.down.sql", "20260210_000000", "history_journal", false, true},
		{"notes.txt", "", "", false, false},
		{"20260210_000000_history_journal.sql", "", "", false, false},
		{"orphan.up.sql", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, desc, up, ok := splitMigrationName(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || desc != tt.wantDesc || up != tt.wantUp {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)",
					version, desc, up, tt.wantVersion, tt.wantDesc, tt.wantUp)
			}
		})
	}
}
