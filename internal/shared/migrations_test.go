package shared

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestMigrations(t *testing.T) {
	t.Run("Embedded Files Pair Up", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}
		if len(migrations) != 2 {
			t.Fatalf("expected snapshot and cookie migrations, got %d", len(migrations))
		}

		for i, m := range migrations {
			if m.Version != i+1 {
				t.Errorf("expected version %d, got %d", i+1, m.Version)
			}
			if m.Up == "" || m.Down == "" {
				t.Errorf("migration %d is missing a direction", m.Version)
			}
		}
	})

	t.Run("Creates The Session Tables", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()
		ConfigureDatabase(db, 1, 1)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		for _, table := range []string{"identity_snapshots", "session_cookies", "schema_migrations"} {
			var n int
			if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n); err != nil || n != 1 {
				t.Errorf("expected table %s (%v)", table, err)
			}
		}
	})

	t.Run("Rollback Drops Only The Latest", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()
		ConfigureDatabase(db, 1, 1)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
		if _, err := db.Exec("INSERT INTO identity_snapshots (storage_key, payload) VALUES ('ems_current_user', '{}')"); err != nil {
			t.Fatalf("failed to seed snapshot: %v", err)
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		var cookies int
		if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = 'session_cookies'").Scan(&cookies); err != nil || cookies != 0 {
			t.Errorf("expected session_cookies dropped (%v)", err)
		}

		var snapshots int
		if err := db.QueryRow("SELECT COUNT(*) FROM identity_snapshots").Scan(&snapshots); err != nil || snapshots != 1 {
			t.Errorf("expected snapshot to survive, got %d (%v)", snapshots, err)
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to migrate forward again: %v", err)
		}
		var version int
		if err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil || version != 2 {
			t.Errorf("expected version 2, got %d (%v)", version, err)
		}
	})

	t.Run("Running Twice Is A No-op", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()
		ConfigureDatabase(db, 1, 1)

		for range 2 {
			if err := RunMigrations(db); err != nil {
				t.Fatalf("failed to run migrations: %v", err)
			}
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil || count != 2 {
			t.Errorf("expected 2 applied migrations, got %d (%v)", count, err)
		}
	})
}

func TestNewDatabase(t *testing.T) {
	t.Run("Creates Missing Directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state", "ems.db")

		db, err := NewDatabase(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer db.Close()

		var mode string
		if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil || mode != "wal" {
			t.Errorf("expected wal journal, got %q (%v)", mode, err)
		}
	})
}

func TestOpenBrowser(t *testing.T) {
	t.Run("Rejects Non Web Addresses", func(t *testing.T) {
		for _, raw := range []string{"", "file:///etc/passwd", "javascript:alert(1)", "http://"} {
			if err := OpenBrowser(raw); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("%q: expected ErrInvalidArgument, got %v", raw, err)
			}
		}
	})

	t.Run("Unsupported Platform", func(t *testing.T) {
		orig := getRuntime
		defer func() { getRuntime = orig }()
		getRuntime = func() string { return "plan9" }

		if err := OpenBrowser("http://127.0.0.1:3000"); err == nil {
			t.Error("expected error")
		}
	})
}
