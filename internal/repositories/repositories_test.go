package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func setupBolt(t *testing.T) *BoltStore {
	t.Helper()

	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "session.bolt"), "")
	if err != nil {
		t.Fatalf("failed to open bolt store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type store interface {
	CredentialStore
	CookieStore
}

func stores(t *testing.T) map[string]store {
	return map[string]store{
		"sqlite": NewSnapshotRepository(setupTestDB(t), ""),
		"bolt":   setupBolt(t),
		"memory": NewMemoryStore(),
	}
}

func TestCredentialStores(t *testing.T) {
	ctx := context.Background()
	ada := models.Identity{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: models.RoleOrganizer}

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("Load empty", func(t *testing.T) {
				_, err := s.Load(ctx)
				if !errors.Is(err, ErrSnapshotNotFound) {
					t.Errorf("expected ErrSnapshotNotFound, got %v", err)
				}
			})

			t.Run("Save then Load", func(t *testing.T) {
				if err := s.Save(ctx, ada); err != nil {
					t.Fatalf("failed to save: %v", err)
				}

				got, err := s.Load(ctx)
				if err != nil {
					t.Fatalf("failed to load: %v", err)
				}
				if *got != ada {
					t.Errorf("expected %+v, got %+v", ada, *got)
				}
			})

			t.Run("Save replaces", func(t *testing.T) {
				admin := models.Identity{ID: "u2", Name: "Root", Email: "root@example.com", Role: models.RoleAdmin}
				if err := s.Save(ctx, admin); err != nil {
					t.Fatalf("failed to save: %v", err)
				}

				got, err := s.Load(ctx)
				if err != nil {
					t.Fatalf("failed to load: %v", err)
				}
				if got.ID != "u2" || got.Role != models.RoleAdmin {
					t.Errorf("expected replaced identity, got %+v", *got)
				}
			})

			t.Run("Clear", func(t *testing.T) {
				if err := s.Clear(ctx); err != nil {
					t.Fatalf("failed to clear: %v", err)
				}
				if _, err := s.Load(ctx); !errors.Is(err, ErrSnapshotNotFound) {
					t.Errorf("expected ErrSnapshotNotFound after clear, got %v", err)
				}
				if err := s.Clear(ctx); err != nil {
					t.Errorf("second clear should be a no-op, got %v", err)
				}
			})
		})
	}
}

func TestCookieStores(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.SaveCookies(ctx, "api.example.com", []*http.Cookie{
				{Name: "accessToken", Value: "a1", Path: "/", HttpOnly: true, MaxAge: 900},
				{Name: "refreshToken", Value: "r1", Path: "/api/auth", HttpOnly: true},
			})
			if err != nil {
				t.Fatalf("failed to save cookies: %v", err)
			}

			cookies, err := s.LoadCookies(ctx)
			if err != nil {
				t.Fatalf("failed to load cookies: %v", err)
			}
			if len(cookies) != 2 {
				t.Fatalf("expected 2 cookies, got %d", len(cookies))
			}
			for _, c := range cookies {
				if c.Domain != "api.example.com" {
					t.Errorf("expected host as domain, got %q", c.Domain)
				}
			}

			t.Run("update and delete", func(t *testing.T) {
				err := s.SaveCookies(ctx, "api.example.com", []*http.Cookie{
					{Name: "accessToken", Value: "a2", Path: "/", MaxAge: 900},
					{Name: "refreshToken", Path: "/api/auth", MaxAge: -1},
				})
				if err != nil {
					t.Fatalf("failed to save cookies: %v", err)
				}

				cookies, err := s.LoadCookies(ctx)
				if err != nil {
					t.Fatalf("failed to load cookies: %v", err)
				}
				if len(cookies) != 1 || cookies[0].Value != "a2" {
					t.Errorf("expected only updated access cookie, got %+v", cookies)
				}
			})

			t.Run("expired cookies are skipped", func(t *testing.T) {
				err := s.SaveCookies(ctx, "api.example.com", []*http.Cookie{
					{Name: "stale", Value: "x", Expires: time.Now().Add(-time.Hour)},
				})
				if err != nil {
					t.Fatalf("failed to save cookies: %v", err)
				}

				cookies, _ := s.LoadCookies(ctx)
				for _, c := range cookies {
					if c.Name == "stale" {
						t.Error("expired cookie should not be stored")
					}
				}
			})

			t.Run("ClearCookies", func(t *testing.T) {
				if err := s.ClearCookies(ctx); err != nil {
					t.Fatalf("failed to clear cookies: %v", err)
				}
				cookies, _ := s.LoadCookies(ctx)
				if len(cookies) != 0 {
					t.Errorf("expected no cookies, got %d", len(cookies))
				}
			})
		})
	}
}

func TestSnapshotRepositoryCorrupt(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewSnapshotRepository(db, "custom_key")

	if _, err := db.Exec("INSERT INTO identity_snapshots (storage_key, payload) VALUES (?, ?)", "custom_key", []byte("{not json")); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	_, err := repo.Load(ctx)
	if !errors.Is(err, ErrSnapshotCorrupt) {
		t.Errorf("expected ErrSnapshotCorrupt, got %v", err)
	}

	t.Run("keys are isolated", func(t *testing.T) {
		other := NewSnapshotRepository(db, "")
		if _, err := other.Load(ctx); !errors.Is(err, ErrSnapshotNotFound) {
			t.Errorf("expected ErrSnapshotNotFound under default key, got %v", err)
		}
	})
}

func TestMemoryStoreCounts(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Save(ctx, models.Identity{ID: "1"})
	m.Clear(ctx)
	m.Clear(ctx)

	saves, clears := m.Counts()
	if saves != 1 || clears != 2 {
		t.Errorf("expected 1 save and 2 clears, got %d and %d", saves, clears)
	}
}
