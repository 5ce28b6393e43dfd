package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/repositories"
	"github.com/desertthunder/ems/internal/services"
	"github.com/desertthunder/ems/internal/shared"
	tu "github.com/desertthunder/ems/internal/testing"
)

var ada = models.Identity{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: models.RoleUser}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func setup(t *testing.T) (*tu.FakeAPI, *Manager, *repositories.MemoryStore) {
	t.Helper()

	api := tu.NewFakeAPI(t)
	api.AddAccount(ada, "secret")
	store := repositories.NewMemoryStore()
	transport := services.NewAPIService(api.BaseURL(), nil)
	if err := transport.UseCookieStore(context.Background(), store); err != nil {
		t.Fatalf("failed to attach cookie store: %v", err)
	}

	m := NewManager(ManagerOpts{Auth: services.NewAuthService(transport), Store: store, Cookies: transport})
	transport.GuardCookies(m.WhileActive)
	return api, m, store
}

func cookieCount(t *testing.T, store *repositories.MemoryStore) int {
	t.Helper()
	cookies, err := store.LoadCookies(context.Background())
	if err != nil {
		t.Fatalf("failed to load cookies: %v", err)
	}
	return len(cookies)
}

func TestResolveInitialSession(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshot present", func(t *testing.T) {
		_, m, store := setup(t)
		store.Save(ctx, ada)

		if m.State() != Unresolved {
			t.Fatalf("expected unresolved before resolution, got %v", m.State())
		}

		m.ResolveInitialSession(ctx)

		if m.State() != Authenticated {
			t.Errorf("expected authenticated, got %v", m.State())
		}
		if got := m.Current(); got == nil || *got != ada {
			t.Errorf("expected %+v, got %+v", ada, got)
		}
		select {
		case <-m.Resolved():
		default:
			t.Error("expected Resolved to be closed")
		}
	})

	t.Run("cookies without a snapshot are dropped", func(t *testing.T) {
		_, m, store := setup(t)
		store.SaveCookies(ctx, "127.0.0.1", []*http.Cookie{{Name: tu.RefreshCookie, Value: "stale", Path: "/"}})

		m.ResolveInitialSession(ctx)

		if n := cookieCount(t, store); n != 0 {
			t.Errorf("expected leftover cookies cleared, got %d", n)
		}
	})

	t.Run("snapshot absent", func(t *testing.T) {
		api, m, _ := setup(t)
		m.ResolveInitialSession(ctx)

		if m.State() != Anonymous {
			t.Errorf("expected anonymous, got %v", m.State())
		}
		if api.Calls("GET", services.ProfilePath) != 0 {
			t.Error("resolution must not call the server")
		}
	})

	t.Run("runs once", func(t *testing.T) {
		_, m, store := setup(t)
		rec := &recorder{}
		m.Subscribe(rec.record)

		m.ResolveInitialSession(ctx)
		store.Save(ctx, ada)
		m.ResolveInitialSession(ctx)

		if m.State() != Anonymous {
			t.Errorf("second resolution should be ignored, got %v", m.State())
		}
		if len(rec.all()) != 1 {
			t.Errorf("expected one event, got %d", len(rec.all()))
		}
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		_, m, store := setup(t)
		m.ResolveInitialSession(ctx)
		rec := &recorder{}
		m.Subscribe(rec.record)

		got, err := m.Login(ctx, "ada@example.com", "secret")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *got != ada || *m.Current() != ada {
			t.Errorf("expected current identity %+v", ada)
		}

		events := rec.all()
		if len(events) != 1 {
			t.Fatalf("expected exactly one event, got %d", len(events))
		}
		if events[0].From != Anonymous || events[0].To != Authenticated {
			t.Errorf("expected anonymous -> authenticated, got %v -> %v", events[0].From, events[0].To)
		}

		saved, err := store.Load(ctx)
		if err != nil || *saved != ada {
			t.Errorf("expected snapshot saved, got %+v (%v)", saved, err)
		}
	})

	t.Run("subscribers run before Login returns", func(t *testing.T) {
		_, m, _ := setup(t)
		m.ResolveInitialSession(ctx)

		var sawIdentity *models.Identity
		m.Subscribe(func(ev Event) { sawIdentity = m.Current() })

		if _, err := m.Login(ctx, "ada@example.com", "secret"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sawIdentity == nil || sawIdentity.ID != ada.ID {
			t.Error("expected subscriber to observe the new identity synchronously")
		}
	})

	t.Run("invalid credentials leave state alone", func(t *testing.T) {
		_, m, _ := setup(t)
		m.ResolveInitialSession(ctx)
		gen, _ := m.Generation()

		_, err := m.Login(ctx, "ada@example.com", "nope")
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
		if m.State() != Anonymous {
			t.Errorf("expected anonymous, got %v", m.State())
		}
		if g, _ := m.Generation(); g != gen {
			t.Error("generation should not change on failure")
		}
	})

	t.Run("login replaces identity", func(t *testing.T) {
		api, m, _ := setup(t)
		admin := models.Identity{ID: "u2", Name: "Root", Email: "root@example.com", Role: models.RoleAdmin}
		api.AddAccount(admin, "root")
		m.ResolveInitialSession(ctx)
		rec := &recorder{}

		m.Login(ctx, "ada@example.com", "secret")
		m.Subscribe(rec.record)
		if _, err := m.Login(ctx, "root@example.com", "root"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		events := rec.all()
		if len(events) != 1 || events[0].From != Authenticated || events[0].To != Authenticated {
			t.Fatalf("expected a single authenticated -> authenticated event, got %+v", events)
		}
		if events[0].Identity.Role != models.RoleAdmin {
			t.Errorf("expected admin identity, got %+v", events[0].Identity)
		}
	})

	t.Run("login before resolution resolves", func(t *testing.T) {
		_, m, _ := setup(t)

		if _, err := m.Login(ctx, "ada@example.com", "secret"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := m.WaitResolved(ctx); err != nil {
			t.Errorf("expected resolved, got %v", err)
		}
		m.ResolveInitialSession(ctx)
		if m.State() != Authenticated {
			t.Error("late resolution must not override login")
		}
	})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		_, m, _ := setup(t)
		m.ResolveInitialSession(ctx)

		got, err := m.Register(ctx, models.RegisterProfile{Name: "Bea", Email: "bea@example.com", Password: "pw"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Role != models.RoleUser || m.State() != Authenticated {
			t.Errorf("expected authenticated USER, got %+v in %v", got, m.State())
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		_, m, _ := setup(t)
		m.ResolveInitialSession(ctx)

		_, err := m.Register(ctx, models.RegisterProfile{Name: "Ada", Email: "ada@example.com", Password: "pw"})
		if !errors.Is(err, shared.ErrDuplicateAccount) {
			t.Errorf("expected ErrDuplicateAccount, got %v", err)
		}
		if m.State() != Anonymous {
			t.Errorf("expected anonymous, got %v", m.State())
		}
	})

	t.Run("validation", func(t *testing.T) {
		_, m, _ := setup(t)

		_, err := m.Register(ctx, models.RegisterProfile{Email: "bea@example.com"})
		if !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("twice is one transition and one server call", func(t *testing.T) {
		api, m, store := setup(t)
		m.ResolveInitialSession(ctx)
		m.Login(ctx, "ada@example.com", "secret")
		rec := &recorder{}
		m.Subscribe(rec.record)

		m.Logout(ctx)
		m.Logout(ctx)

		if api.Calls("POST", services.LogoutPath) != 1 {
			t.Errorf("expected one server logout, got %d", api.Calls("POST", services.LogoutPath))
		}
		if len(rec.all()) != 1 {
			t.Errorf("expected one transition, got %d", len(rec.all()))
		}
		if m.Current() != nil {
			t.Error("expected no identity")
		}
		if _, err := store.Load(ctx); !errors.Is(err, repositories.ErrSnapshotNotFound) {
			t.Errorf("expected empty store, got %v", err)
		}
	})

	t.Run("server failure is swallowed", func(t *testing.T) {
		api, m, store := setup(t)
		m.ResolveInitialSession(ctx)
		m.Login(ctx, "ada@example.com", "secret")
		api.SetLogoutStatus(500)
		if cookieCount(t, store) == 0 {
			t.Fatal("expected login to persist cookies")
		}

		m.Logout(ctx)

		if m.State() != Anonymous {
			t.Errorf("expected anonymous, got %v", m.State())
		}
		if _, err := store.Load(ctx); !errors.Is(err, repositories.ErrSnapshotNotFound) {
			t.Errorf("expected store cleared despite server failure, got %v", err)
		}
		if n := cookieCount(t, store); n != 0 {
			t.Errorf("expected cookies cleared despite server failure, got %d", n)
		}
		if _, err := m.RefreshIdentity(ctx, func(context.Context) (*models.Identity, error) { return &ada, nil }); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected signed out, got %v", err)
		}
	})

	t.Run("state changes before the server call", func(t *testing.T) {
		api, m, _ := setup(t)
		m.ResolveInitialSession(ctx)
		m.Login(ctx, "ada@example.com", "secret")
		gen, _ := m.Generation()

		gate := &gatedAuth{Authenticator: services.NewAuthService(services.NewAPIService(api.BaseURL(), nil)), m: m, gen: gen}
		m.auth = gate
		m.Logout(ctx)

		if gate.activeDuringLogout {
			t.Error("expected the session to be inactive while the server logout runs")
		}
	})

	t.Run("unsubscribe", func(t *testing.T) {
		_, m, _ := setup(t)
		m.ResolveInitialSession(ctx)
		rec := &recorder{}
		unsubscribe := m.Subscribe(rec.record)
		unsubscribe()

		m.Login(ctx, "ada@example.com", "secret")
		if len(rec.all()) != 0 {
			t.Error("expected no events after unsubscribe")
		}
	})
}

type gatedAuth struct {
	Authenticator
	m                  *Manager
	gen                uint64
	activeDuringLogout bool
}

func (g *gatedAuth) Logout(ctx context.Context) error {
	g.activeDuringLogout = g.m.Active(g.gen)
	return nil
}

func TestExpire(t *testing.T) {
	ctx := context.Background()

	t.Run("current generation", func(t *testing.T) {
		_, m, store := setup(t)
		m.ResolveInitialSession(ctx)
		m.Login(ctx, "ada@example.com", "secret")
		rec := &recorder{}
		m.Subscribe(rec.record)
		gen, _ := m.Generation()

		if !m.Expire(gen, shared.ErrRefreshFailed) {
			t.Fatal("expected expiry to transition")
		}
		if m.State() != Anonymous {
			t.Errorf("expected anonymous, got %v", m.State())
		}
		if _, err := store.Load(ctx); !errors.Is(err, repositories.ErrSnapshotNotFound) {
			t.Errorf("expected empty store, got %v", err)
		}
		if n := cookieCount(t, store); n != 0 {
			t.Errorf("expected cookies cleared, got %d", n)
		}
		events := rec.all()
		if len(events) != 1 || !errors.Is(events[0].Cause, shared.ErrRefreshFailed) {
			t.Errorf("expected one event carrying the cause, got %+v", events)
		}
	})

	t.Run("stale generation is ignored", func(t *testing.T) {
		_, m, _ := setup(t)
		m.ResolveInitialSession(ctx)
		m.Login(ctx, "ada@example.com", "secret")
		old, _ := m.Generation()
		m.Login(ctx, "ada@example.com", "secret")

		if m.Expire(old, shared.ErrRefreshFailed) {
			t.Error("expected stale expiry to be ignored")
		}
		if m.State() != Authenticated {
			t.Errorf("expected newer session to survive, got %v", m.State())
		}
	})
}

func TestRefreshIdentity(t *testing.T) {
	ctx := context.Background()
	promoted := ada
	promoted.Name, promoted.Role = "Ada L.", models.RoleOrganizer

	t.Run("same user keeps the generation", func(t *testing.T) {
		_, m, store := setup(t)
		m.ResolveInitialSession(ctx)
		m.Login(ctx, "ada@example.com", "secret")
		gen, _ := m.Generation()
		rec := &recorder{}
		m.Subscribe(rec.record)

		got, err := m.RefreshIdentity(ctx, func(context.Context) (*models.Identity, error) { return &promoted, nil })
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *got != promoted || *m.Current() != promoted {
			t.Errorf("expected %v, got %v", promoted, got)
		}
		if saved, err := store.Load(ctx); err != nil || *saved != promoted {
			t.Errorf("expected snapshot %v, got %v (%v)", promoted, saved, err)
		}
		if !m.Active(gen) {
			t.Error("expected the generation to survive an identity update")
		}
		events := rec.all()
		if len(events) != 1 || !events[0].Refreshed || events[0].Identity.Role != models.RoleOrganizer {
			t.Errorf("expected one refreshed event, got %+v", events)
		}
	})

	t.Run("different user is a transition", func(t *testing.T) {
		_, m, _ := setup(t)
		m.ResolveInitialSession(ctx)
		m.Login(ctx, "ada@example.com", "secret")
		gen, _ := m.Generation()
		rec := &recorder{}
		m.Subscribe(rec.record)

		bea := models.Identity{ID: "u2", Email: "bea@example.com", Role: models.RoleUser}
		if _, err := m.RefreshIdentity(ctx, func(context.Context) (*models.Identity, error) { return &bea, nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Active(gen) {
			t.Error("expected a new generation")
		}
		if events := rec.all(); len(events) != 1 || events[0].Refreshed {
			t.Errorf("expected one full transition, got %+v", events)
		}
	})

	t.Run("result is dropped after logout", func(t *testing.T) {
		_, m, store := setup(t)
		m.ResolveInitialSession(ctx)
		m.Login(ctx, "ada@example.com", "secret")

		_, err := m.RefreshIdentity(ctx, func(ctx context.Context) (*models.Identity, error) {
			m.Logout(ctx)
			return &promoted, nil
		})
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if m.State() != Anonymous {
			t.Errorf("expected anonymous, got %v", m.State())
		}
		if _, err := store.Load(ctx); !errors.Is(err, repositories.ErrSnapshotNotFound) {
			t.Errorf("expected no snapshot, got %v", err)
		}
	})

	t.Run("fetch failure keeps the cached identity", func(t *testing.T) {
		_, m, _ := setup(t)
		m.ResolveInitialSession(ctx)
		m.Login(ctx, "ada@example.com", "secret")

		_, err := m.RefreshIdentity(ctx, func(context.Context) (*models.Identity, error) { return nil, shared.ErrNetwork })
		if !errors.Is(err, shared.ErrNetwork) {
			t.Errorf("expected ErrNetwork, got %v", err)
		}
		if got := m.Current(); got == nil || *got != ada {
			t.Errorf("expected %v, got %v", ada, got)
		}
	})

	t.Run("signed out", func(t *testing.T) {
		_, m, _ := setup(t)
		m.ResolveInitialSession(ctx)

		called := false
		_, err := m.RefreshIdentity(ctx, func(context.Context) (*models.Identity, error) {
			called = true
			return &ada, nil
		})
		if !errors.Is(err, shared.ErrNotAuthenticated) || called {
			t.Errorf("expected ErrNotAuthenticated without a fetch, got %v (called %v)", err, called)
		}
	})
}

func TestWhileActive(t *testing.T) {
	ctx := context.Background()
	_, m, _ := setup(t)
	m.ResolveInitialSession(ctx)
	m.Login(ctx, "ada@example.com", "secret")
	gen, _ := m.Generation()

	ran := 0
	if !m.WhileActive(gen, func() { ran++ }) {
		t.Error("expected current generation to run")
	}

	m.Logout(ctx)
	if m.WhileActive(gen, func() { ran++ }) {
		t.Error("expected ended generation to be refused")
	}
	if ran != 1 {
		t.Errorf("expected one run, got %d", ran)
	}
}
