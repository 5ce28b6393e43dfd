package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/repositories"
	"github.com/desertthunder/ems/internal/shared"
)

// State is the session tri-state.
type State int

const (
	Unresolved State = iota
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unresolved"
	}
}

// Snapshot is a consistent read of the session.
type Snapshot struct {
	State      State
	Identity   *models.Identity
	Generation uint64
}

// Event describes one transition.
type Event struct {
	From       State
	To         State
	Identity   *models.Identity // Identity is nil unless To is Authenticated
	Generation uint64
	Cause      error // Cause is set when a failed refresh ended the session
	// Refreshed marks an in-place update of the same user's identity. The generation is unchanged.
	Refreshed bool
}

// Authenticator performs the credential calls.
type Authenticator interface {
	Login(ctx context.Context, creds models.Credentials) (*models.Identity, error)
	Register(ctx context.Context, profile models.RegisterProfile) (*models.Identity, error)
	Logout(ctx context.Context) error
}

// CookieClearer drops the transport credentials the API set.
type CookieClearer interface {
	ClearCookies(ctx context.Context) error
}

// ManagerOpts configures a [Manager].
type ManagerOpts struct {
	Auth  Authenticator
	Store repositories.CredentialStore
	// Cookies is cleared together with Store whenever the session ends.
	Cookies CookieClearer
	Logger  *log.Logger
}

type subscriber struct {
	id int
	fn func(Event)
}

// Manager holds the current identity and notifies subscribers of changes.
type Manager struct {
	auth    Authenticator
	store   repositories.CredentialStore
	cookies CookieClearer
	logger  *log.Logger

	// notifyMu serializes transitions with their notifications; always taken before mu.
	notifyMu sync.Mutex
	mu       sync.Mutex
	state    State
	identity *models.Identity
	gen      uint64

	subsMu  sync.Mutex
	subs    []subscriber
	nextSub int

	resolveOnce  sync.Once
	resolvedOnce sync.Once
	resolved     chan struct{}
}

// NewManager creates an unresolved [Manager].
func NewManager(opts ManagerOpts) *Manager {
	if opts.Store == nil {
		opts.Store = repositories.NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	return &Manager{
		auth:     opts.Auth,
		store:    opts.Store,
		cookies:  opts.Cookies,
		logger:   opts.Logger,
		resolved: make(chan struct{}),
	}
}

// ResolveInitialSession reads the persisted snapshot once. A present snapshot means
// Authenticated, anything else Anonymous. The server is not consulted; a stale snapshot
// is caught by the first authorized request. Later calls do nothing.
func (m *Manager) ResolveInitialSession(ctx context.Context) {
	m.resolveOnce.Do(func() {
		identity, err := m.store.Load(ctx)
		switch {
		case err == nil:
		case errors.Is(err, repositories.ErrSnapshotNotFound):
			identity = nil
		default:
			m.logger.Warn("ignoring unreadable identity snapshot", "error", err)
			identity = nil
		}

		m.notifyMu.Lock()
		defer m.notifyMu.Unlock()

		m.mu.Lock()
		if m.state != Unresolved {
			m.mu.Unlock()
			return
		}
		ev := m.transitionLocked(identity, nil)
		m.mu.Unlock()

		// Cookies without a snapshot are left over from a session that ended uncleanly.
		if ev.To == Anonymous {
			m.clearCookies(ctx)
		}

		m.logger.Debug("session resolved", "state", ev.To)
		m.markResolved()
		m.notify(ev)
	})
}

// Resolved is closed once the session has left [Unresolved].
func (m *Manager) Resolved() <-chan struct{} {
	return m.resolved
}

// WaitResolved blocks until the session is resolved or ctx ends.
func (m *Manager) WaitResolved(ctx context.Context) error {
	select {
	case <-m.resolved:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Login authenticates and makes the returned identity current, replacing any previous one.
func (m *Manager) Login(ctx context.Context, email, password string) (*models.Identity, error) {
	identity, err := m.auth.Login(ctx, models.Credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	m.establish(ctx, *identity)
	return m.Current(), nil
}

// Register creates an account and signs in as it.
func (m *Manager) Register(ctx context.Context, profile models.RegisterProfile) (*models.Identity, error) {
	identity, err := m.auth.Register(ctx, profile)
	if err != nil {
		return nil, err
	}
	m.establish(ctx, *identity)
	return m.Current(), nil
}

func (m *Manager) establish(ctx context.Context, identity models.Identity) {
	if err := m.store.Save(ctx, identity); err != nil {
		m.logger.Warn("failed to persist identity snapshot", "error", err)
	}

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	ev := m.transitionLocked(&identity, nil)
	m.mu.Unlock()

	m.logger.Info("signed in", "user", identity.Email, "role", identity.Role)
	m.markResolved()
	m.notify(ev)
}

// RefreshIdentity replaces the cached identity with the one fetch returns, usually the
// server's profile, and saves it. The result is dropped with [shared.ErrNotAuthenticated]
// if the session ended or changed while fetch ran.
//
// The same user keeps the current generation and subscribers see a Refreshed event; a
// different user is a full transition.
func (m *Manager) RefreshIdentity(ctx context.Context, fetch func(context.Context) (*models.Identity, error)) (*models.Identity, error) {
	gen, ok := m.Generation()
	if !ok {
		return nil, shared.ErrNotAuthenticated
	}

	identity, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if identity == nil || identity.ID == "" {
		return nil, fmt.Errorf("%w: profile has no id", shared.ErrAPIRequest)
	}

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.state != Authenticated || m.gen != gen {
		m.mu.Unlock()
		m.logger.Debug("session changed while fetching profile, dropping it")
		return nil, fmt.Errorf("%w: session changed", shared.ErrNotAuthenticated)
	}
	var ev Event
	if m.identity.ID == identity.ID {
		id := *identity
		m.identity = &id
		ev = Event{From: Authenticated, To: Authenticated, Identity: copyIdentity(m.identity), Generation: m.gen, Refreshed: true}
	} else {
		ev = m.transitionLocked(identity, nil)
	}
	m.mu.Unlock()

	if err := m.store.Save(ctx, *identity); err != nil {
		m.logger.Warn("failed to persist identity snapshot", "error", err)
	}
	m.notify(ev)
	return copyIdentity(ev.Identity), nil
}

// Logout ends the session. It is idempotent: when not Authenticated it only makes sure
// the credential store is empty.
func (m *Manager) Logout(ctx context.Context) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.state != Authenticated {
		m.mu.Unlock()
		m.clearStore(ctx)
		return
	}
	ev := m.transitionLocked(nil, nil)
	m.mu.Unlock()

	if err := m.auth.Logout(ctx); err != nil {
		m.logger.Warn("server logout failed", "error", err)
	}
	m.clearStore(ctx)

	m.logger.Info("signed out")
	m.notify(ev)
}

// Expire ends the session after an unrecoverable refresh failure, if gen is still
// the current Authenticated generation. It reports whether a transition happened.
func (m *Manager) Expire(gen uint64, cause error) bool {
	if !m.Active(gen) {
		return false
	}

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.state != Authenticated || m.gen != gen {
		m.mu.Unlock()
		return false
	}
	ev := m.transitionLocked(nil, cause)
	m.mu.Unlock()

	m.clearStore(context.Background())
	m.logger.Warn("session ended", "cause", cause)
	m.notify(ev)
	return true
}

// WhileActive runs fn if gen is the current Authenticated generation, holding the session
// still until fn returns. It reports whether fn ran. fn must not call back into m.
func (m *Manager) WhileActive(gen uint64, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Authenticated || m.gen != gen {
		return false
	}
	fn()
	return true
}

// Current returns a copy of the current identity, or nil.
func (m *Manager) Current() *models.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyIdentity(m.identity)
}

// Snapshot returns state, identity and generation read together.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, Identity: copyIdentity(m.identity), Generation: m.gen}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation returns the current generation and whether it is Authenticated.
func (m *Manager) Generation() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen, m.state == Authenticated
}

// Active reports whether the session is still Authenticated at gen.
func (m *Manager) Active(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Authenticated && m.gen == gen
}

// Subscribe registers fn for every future transition and returns a func that removes it.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscriber{id: id, fn: fn})

	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// transitionLocked moves to Authenticated(identity) or, with a nil identity, Anonymous.
// Caller holds mu.
func (m *Manager) transitionLocked(identity *models.Identity, cause error) Event {
	from := m.state
	m.gen++

	if identity != nil {
		id := *identity
		m.state, m.identity = Authenticated, &id
	} else {
		m.state, m.identity = Anonymous, nil
	}

	return Event{
		From:       from,
		To:         m.state,
		Identity:   copyIdentity(m.identity),
		Generation: m.gen,
		Cause:      cause,
	}
}

// notify calls subscribers in registration order. Caller holds notifyMu.
func (m *Manager) notify(ev Event) {
	m.subsMu.Lock()
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.subsMu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

func (m *Manager) clearStore(ctx context.Context) {
	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error("failed to clear identity snapshot", "error", err)
	}
	m.clearCookies(ctx)
}

func (m *Manager) clearCookies(ctx context.Context) {
	if m.cookies == nil {
		return
	}
	if err := m.cookies.ClearCookies(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error("failed to clear cookies", "error", err)
	}
}

func (m *Manager) markResolved() {
	m.resolvedOnce.Do(func() { close(m.resolved) })
}

func copyIdentity(id *models.Identity) *models.Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}

// RequireIdentity returns the current identity or [shared.ErrNotAuthenticated].
func (m *Manager) RequireIdentity() (*models.Identity, error) {
	if id := m.Current(); id != nil {
		return id, nil
	}
	return nil, fmt.Errorf("%w: run 'ems auth login' first", shared.ErrNotAuthenticated)
}
