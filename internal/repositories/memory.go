package repositories

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/ems/internal/models"
)

// MemoryStore implements [CredentialStore] and [CookieStore] in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	identity *models.Identity
	cookies  map[cookieKey]*http.Cookie
	saves    int
	clears   int
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cookies: make(map[cookieKey]*http.Cookie)}
}

// Load returns the stored identity.
func (m *MemoryStore) Load(ctx context.Context) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return nil, ErrSnapshotNotFound
	}
	id := *m.identity
	return &id, nil
}

// Save replaces the stored identity.
func (m *MemoryStore) Save(ctx context.Context, identity models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = &identity
	m.saves++
	return nil
}

// Clear removes the stored identity.
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = nil
	m.clears++
	return nil
}

// Counts returns how many times Save and Clear have been called.
func (m *MemoryStore) Counts() (saves, clears int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves, m.clears
}

// LoadCookies returns every stored cookie that has not expired.
func (m *MemoryStore) LoadCookies(ctx context.Context) ([]*http.Cookie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var out []*http.Cookie
	for _, c := range m.cookies {
		if expired(c, now) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// SaveCookies merges cookies set by host into the store.
func (m *MemoryStore) SaveCookies(ctx context.Context, host string, cookies []*http.Cookie) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, c := range cookies {
		k := keyOf(host, c)
		if expired(c, now) {
			delete(m.cookies, k)
			continue
		}
		cp := *c
		cp.Domain, cp.Path = k.domain, k.path
		cp.Expires, cp.MaxAge = expiry(c, now), 0
		m.cookies[k] = &cp
	}
	return nil
}

// ClearCookies removes every stored cookie.
func (m *MemoryStore) ClearCookies(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.cookies)
	return nil
}
