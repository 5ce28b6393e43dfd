// package repositories provides persistence for the identity snapshot and transport cookies.
package repositories

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/desertthunder/ems/internal/models"
)

// DefaultStorageKey is the key the identity snapshot is stored under.
const DefaultStorageKey = "ems_current_user"

var (
	ErrSnapshotNotFound = errors.New("identity snapshot not found")
	ErrSnapshotCorrupt  = errors.New("identity snapshot unreadable")
)

// CredentialStore persists a single identity snapshot.
type CredentialStore interface {
	Load(ctx context.Context) (*models.Identity, error) // Load returns [ErrSnapshotNotFound] when empty
	Save(ctx context.Context, identity models.Identity) error
	Clear(ctx context.Context) error // Clear is a no-op when nothing is stored
}

// CookieStore persists cookies set by the API.
type CookieStore interface {
	LoadCookies(ctx context.Context) ([]*http.Cookie, error)
	// SaveCookies merges cookies into the store. Cookies already expired, or with a
	// negative MaxAge, delete their stored counterpart.
	SaveCookies(ctx context.Context, host string, cookies []*http.Cookie) error
	ClearCookies(ctx context.Context) error
}

// cookieKey identifies a cookie the way a user agent does.
type cookieKey struct {
	name, domain, path string
}

func keyOf(host string, c *http.Cookie) cookieKey {
	domain := c.Domain
	if domain == "" {
		domain = host
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	return cookieKey{name: c.Name, domain: domain, path: path}
}

// expired reports whether the cookie instructs deletion as of now.
func expired(c *http.Cookie, now time.Time) bool {
	if c.MaxAge < 0 {
		return true
	}
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// expiry returns the absolute expiry of c, preferring MaxAge over Expires.
func expiry(c *http.Cookie, now time.Time) time.Time {
	if c.MaxAge > 0 {
		return now.Add(time.Duration(c.MaxAge) * time.Second)
	}
	return c.Expires
}

// utcNow keeps stored timestamps comparable as text.
func utcNow() time.Time { return time.Now().UTC() }
