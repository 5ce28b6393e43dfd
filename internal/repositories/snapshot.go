package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/ems/internal/models"
)

// SnapshotRepository implements [CredentialStore] and [CookieStore] on SQLite.
type SnapshotRepository struct {
	db  *sql.DB
	key string
	now func() time.Time
}

// NewSnapshotRepository creates a new [SnapshotRepository]. An empty key uses [DefaultStorageKey].
func NewSnapshotRepository(db *sql.DB, key string) *SnapshotRepository {
	if key == "" {
		key = DefaultStorageKey
	}
	return &SnapshotRepository{db: db, key: key, now: utcNow}
}

// Load reads the identity snapshot.
func (r *SnapshotRepository) Load(ctx context.Context) (*models.Identity, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, "SELECT payload FROM identity_snapshots WHERE storage_key = ?", r.key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	var identity models.Identity
	if err := json.Unmarshal(payload, &identity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if identity.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrSnapshotCorrupt)
	}
	return &identity, nil
}

// Save writes the identity snapshot, replacing any previous one.
func (r *SnapshotRepository) Save(ctx context.Context, identity models.Identity) error {
	payload, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	query := `
		INSERT INTO identity_snapshots (storage_key, payload, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(storage_key) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at
	`
	if _, err := r.db.ExecContext(ctx, query, r.key, payload, r.now()); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Clear removes the identity snapshot.
func (r *SnapshotRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM identity_snapshots WHERE storage_key = ?", r.key); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}

// LoadCookies returns every stored cookie that has not expired.
func (r *SnapshotRepository) LoadCookies(ctx context.Context) ([]*http.Cookie, error) {
	query := `
		SELECT name, domain, path, value, expires_at, secure, http_only
		FROM session_cookies
		WHERE expires_at IS NULL OR expires_at > ?
	`

	rows, err := r.db.QueryContext(ctx, query, r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to query cookies: %w", err)
	}
	defer rows.Close()

	var cookies []*http.Cookie
	for rows.Next() {
		var (
			c       http.Cookie
			expires sql.NullTime
		)
		if err := rows.Scan(&c.Name, &c.Domain, &c.Path, &c.Value, &expires, &c.Secure, &c.HttpOnly); err != nil {
			return nil, fmt.Errorf("failed to scan cookie: %w", err)
		}
		if expires.Valid {
			c.Expires = expires.Time
		}
		cookies = append(cookies, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cookies: %w", err)
	}
	return cookies, nil
}

// SaveCookies merges cookies set by host into the store.
func (r *SnapshotRepository) SaveCookies(ctx context.Context, host string, cookies []*http.Cookie) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	for _, c := range cookies {
		k := keyOf(host, c)
		if expired(c, now) {
			if _, err := tx.ExecContext(ctx, "DELETE FROM session_cookies WHERE name = ? AND domain = ? AND path = ?", k.name, k.domain, k.path); err != nil {
				return fmt.Errorf("failed to delete cookie %s: %w", c.Name, err)
			}
			continue
		}

		var expires sql.NullTime
		if at := expiry(c, now); !at.IsZero() {
			expires = sql.NullTime{Time: at.UTC(), Valid: true}
		}

		query := `
			INSERT INTO session_cookies (name, domain, path, value, expires_at, secure, http_only)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name, domain, path) DO UPDATE SET
				value = excluded.value, expires_at = excluded.expires_at,
				secure = excluded.secure, http_only = excluded.http_only
		`
		if _, err := tx.ExecContext(ctx, query, k.name, k.domain, k.path, c.Value, expires, c.Secure, c.HttpOnly); err != nil {
			return fmt.Errorf("failed to save cookie %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cookies: %w", err)
	}
	return nil
}

// ClearCookies removes every stored cookie.
func (r *SnapshotRepository) ClearCookies(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM session_cookies"); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	return nil
}
