package repositories

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/ems/internal/models"
	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
)

var (
	bucketSnapshots = []byte("snapshots")
	bucketCookies   = []byte("cookies")
)

// boltSnapshot is the on-disk form of an identity.
type boltSnapshot struct {
	ID      string    `cbor:"1,keyasint"`
	Name    string    `cbor:"2,keyasint"`
	Email   string    `cbor:"3,keyasint"`
	Role    string    `cbor:"4,keyasint"`
	SavedAt time.Time `cbor:"5,keyasint"`
}

// boltCookie is the on-disk form of a cookie.
type boltCookie struct {
	Name     string    `cbor:"1,keyasint"`
	Domain   string    `cbor:"2,keyasint"`
	Path     string    `cbor:"3,keyasint"`
	Value    string    `cbor:"4,keyasint"`
	Expires  time.Time `cbor:"5,keyasint,omitempty"`
	Secure   bool      `cbor:"6,keyasint"`
	HttpOnly bool      `cbor:"7,keyasint"`
}

// BoltStore implements [CredentialStore] and [CookieStore] on a bbolt file.
type BoltStore struct {
	db  *bbolt.DB
	key []byte
	now func() time.Time
}

// OpenBoltStore opens (creating if needed) the bbolt file at path.
func OpenBoltStore(path, key string) (*BoltStore, error) {
	if key == "" {
		key = DefaultStorageKey
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketSnapshots, bucketCookies} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db, key: []byte(key), now: utcNow}, nil
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Load reads the identity snapshot.
func (s *BoltStore) Load(ctx context.Context) (*models.Identity, error) {
	var rec boltSnapshot
	found := false

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get(s.key)
		if data == nil {
			return nil
		}
		found = true
		if err := cbor.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSnapshotNotFound
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrSnapshotCorrupt)
	}

	return &models.Identity{
		ID:    rec.ID,
		Name:  rec.Name,
		Email: rec.Email,
		Role:  models.ParseRole(rec.Role),
	}, nil
}

// Save writes the identity snapshot.
func (s *BoltStore) Save(ctx context.Context, identity models.Identity) error {
	data, err := cbor.Marshal(boltSnapshot{
		ID:      identity.ID,
		Name:    identity.Name,
		Email:   identity.Email,
		Role:    identity.Role.String(),
		SavedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put(s.key, data)
	})
}

// Clear removes the identity snapshot.
func (s *BoltStore) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete(s.key)
	})
}

// LoadCookies returns every stored cookie that has not expired.
func (s *BoltStore) LoadCookies(ctx context.Context) ([]*http.Cookie, error) {
	now := s.now()
	var cookies []*http.Cookie

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCookies).ForEach(func(_, v []byte) error {
			var rec boltCookie
			if err := cbor.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode cookie: %w", err)
			}
			if !rec.Expires.IsZero() && !rec.Expires.After(now) {
				return nil
			}
			cookies = append(cookies, &http.Cookie{
				Name:     rec.Name,
				Domain:   rec.Domain,
				Path:     rec.Path,
				Value:    rec.Value,
				Expires:  rec.Expires,
				Secure:   rec.Secure,
				HttpOnly: rec.HttpOnly,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return cookies, nil
}

// SaveCookies merges cookies set by host into the store.
func (s *BoltStore) SaveCookies(ctx context.Context, host string, cookies []*http.Cookie) error {
	now := s.now()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCookies)
		for _, c := range cookies {
			k := keyOf(host, c)
			id := []byte(k.domain + "\x00" + k.path + "\x00" + k.name)

			if expired(c, now) {
				if err := b.Delete(id); err != nil {
					return err
				}
				continue
			}

			data, err := cbor.Marshal(boltCookie{
				Name:     k.name,
				Domain:   k.domain,
				Path:     k.path,
				Value:    c.Value,
				Expires:  expiry(c, now),
				Secure:   c.Secure,
				HttpOnly: c.HttpOnly,
			})
			if err != nil {
				return fmt.Errorf("failed to encode cookie: %w", err)
			}
			if err := b.Put(id, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearCookies removes every stored cookie.
func (s *BoltStore) ClearCookies(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketCookies); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketCookies)
		return err
	})
}
