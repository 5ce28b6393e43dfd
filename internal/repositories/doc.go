// Package repositories persists the small amount of client-side state the session core keeps between runs.
//
// # Credential Store
//
// A [CredentialStore] holds one serialized [models.Identity] under a fixed storage key
// ([DefaultStorageKey]). The snapshot only lets a restarted client render the signed-in
// user before any network round-trip; it is not proof of authorization. The server's
// transport cookies remain the authority.
//
// Implementations:
//   - [SnapshotRepository] : SQLite table keyed by storage key, JSON payload
//   - [BoltStore] : bbolt bucket, CBOR payload
//   - [MemoryStore] : process-local, used by tests and one-shot commands
//
// Load returns [ErrSnapshotNotFound] when nothing is stored and [ErrSnapshotCorrupt] when the
// stored payload cannot be decoded. Callers treat both as "no identity".
//
// # Cookies
//
// A [CookieStore] keeps the API's Set-Cookie values so each CLI invocation can present the
// access and refresh cookies issued to the previous one.
package repositories
