package directory

import (
	"context"
	"sync"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

// Store is a user directory. Implementations must be safe for
// concurrent use.
//
// Both methods treat disabled users as absent and return an NF_002
// error for them, so callers cannot distinguish a disabled account from
// a missing one.
type Store interface {
	// Lookup returns the user record for username.
	Lookup(ctx context.Context, username string) (*User, error)

	// VerifyPassword authenticates username with password and returns
	// the user record on success. A wrong password returns an AUTH_001
	// error; an unknown user returns NF_002.
	VerifyPassword(ctx context.Context, username, password string) (*User, error)
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

// memoryRecord pairs a user with its password digest.
type memoryRecord struct {
	user   User
	digest string
}

// MemoryStore is an in-memory [Store] for statically configured users
// and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]memoryRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory directory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]memoryRecord)}
}

// Put creates or replaces a user. An empty password leaves the user
// without a verifiable credential: lookups succeed but every password
// check fails.
func (s *MemoryStore) Put(user User, password string) error {
	if user.Username == "" {
		return raerr.New(raerr.CodeValidationRequired, "directory: username is required")
	}

	rec := memoryRecord{user: *user.Clone()}
	if password != "" {
		rec.digest = HashPassword(password)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = rec
	return nil
}

// Lookup implements [Store].
func (s *MemoryStore) Lookup(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	rec, ok := s.users[username]
	s.mu.RUnlock()

	if !ok || !rec.user.Enabled {
		return nil, raerr.UserNotFound(username)
	}
	return rec.user.Clone(), nil
}

// VerifyPassword implements [Store].
func (s *MemoryStore) VerifyPassword(_ context.Context, username, password string) (*User, error) {
	s.mu.RLock()
	rec, ok := s.users[username]
	s.mu.RUnlock()

	if !ok || !rec.user.Enabled {
		return nil, raerr.UserNotFound(username)
	}
	if rec.digest == "" || !verifyDigest(rec.digest, password) {
		return nil, raerr.Newf(raerr.CodeAuthentication, "directory: invalid credentials for user %q", username)
	}
	return rec.user.Clone(), nil
}
