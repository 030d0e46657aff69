// Package directory provides user directories: lookup of user records
// by username, and password verification for realms that authenticate
// credentials directly.
//
// A directory backs two authentication paths. Username/password realms
// call [Store.VerifyPassword] to authenticate a submitted credential.
// Token realms configured with delegated authorization call
// [Store.Lookup] after verifying the token, replacing the token-derived
// roles and metadata with the directory's record for that user.
//
// Three implementations are provided: [MemoryStore] for static
// configuration and tests, [PostgresStore] backed by a pgx connection
// pool, and [RedisStore] backed by a Redis hash.
package directory

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// User is a directory record. Roles and Metadata are authoritative for
// delegated authorization: they replace whatever the authenticating
// realm derived from the credential.
type User struct {
	// Username is the unique identifier within the directory.
	Username string `json:"username"`

	// FullName is the user's display name, when the directory has one.
	FullName string `json:"full_name,omitempty"`

	// Email is the user's email address, when the directory has one.
	Email string `json:"email,omitempty"`

	// Roles are the role names assigned to the user.
	Roles []string `json:"roles"`

	// Metadata holds arbitrary directory attributes for the user.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Enabled gates the account. Disabled users fail both lookup paths
	// as if they did not exist.
	Enabled bool `json:"enabled"`
}

// Clone returns a deep copy of the user so callers can mutate the
// result without aliasing store state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Roles = append([]string(nil), u.Roles...)
	if u.Metadata != nil {
		out.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// HashPassword returns the hex-encoded SHA-256 digest of a password,
// the form every store persists. Digest comparison at verification
// time is constant-time.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// verifyDigest reports whether the password matches the stored
// hex-encoded digest, in constant time.
func verifyDigest(storedDigest, password string) bool {
	sum := sha256.Sum256([]byte(password))
	candidate := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(storedDigest), []byte(candidate)) == 1
}
