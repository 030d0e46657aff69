package jwk

import (
	"context"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

// Source supplies verification keys to a JWT realm. A realm's key source
// is one of: an inline JWKSet ([StaticSource]), a passphrase-derived HMAC
// key ([PassphraseSource]), or a remote JWKS endpoint ([Fetcher]).
//
// The context is honored only by sources that perform I/O; static
// sources ignore it. Implementations must be safe for concurrent use.
type Source interface {
	// VerificationKey resolves the key for the given key ID and family.
	// The result is either a *rsa.PublicKey (FamilyRSA) or []byte
	// (FamilyHMAC).
	VerificationKey(ctx context.Context, kid string, family Family) (any, error)
}

// StaticSource adapts an in-memory [KeySet] to the [Source] interface.
// This is the source for realms configured with an inline JWKSet.
type StaticSource struct {
	set *KeySet
}

// Compile-time assertion that StaticSource implements Source.
var _ Source = (*StaticSource)(nil)

// NewStaticSource creates a Source backed by the given key set.
func NewStaticSource(set *KeySet) *StaticSource {
	return &StaticSource{set: set}
}

// VerificationKey resolves the key from the underlying set. The context
// is ignored; static lookup never blocks.
func (s *StaticSource) VerificationKey(_ context.Context, kid string, family Family) (any, error) {
	return s.set.VerificationKey(kid, family)
}

// PassphraseSource supplies a single passphrase-derived HMAC key for
// every token, regardless of the token's kid header. Realms configured
// with an OIDC-style shared passphrase instead of a JWKSet use this
// source. Requests for an RSA key always fail with a key-type error.
type PassphraseSource struct {
	secret []byte
}

// Compile-time assertion that PassphraseSource implements Source.
var _ Source = (*PassphraseSource)(nil)

// NewPassphraseSource creates a Source whose HMAC key is derived from
// the passphrase via [HMACKeyFromPassphrase].
func NewPassphraseSource(passphrase string) *PassphraseSource {
	return &PassphraseSource{secret: HMACKeyFromPassphrase(passphrase)}
}

// VerificationKey returns the derived HMAC key for FamilyHMAC requests.
// The kid is intentionally ignored: passphrase realms have exactly one key.
func (s *PassphraseSource) VerificationKey(_ context.Context, _ string, family Family) (any, error) {
	if family != FamilyHMAC {
		return nil, raerr.New(raerr.CodeValidationKeyType,
			"jwk: passphrase source only provides HMAC keys")
	}
	secret := make([]byte, len(s.secret))
	copy(secret, s.secret)
	return secret, nil
}
