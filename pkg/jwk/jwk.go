// Package jwk provides JSON Web Key (JWK) and JWK Set handling for the
// realmauth authentication service: parsing JWKSet documents, resolving
// verification keys by key ID, deriving HMAC keys from OIDC-style
// passphrases, and fetching remote key sets with caching.
//
// Two key kinds are supported, matching what the JWT realms verify:
//
//   - RSA public keys (kty "RSA", base64url modulus/exponent)
//   - Octet-sequence keys (kty "oct", base64url secret bytes) for HMAC
//
// Key material is immutable once parsed. A [KeySet] may be shared across
// any number of concurrent authentication attempts without locking.
package jwk

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

// Family identifies the cryptographic family a verification key must
// belong to. A realm derives the required family from the signing
// algorithm in a token's header: RS*/PS* algorithms require [FamilyRSA],
// HS* algorithms require [FamilyHMAC].
type Family int

const (
	// FamilyRSA denotes RSA public keys used to verify RS256/RS384/RS512
	// (and PS*) signatures.
	FamilyRSA Family = iota

	// FamilyHMAC denotes symmetric octet-sequence keys used to verify
	// HS256/HS384/HS512 signatures.
	FamilyHMAC
)

// String returns a short lowercase name for the key family.
func (f Family) String() string {
	switch f {
	case FamilyRSA:
		return "rsa"
	case FamilyHMAC:
		return "hmac"
	default:
		return "unknown"
	}
}

// Key is a single parsed JWK. Exactly one of RSA or Secret is set,
// according to Kty. Key values are parsed once at load time; malformed
// entries are rejected by [ParseKeySet] rather than skipped, since a
// realm configured with a broken key set should fail loudly at startup.
type Key struct {
	// Kty is the JWK key type: "RSA" or "oct".
	Kty string

	// Kid is the key ID used to select this key during verification.
	Kid string

	// Alg is the optional algorithm hint from the JWK (e.g., "RS256").
	Alg string

	// RSA is the parsed public key for Kty "RSA".
	RSA *rsa.PublicKey

	// Secret is the raw octet-sequence value for Kty "oct".
	Secret []byte
}

// KeySet is an immutable collection of keys indexed by key ID. It is the
// inline key source for a JWT realm configured with a JWKSet document.
type KeySet struct {
	keys map[string]Key
}

// jwkDocument is the JSON structure of a JWKSet document. Only the
// fields needed for RSA and octet-sequence key construction are read.
type jwkDocument struct {
	Keys []jwkEntry `json:"keys"`
}

type jwkEntry struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	// RSA fields
	N string `json:"n"`
	E string `json:"e"`
	// Octet-sequence field
	K string `json:"k"`
}

// ParseKeySet parses a JWKSet JSON document into a [KeySet]. Entries
// without a kid, with an unsupported kty, or with malformed key material
// produce a VAL_xxx error; a realm must not come up with a partially
// usable key set.
func ParseKeySet(data []byte) (*KeySet, error) {
	var doc jwkDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, raerr.Wrap(err, raerr.CodeValidationFormat, "jwk: failed to parse JWKSet JSON")
	}
	if len(doc.Keys) == 0 {
		return nil, raerr.New(raerr.CodeValidationRequired, "jwk: JWKSet contains no keys")
	}

	keys := make(map[string]Key, len(doc.Keys))
	for _, e := range doc.Keys {
		if e.Kid == "" {
			return nil, raerr.New(raerr.CodeValidationRequired, "jwk: JWKSet entry missing kid")
		}
		if _, exists := keys[e.Kid]; exists {
			return nil, raerr.Newf(raerr.CodeValidation, "jwk: duplicate key id %q in JWKSet", e.Kid)
		}
		switch e.Kty {
		case "RSA":
			pub, err := parseRSAPublicKey(e.N, e.E)
			if err != nil {
				return nil, raerr.Wrapf(err, raerr.CodeValidationFormat, "jwk: malformed RSA key %q", e.Kid)
			}
			keys[e.Kid] = Key{Kty: e.Kty, Kid: e.Kid, Alg: e.Alg, RSA: pub}
		case "oct":
			if e.K == "" {
				return nil, raerr.Newf(raerr.CodeValidationRequired, "jwk: octet key %q missing k value", e.Kid)
			}
			secret, err := base64.RawURLEncoding.DecodeString(e.K)
			if err != nil {
				return nil, raerr.Wrapf(err, raerr.CodeValidationFormat, "jwk: malformed octet key %q", e.Kid)
			}
			keys[e.Kid] = Key{Kty: e.Kty, Kid: e.Kid, Alg: e.Alg, Secret: secret}
		default:
			return nil, raerr.Newf(raerr.CodeValidation, "jwk: unsupported key type %q for key %q", e.Kty, e.Kid)
		}
	}

	return &KeySet{keys: keys}, nil
}

// Len returns the number of keys in the set.
func (s *KeySet) Len() int {
	return len(s.keys)
}

// KeyIDs returns the key IDs present in the set, in unspecified order.
func (s *KeySet) KeyIDs() []string {
	ids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		ids = append(ids, kid)
	}
	return ids
}

// RSAKey resolves an RSA public key by key ID. Returns an NF_004 error
// if no key with the given ID exists, or a VAL_005 error if the key
// exists but is not an RSA key.
func (s *KeySet) RSAKey(kid string) (*rsa.PublicKey, error) {
	k, ok := s.keys[kid]
	if !ok {
		return nil, raerr.KeyNotFound(kid)
	}
	if k.Kty != "RSA" {
		return nil, raerr.Newf(raerr.CodeValidationKeyType,
			"jwk: key %q has type %q, expected RSA", kid, k.Kty)
	}
	return k.RSA, nil
}

// HMACKey resolves an octet-sequence key by key ID. Returns an NF_004
// error if no key with the given ID exists, or a VAL_005 error if the
// key exists but is not an octet-sequence key.
func (s *KeySet) HMACKey(kid string) ([]byte, error) {
	k, ok := s.keys[kid]
	if !ok {
		return nil, raerr.KeyNotFound(kid)
	}
	if k.Kty != "oct" {
		return nil, raerr.Newf(raerr.CodeValidationKeyType,
			"jwk: key %q has type %q, expected oct", kid, k.Kty)
	}
	// Defensive copy: callers must not be able to mutate the set's key bytes.
	secret := make([]byte, len(k.Secret))
	copy(secret, k.Secret)
	return secret, nil
}

// VerificationKey resolves a key by ID for the given family. The result
// is either a *rsa.PublicKey (FamilyRSA) or []byte (FamilyHMAC), typed
// as any so it can be handed directly to the JWT library's key function.
func (s *KeySet) VerificationKey(kid string, family Family) (any, error) {
	switch family {
	case FamilyRSA:
		return s.RSAKey(kid)
	case FamilyHMAC:
		return s.HMACKey(kid)
	default:
		return nil, raerr.Newf(raerr.CodeValidation, "jwk: unknown key family %d", int(family))
	}
}

// HMACKeyFromPassphrase derives an HMAC verification key from an
// OIDC-style passphrase. The transform is deliberately trivial and
// stable: the key is the UTF-8 byte sequence of the passphrase. Realms
// configured with a passphrase instead of a JWKSet use this key for
// every token regardless of the token's kid header.
func HMACKeyFromPassphrase(passphrase string) []byte {
	return []byte(passphrase)
}

// parseRSAPublicKey constructs an *rsa.PublicKey from base64url-encoded
// modulus (n) and exponent (e) values.
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, err
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}
