package realms

import (
	"fmt"
	"strings"
	"time"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
	"github.com/StricklySoft/realmauth/pkg/jwk"
)

// ClientAuthMode selects whether a JWT realm requires callers to prove
// application-level authorization with a shared secret, in addition to
// the token itself.
type ClientAuthMode string

const (
	// ClientAuthNone accepts tokens without client authentication.
	ClientAuthNone ClientAuthMode = "none"

	// ClientAuthSharedSecret requires the client-authentication header
	// with a shared secret exactly matching the realm's configured
	// value. A missing or mismatched secret is a terminal failure for
	// the realm, not a fall-through.
	ClientAuthSharedSecret ClientAuthMode = "shared_secret"
)

// supportedAlgorithms lists the JWS algorithms realms may allow.
var supportedAlgorithms = map[string]jwk.Family{
	"RS256": jwk.FamilyRSA,
	"RS384": jwk.FamilyRSA,
	"RS512": jwk.FamilyRSA,
	"HS256": jwk.FamilyHMAC,
	"HS384": jwk.FamilyHMAC,
	"HS512": jwk.FamilyHMAC,
}

// AlgorithmFamily returns the key family an allowed JWS algorithm
// verifies with, or false for algorithms this package does not support.
func AlgorithmFamily(alg string) (jwk.Family, bool) {
	family, ok := supportedAlgorithms[alg]
	return family, ok
}

// DefaultClockSkew is the leeway applied to not-before checks when a
// realm does not configure its own.
const DefaultClockSkew = 30 * time.Second

// JWTRealmConfig configures one JWT realm. Immutable once loaded; a
// chain holds one config per realm for the lifetime of the process.
type JWTRealmConfig struct {
	// Name is the realm's unique name within the chain.
	Name string `yaml:"name" json:"name"`

	// Order is the chain position; lower orders are tried first and
	// must be unique across the chain.
	Order int `yaml:"order" json:"order"`

	// PrincipalClaim names the claim holding the principal. Defaults
	// to "sub".
	PrincipalClaim string `yaml:"principal_claim" json:"principal_claim"`

	// StripPrincipalDomain removes an "@domain" suffix from the
	// principal claim value, for realms whose principal claim is an
	// email address.
	StripPrincipalDomain bool `yaml:"strip_principal_domain" json:"strip_principal_domain"`

	// GroupsClaim names the claim holding group names. Empty means the
	// realm extracts no groups.
	GroupsClaim string `yaml:"groups_claim" json:"groups_claim"`

	// Issuer is the exact "iss" value this realm accepts. A token with
	// any other issuer is not this realm's to judge.
	Issuer string `yaml:"issuer" json:"issuer"`

	// Audiences are the accepted "aud" values. The token's audience
	// (single value or list) must intersect this list.
	Audiences []string `yaml:"audiences" json:"audiences"`

	// AllowedAlgorithms is the JWS algorithm allow-list, e.g.
	// ["RS256"] or ["HS384", "HS512"].
	AllowedAlgorithms []string `yaml:"allowed_algorithms" json:"allowed_algorithms"`

	// ClockSkew is the leeway for not-before checks; expiry is always
	// strict. Zero selects [DefaultClockSkew]; negative is invalid.
	ClockSkew time.Duration `yaml:"clock_skew" json:"clock_skew"`

	// ClientAuthentication selects the client-authentication
	// requirement. Empty means [ClientAuthNone].
	ClientAuthentication ClientAuthMode `yaml:"client_authentication" json:"client_authentication"`

	// ClientSecret is the shared secret compared against the
	// client-authentication header. Required when ClientAuthentication
	// is [ClientAuthSharedSecret].
	ClientSecret Secret `yaml:"client_secret" json:"-"`

	// DelegatedRealm names the directory realm that is authoritative
	// for roles and metadata once this realm has verified the token.
	// Empty disables delegated authorization; role mapping applies
	// instead.
	DelegatedRealm string `yaml:"delegated_realm" json:"delegated_realm"`

	// Key source: exactly one of the three must be set. The JWKSet
	// fields locate RSA or octet-sequence keys by key ID; the
	// passphrase derives a single HMAC key from its UTF-8 bytes.

	// JWKSetPath is a filesystem path to an inline JWKSet document.
	JWKSetPath string `yaml:"jwkset_path" json:"jwkset_path"`

	// JWKSetURL is an HTTPS endpoint serving the JWKSet document.
	JWKSetURL string `yaml:"jwkset_url" json:"jwkset_url"`

	// HMACPassphrase derives the realm's HMAC verification key.
	HMACPassphrase Secret `yaml:"hmac_passphrase" json:"-"`
}

// Validate checks the configuration for logical correctness and returns
// a *[raerr.Error] with code [raerr.CodeValidation] if any field is
// invalid.
func (c *JWTRealmConfig) Validate() *raerr.Error {
	if c.Name == "" {
		return raerr.New(raerr.CodeValidationRequired, "realms: realm name is required")
	}
	if c.Order < 0 {
		return raerr.Newf(raerr.CodeValidationRange, "realms: realm %q order must be non-negative", c.Name)
	}
	if c.Issuer == "" {
		return raerr.Newf(raerr.CodeValidationRequired, "realms: realm %q requires an issuer", c.Name)
	}
	if len(c.Audiences) == 0 {
		return raerr.Newf(raerr.CodeValidationRequired, "realms: realm %q requires at least one audience", c.Name)
	}
	if len(c.AllowedAlgorithms) == 0 {
		return raerr.Newf(raerr.CodeValidationRequired, "realms: realm %q requires at least one allowed algorithm", c.Name)
	}
	for _, alg := range c.AllowedAlgorithms {
		if _, ok := AlgorithmFamily(alg); !ok {
			return raerr.Newf(raerr.CodeValidation,
				"realms: realm %q allows unsupported algorithm %q (supported: %s)",
				c.Name, alg, strings.Join(supportedAlgorithmNames(), ", "))
		}
	}
	if c.ClockSkew < 0 {
		return raerr.Newf(raerr.CodeValidationRange, "realms: realm %q clock skew must be non-negative", c.Name)
	}

	switch c.ClientAuthentication {
	case "", ClientAuthNone:
	case ClientAuthSharedSecret:
		if c.ClientSecret.Value() == "" {
			return raerr.Newf(raerr.CodeValidationRequired,
				"realms: realm %q requires a client secret for shared-secret client authentication", c.Name)
		}
	default:
		return raerr.Newf(raerr.CodeValidation,
			"realms: realm %q has unknown client authentication mode %q", c.Name, c.ClientAuthentication)
	}

	sources := 0
	if c.JWKSetPath != "" {
		sources++
	}
	if c.JWKSetURL != "" {
		sources++
	}
	if c.HMACPassphrase.Value() != "" {
		sources++
	}
	if sources != 1 {
		return raerr.Newf(raerr.CodeValidation,
			"realms: realm %q must configure exactly one key source (jwkset_path, jwkset_url, or hmac_passphrase), found %d",
			c.Name, sources)
	}

	if c.HMACPassphrase.Value() != "" {
		for _, alg := range c.AllowedAlgorithms {
			if family, _ := AlgorithmFamily(alg); family != jwk.FamilyHMAC {
				return raerr.Newf(raerr.CodeValidation,
					"realms: realm %q derives its key from a passphrase but allows non-HMAC algorithm %q", c.Name, alg)
			}
		}
	}

	return nil
}

// principalClaim returns the configured principal claim or its default.
func (c *JWTRealmConfig) principalClaim() string {
	if c.PrincipalClaim == "" {
		return "sub"
	}
	return c.PrincipalClaim
}

// clockSkew returns the configured leeway or its default.
func (c *JWTRealmConfig) clockSkew() time.Duration {
	if c.ClockSkew == 0 {
		return DefaultClockSkew
	}
	return c.ClockSkew
}

func supportedAlgorithmNames() []string {
	return []string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512"}
}

// DirectoryRealmConfig configures one directory-backed realm
// authenticating username/password credentials.
type DirectoryRealmConfig struct {
	// Name is the realm's unique name within the chain.
	Name string `yaml:"name" json:"name"`

	// Order is the chain position; lower orders are tried first.
	Order int `yaml:"order" json:"order"`

	// Type is the realm kind surfaced in authentication responses,
	// "native" or "file". Defaults to "native".
	Type string `yaml:"type" json:"type"`
}

// Validate checks the configuration for logical correctness.
func (c *DirectoryRealmConfig) Validate() *raerr.Error {
	if c.Name == "" {
		return raerr.New(raerr.CodeValidationRequired, "realms: realm name is required")
	}
	if c.Order < 0 {
		return raerr.Newf(raerr.CodeValidationRange, "realms: realm %q order must be non-negative", c.Name)
	}
	switch c.Type {
	case "", "native", "file":
	default:
		return raerr.New(raerr.CodeValidation,
			fmt.Sprintf("realms: realm %q has unknown type %q (expected native or file)", c.Name, c.Type))
	}
	return nil
}

// realmType returns the configured realm type or its default.
func (c *DirectoryRealmConfig) realmType() string {
	if c.Type == "" {
		return "native"
	}
	return c.Type
}
