// Package fixtures provides shared test data constants for the realmauth
// test suite.
//
// Using common constants for realm and token values prevents magic strings
// in tests and keeps realm configurations consistent across packages.
package fixtures

// Realm names used across chain and realm tests. The three JWT realms
// mirror a typical production chain: an RSA realm with role mapping, an
// HMAC-passphrase realm with delegated authorization, and an HMAC-JWKSet
// realm with role mapping.
const (
	// RealmJWT1 is an RSA-signed realm using role mapping and no client
	// authentication.
	RealmJWT1 = "jwt1"

	// RealmJWT2 is an HMAC-passphrase realm with delegated authorization
	// and shared-secret client authentication.
	RealmJWT2 = "jwt2"

	// RealmJWT3 is an HMAC-JWKSet realm with role mapping and
	// shared-secret client authentication.
	RealmJWT3 = "jwt3"

	// RealmFile is a username/password realm ordered before the JWT realms.
	RealmFile = "admin_file"

	// RealmNative is the username/password realm that RealmJWT2 delegates
	// authorization to.
	RealmNative = "lookup_native"
)

// Issuer and audience values for the test JWT realms.
const (
	Issuer1   = "https://issuer.example.com/"
	Audience1 = "https://audience.example.com/"

	Issuer2 = "my-issuer"
	// RealmJWT2 accepts three audiences; these are the configured values.
	Audience2a = "svc01"
	Audience2b = "svc02"
	Audience2c = "svc03"

	Issuer3   = "jwt3-issuer"
	Audience3 = "jwt3-audience"
)

// Key material identifiers and secrets for test realms. These are
// deliberately weak values suitable only for tests.
const (
	// RSAKeyID is the key ID of the RSA key in the test JWKSet.
	RSAKeyID = "test-rsa-key"

	// HMACKeyID384 and HMACKeyID512 are octet-sequence keys in the test
	// JWKSet used by RealmJWT3.
	HMACKeyID384 = "test-hmac-384"
	HMACKeyID512 = "test-hmac-512"

	// HMACPassphrase is the OIDC-style passphrase RealmJWT2 derives its
	// HMAC key from.
	HMACPassphrase = "test-HMAC/secret passphrase-value"

	// SharedSecret is the client-authentication value for realms that
	// require it.
	SharedSecret = "test-secret"
)
