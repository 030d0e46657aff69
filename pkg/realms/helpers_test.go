package realms

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/realmauth/internal/testutil/fixtures"
	"github.com/StricklySoft/realmauth/pkg/directory"
	"github.com/StricklySoft/realmauth/pkg/jwk"
	"github.com/StricklySoft/realmauth/pkg/rolemapping"
)

// testRSAKey is generated once and shared across tests; RSA key
// generation is slow enough to dominate the test run otherwise.
var (
	testRSAKeyOnce sync.Once
	testRSAKey     *rsa.PrivateKey
)

func rsaTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testRSAKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("failed to generate RSA key: %v", err)
		}
		testRSAKey = key
	})
	require.NotNil(t, testRSAKey)
	return testRSAKey
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return buf
}

// rsaKeySet builds a single-key RSA JWKSet.
func rsaKeySet(t *testing.T, kid string, pub *rsa.PublicKey) *jwk.KeySet {
	t.Helper()
	doc := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	set, err := jwk.ParseKeySet(data)
	require.NoError(t, err)
	return set
}

// octKeySet builds an octet-sequence JWKSet from kid -> secret bytes.
func octKeySet(t *testing.T, secrets map[string][]byte) *jwk.KeySet {
	t.Helper()
	var entries []map[string]any
	for kid, secret := range secrets {
		entries = append(entries, map[string]any{
			"kty": "oct",
			"kid": kid,
			"k":   base64.RawURLEncoding.EncodeToString(secret),
		})
	}
	data, err := json.Marshal(map[string]any{"keys": entries})
	require.NoError(t, err)
	set, err := jwk.ParseKeySet(data)
	require.NoError(t, err)
	return set
}

// signToken signs a token with the given method, key, and kid header.
func signToken(t *testing.T, method jwt.SigningMethod, key any, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

// tokenClaims builds a claims set with a one-hour lifetime.
func tokenClaims(issuer string, audience any, extra jwt.MapClaims) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": issuer,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	return claims
}

// ---------------------------------------------------------------------------
// Realm fixtures mirroring a production chain
// ---------------------------------------------------------------------------

// newJWT1Realm builds the RSA realm: role mapping, no client
// authentication. Returns the realm and the signing key.
func newJWT1Realm(t *testing.T, mappings rolemapping.Store) (*JWTRealm, *rsa.PrivateKey) {
	t.Helper()
	key := rsaTestKey(t)
	cfg := JWTRealmConfig{
		Name:              fixtures.RealmJWT1,
		Order:             1,
		PrincipalClaim:    "sub",
		GroupsClaim:       "roles",
		Issuer:            fixtures.Issuer1,
		Audiences:         []string{fixtures.Audience1},
		AllowedAlgorithms: []string{"RS256"},
		JWKSetPath:        "testdata/jwt1-jwkset.json",
	}
	opts := []JWTRealmOption{}
	if mappings != nil {
		opts = append(opts, WithRoleMappings(mappings))
	}
	realm, err := NewJWTRealm(cfg, jwk.NewStaticSource(rsaKeySet(t, fixtures.RSAKeyID, &key.PublicKey)), opts...)
	require.NoError(t, err)
	return realm, key
}

// newJWT2Realm builds the HMAC-passphrase realm: email principal with
// domain stripping, shared-secret client authentication, delegated
// authorization.
func newJWT2Realm(t *testing.T, dir directory.Store) *JWTRealm {
	t.Helper()
	cfg := JWTRealmConfig{
		Name:                 fixtures.RealmJWT2,
		Order:                3,
		PrincipalClaim:       "email",
		StripPrincipalDomain: true,
		Issuer:               fixtures.Issuer2,
		Audiences:            []string{fixtures.Audience2a, fixtures.Audience2b, fixtures.Audience2c},
		AllowedAlgorithms:    []string{"HS256"},
		ClientAuthentication: ClientAuthSharedSecret,
		ClientSecret:         Secret(fixtures.SharedSecret),
		DelegatedRealm:       fixtures.RealmNative,
		HMACPassphrase:       Secret(fixtures.HMACPassphrase),
	}
	realm, err := NewJWTRealm(cfg,
		jwk.NewPassphraseSource(fixtures.HMACPassphrase),
		WithDelegatedDirectory(dir))
	require.NoError(t, err)
	return realm
}

// newJWT3Realm builds the HMAC-JWKSet realm: HS384/HS512 keys located
// by kid, shared-secret client authentication, role mapping. Returns
// the realm and the two signing keys.
func newJWT3Realm(t *testing.T, mappings rolemapping.Store) (*JWTRealm, []byte, []byte) {
	t.Helper()
	key384 := randomBytes(t, 48)
	key512 := randomBytes(t, 64)
	cfg := JWTRealmConfig{
		Name:                 fixtures.RealmJWT3,
		Order:                5,
		PrincipalClaim:       "sub",
		Issuer:               fixtures.Issuer3,
		Audiences:            []string{fixtures.Audience3},
		AllowedAlgorithms:    []string{"HS384", "HS512"},
		ClientAuthentication: ClientAuthSharedSecret,
		ClientSecret:         Secret(fixtures.SharedSecret),
		JWKSetPath:           "testdata/jwt3-jwkset.json",
	}
	keys := octKeySet(t, map[string][]byte{
		fixtures.HMACKeyID384: key384,
		fixtures.HMACKeyID512: key512,
	})
	opts := []JWTRealmOption{}
	if mappings != nil {
		opts = append(opts, WithRoleMappings(mappings))
	}
	realm, err := NewJWTRealm(cfg, jwk.NewStaticSource(keys), opts...)
	require.NoError(t, err)
	return realm, key384, key512
}

// jwkStaticSourceForTest wraps the shared RSA test key as a static
// key source keyed by the fixture key ID.
func jwkStaticSourceForTest(t *testing.T, key *rsa.PrivateKey) jwk.Source {
	t.Helper()
	return jwk.NewStaticSource(rsaKeySet(t, fixtures.RSAKeyID, &key.PublicKey))
}

// newNativeDirectory seeds the directory that jwt2 delegates to.
func newNativeDirectory(t *testing.T) *directory.MemoryStore {
	t.Helper()
	store := directory.NewMemoryStore()
	require.NoError(t, store.Put(directory.User{
		Username: "user2",
		Roles:    []string{"directory-role"},
		Metadata: map[string]any{"department": "engineering"},
		Enabled:  true,
	}, "native-test-password"))
	return store
}

func mustParseExpr(t *testing.T, doc string) rolemapping.Expression {
	t.Helper()
	expr, err := rolemapping.ParseExpression([]byte(doc))
	require.NoError(t, err)
	return expr
}
