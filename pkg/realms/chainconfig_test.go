package realms

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/StricklySoft/realmauth/internal/testutil/fixtures"
	raerr "github.com/StricklySoft/realmauth/pkg/errors"
	"github.com/StricklySoft/realmauth/pkg/jwk"
)

const chainYAML = `
jwt:
  - name: jwt1
    order: 1
    issuer: https://issuer.example.com/
    audiences:
      - https://audience.example.com/
    allowed_algorithms: [RS256]
    jwkset_path: testdata/jwt1-jwkset.json
    groups_claim: roles
  - name: jwt2
    order: 3
    principal_claim: email
    strip_principal_domain: true
    issuer: my-issuer
    audiences: [svc01, svc02, svc03]
    allowed_algorithms: [HS256]
    client_authentication: shared_secret
    delegated_realm: lookup_native
directory:
  - name: admin_file
    order: 0
    type: file
  - name: lookup_native
    order: 2
`

func TestParseChainConfig(t *testing.T) {
	cfg, err := parseChainWithSecrets(t, chainYAML)
	require.NoError(t, err)

	require.Len(t, cfg.JWT, 2)
	require.Len(t, cfg.Directory, 2)

	jwt1 := cfg.JWT[0]
	assert.Equal(t, fixtures.RealmJWT1, jwt1.Name)
	assert.Equal(t, 1, jwt1.Order)
	assert.Equal(t, fixtures.Issuer1, jwt1.Issuer)
	assert.Equal(t, []string{fixtures.Audience1}, jwt1.Audiences)
	assert.Equal(t, "roles", jwt1.GroupsClaim)

	jwt2 := cfg.JWT[1]
	assert.Equal(t, "email", jwt2.PrincipalClaim)
	assert.True(t, jwt2.StripPrincipalDomain)
	assert.Equal(t, ClientAuthSharedSecret, jwt2.ClientAuthentication)
	assert.Equal(t, fixtures.RealmNative, jwt2.DelegatedRealm)

	assert.Equal(t, "file", cfg.Directory[0].Type)
	assert.Equal(t, "native", cfg.Directory[1].realmType())
}

// parseChainWithSecrets parses the document and injects the secrets
// the YAML deliberately omits, mirroring how a deployment sources them
// from the environment.
func parseChainWithSecrets(t *testing.T, doc string) (*ChainConfig, error) {
	t.Helper()
	var cfg ChainConfig
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	for i := range cfg.JWT {
		if cfg.JWT[i].ClientAuthentication == ClientAuthSharedSecret {
			cfg.JWT[i].ClientSecret = Secret(fixtures.SharedSecret)
		}
		if cfg.JWT[i].Name == fixtures.RealmJWT2 {
			cfg.JWT[i].HMACPassphrase = Secret(fixtures.HMACPassphrase)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func TestParseChainConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantCode raerr.Code
	}{
		{
			name:     "not yaml",
			doc:      "{{{",
			wantCode: raerr.CodeValidationFormat,
		},
		{
			name:     "empty",
			doc:      "",
			wantCode: raerr.CodeValidationRequired,
		},
		{
			name: "duplicate order across kinds",
			doc: `
jwt:
  - name: jwt1
    order: 0
    issuer: iss
    audiences: [aud]
    allowed_algorithms: [HS256]
    hmac_passphrase: pass
directory:
  - name: admin_file
    order: 0
`,
			wantCode: raerr.CodeValidation,
		},
		{
			name: "invalid realm bubbles up",
			doc: `
jwt:
  - name: jwt1
    order: 1
    audiences: [aud]
    allowed_algorithms: [RS256]
    jwkset_path: testdata/jwkset.json
`,
			wantCode: raerr.CodeValidationRequired,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseChainConfig([]byte(tc.doc))
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, raerr.GetCode(err))
		})
	}
}

func TestLoadChainConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "realms.yaml")
	doc := `
directory:
  - name: admin_file
    order: 0
    type: file
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := LoadChainConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Directory, 1)
	assert.Equal(t, fixtures.RealmFile, cfg.Directory[0].Name)

	_, err = LoadChainConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, raerr.CodeInternalConfiguration, raerr.GetCode(err))
}

func TestKeySource(t *testing.T) {
	t.Run("passphrase", func(t *testing.T) {
		cfg := JWTRealmConfig{Name: "r", HMACPassphrase: "a passphrase"}
		source, err := KeySource(cfg, nil)
		require.NoError(t, err)

		key, err := source.VerificationKey(context.Background(), "", jwk.FamilyHMAC)
		require.NoError(t, err)
		assert.Equal(t, []byte("a passphrase"), key)
	})

	t.Run("jwkset file", func(t *testing.T) {
		doc := map[string]any{
			"keys": []map[string]any{{
				"kty": "oct",
				"kid": "file-key",
				"k":   "c2VjcmV0LWJ5dGVz",
			}},
		}
		data, err := json.Marshal(doc)
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "jwkset.json")
		require.NoError(t, os.WriteFile(path, data, 0o600))

		source, err := KeySource(JWTRealmConfig{Name: "r", JWKSetPath: path}, nil)
		require.NoError(t, err)

		key, err := source.VerificationKey(context.Background(), "file-key", jwk.FamilyHMAC)
		require.NoError(t, err)
		assert.Equal(t, []byte("secret-bytes"), key)
	})

	t.Run("jwkset file missing", func(t *testing.T) {
		_, err := KeySource(JWTRealmConfig{Name: "r", JWKSetPath: "does/not/exist.json"}, nil)
		require.Error(t, err)
		assert.Equal(t, raerr.CodeInternalConfiguration, raerr.GetCode(err))
	})

	t.Run("remote jwkset", func(t *testing.T) {
		source, err := KeySource(JWTRealmConfig{Name: "r", JWKSetURL: "https://idp.example.com/jwks"}, nil)
		require.NoError(t, err)
		assert.IsType(t, (*jwk.Fetcher)(nil), source)
	})

	t.Run("no source", func(t *testing.T) {
		_, err := KeySource(JWTRealmConfig{Name: "r"}, nil)
		require.Error(t, err)
		assert.Equal(t, raerr.CodeInternalConfiguration, raerr.GetCode(err))
	})
}
