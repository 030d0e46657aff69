package realms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
	"github.com/StricklySoft/realmauth/pkg/jwk"
)

func validJWTConfig() JWTRealmConfig {
	return JWTRealmConfig{
		Name:              "jwt-test",
		Order:             4,
		Issuer:            "https://issuer.example.com/",
		Audiences:         []string{"https://audience.example.com/"},
		AllowedAlgorithms: []string{"RS256"},
		JWKSetPath:        "testdata/jwkset.json",
	}
}

func TestJWTRealmConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*JWTRealmConfig)
		wantCode raerr.Code
	}{
		{
			name:   "valid",
			mutate: func(c *JWTRealmConfig) {},
		},
		{
			name: "valid with passphrase source",
			mutate: func(c *JWTRealmConfig) {
				c.JWKSetPath = ""
				c.HMACPassphrase = "a passphrase"
				c.AllowedAlgorithms = []string{"HS256", "HS384"}
			},
		},
		{
			name:     "missing name",
			mutate:   func(c *JWTRealmConfig) { c.Name = "" },
			wantCode: raerr.CodeValidationRequired,
		},
		{
			name:     "negative order",
			mutate:   func(c *JWTRealmConfig) { c.Order = -1 },
			wantCode: raerr.CodeValidationRange,
		},
		{
			name:     "missing issuer",
			mutate:   func(c *JWTRealmConfig) { c.Issuer = "" },
			wantCode: raerr.CodeValidationRequired,
		},
		{
			name:     "no audiences",
			mutate:   func(c *JWTRealmConfig) { c.Audiences = nil },
			wantCode: raerr.CodeValidationRequired,
		},
		{
			name:     "no algorithms",
			mutate:   func(c *JWTRealmConfig) { c.AllowedAlgorithms = nil },
			wantCode: raerr.CodeValidationRequired,
		},
		{
			name:     "unsupported algorithm",
			mutate:   func(c *JWTRealmConfig) { c.AllowedAlgorithms = []string{"ES256"} },
			wantCode: raerr.CodeValidation,
		},
		{
			name:     "negative clock skew",
			mutate:   func(c *JWTRealmConfig) { c.ClockSkew = -time.Second },
			wantCode: raerr.CodeValidationRange,
		},
		{
			name: "shared secret mode without secret",
			mutate: func(c *JWTRealmConfig) {
				c.ClientAuthentication = ClientAuthSharedSecret
			},
			wantCode: raerr.CodeValidationRequired,
		},
		{
			name: "unknown client authentication mode",
			mutate: func(c *JWTRealmConfig) {
				c.ClientAuthentication = "certificate"
			},
			wantCode: raerr.CodeValidation,
		},
		{
			name:     "no key source",
			mutate:   func(c *JWTRealmConfig) { c.JWKSetPath = "" },
			wantCode: raerr.CodeValidation,
		},
		{
			name: "two key sources",
			mutate: func(c *JWTRealmConfig) {
				c.JWKSetURL = "https://idp.example.com/jwks"
			},
			wantCode: raerr.CodeValidation,
		},
		{
			name: "passphrase with non-HMAC algorithm",
			mutate: func(c *JWTRealmConfig) {
				c.JWKSetPath = ""
				c.HMACPassphrase = "a passphrase"
			},
			wantCode: raerr.CodeValidation,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validJWTConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantCode == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tc.wantCode, err.Code)
		})
	}
}

func TestJWTRealmConfigDefaults(t *testing.T) {
	cfg := validJWTConfig()
	assert.Equal(t, "sub", cfg.principalClaim())
	assert.Equal(t, DefaultClockSkew, cfg.clockSkew())

	cfg.PrincipalClaim = "email"
	cfg.ClockSkew = 5 * time.Second
	assert.Equal(t, "email", cfg.principalClaim())
	assert.Equal(t, 5*time.Second, cfg.clockSkew())
}

func TestAlgorithmFamily(t *testing.T) {
	tests := []struct {
		alg    string
		family jwk.Family
		ok     bool
	}{
		{alg: "RS256", family: jwk.FamilyRSA, ok: true},
		{alg: "RS384", family: jwk.FamilyRSA, ok: true},
		{alg: "RS512", family: jwk.FamilyRSA, ok: true},
		{alg: "HS256", family: jwk.FamilyHMAC, ok: true},
		{alg: "HS384", family: jwk.FamilyHMAC, ok: true},
		{alg: "HS512", family: jwk.FamilyHMAC, ok: true},
		{alg: "ES256", ok: false},
		{alg: "none", ok: false},
		{alg: "", ok: false},
	}
	for _, tc := range tests {
		family, ok := AlgorithmFamily(tc.alg)
		assert.Equal(t, tc.ok, ok, tc.alg)
		if tc.ok {
			assert.Equal(t, tc.family, family, tc.alg)
		}
	}
}
