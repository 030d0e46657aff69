package realms

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
	"github.com/StricklySoft/realmauth/pkg/jwk"
)

// ChainConfig is the YAML document describing a whole realm chain:
//
//	jwt:
//	  - name: jwt1
//	    order: 1
//	    issuer: https://issuer.example.com/
//	    audiences: [https://audience.example.com/]
//	    allowed_algorithms: [RS256]
//	    jwkset_path: /etc/realmauth/jwt1-jwkset.json
//	directory:
//	  - name: admin_file
//	    order: 0
//	    type: file
//
// Secrets (client secrets, HMAC passphrases) are deliberately not part
// of the document; callers inject them from the environment before
// validation.
type ChainConfig struct {
	JWT       []JWTRealmConfig       `yaml:"jwt"`
	Directory []DirectoryRealmConfig `yaml:"directory"`
}

// ParseChainConfig decodes and validates a chain configuration
// document. Realm names and orders must be unique across both realm
// kinds, matching what [NewChain] will later enforce.
func ParseChainConfig(data []byte) (*ChainConfig, error) {
	var cfg ChainConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, raerr.Wrap(err, raerr.CodeValidationFormat, "realms: chain configuration is not valid YAML")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadChainConfig reads and parses a chain configuration file.
func LoadChainConfig(path string) (*ChainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, raerr.Wrapf(err, raerr.CodeInternalConfiguration,
			"realms: failed to read chain configuration %q", path)
	}
	return ParseChainConfig(data)
}

// Validate checks every realm configuration and the cross-realm
// uniqueness of names and orders.
func (c *ChainConfig) Validate() error {
	if len(c.JWT)+len(c.Directory) == 0 {
		return raerr.New(raerr.CodeValidationRequired, "realms: chain configuration defines no realms")
	}

	names := make(map[string]struct{})
	orders := make(map[int]string)
	check := func(name string, order int) *raerr.Error {
		if _, dup := names[name]; dup {
			return raerr.Newf(raerr.CodeValidation, "realms: duplicate realm name %q", name)
		}
		names[name] = struct{}{}
		if other, dup := orders[order]; dup {
			return raerr.Newf(raerr.CodeValidation, "realms: realms %q and %q share order %d", other, name, order)
		}
		orders[order] = name
		return nil
	}

	for i := range c.JWT {
		if err := c.JWT[i].Validate(); err != nil {
			return err
		}
		if err := check(c.JWT[i].Name, c.JWT[i].Order); err != nil {
			return err
		}
	}
	for i := range c.Directory {
		if err := c.Directory[i].Validate(); err != nil {
			return err
		}
		if err := check(c.Directory[i].Name, c.Directory[i].Order); err != nil {
			return err
		}
	}
	return nil
}

// DefaultJWKSetTTL is the refresh interval for remote JWKSet endpoints
// built by [KeySource].
const DefaultJWKSetTTL = 15 * time.Minute

// KeySource builds the key source a realm configuration names: a
// passphrase-derived HMAC key, a JWKSet file loaded once at startup, or
// a remote JWKSet endpoint refreshed on a TTL. The configuration must
// already be validated, so exactly one of the three is set.
func KeySource(cfg JWTRealmConfig, client jwk.HTTPClient) (jwk.Source, error) {
	switch {
	case cfg.HMACPassphrase.Value() != "":
		return jwk.NewPassphraseSource(cfg.HMACPassphrase.Value()), nil

	case cfg.JWKSetPath != "":
		data, err := os.ReadFile(cfg.JWKSetPath)
		if err != nil {
			return nil, raerr.Wrapf(err, raerr.CodeInternalConfiguration,
				"realms: failed to read JWKSet for realm %q from %q", cfg.Name, cfg.JWKSetPath)
		}
		set, err := jwk.ParseKeySet(data)
		if err != nil {
			return nil, raerr.Wrapf(err, raerr.CodeInternalConfiguration,
				"realms: JWKSet for realm %q is invalid", cfg.Name)
		}
		return jwk.NewStaticSource(set), nil

	case cfg.JWKSetURL != "":
		return jwk.NewFetcher(cfg.JWKSetURL, client, DefaultJWKSetTTL), nil

	default:
		return nil, raerr.Newf(raerr.CodeInternalConfiguration,
			"realms: realm %q has no key source", cfg.Name)
	}
}
