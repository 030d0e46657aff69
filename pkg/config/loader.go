// Package config loads the realm server's configuration from struct
// tags, an optional YAML or JSON file, and the process environment.
//
// Values layer in priority order: `envDefault` tags seed the struct,
// a file (when one is configured) overrides the defaults, and
// environment variables override everything. Nested structs carry an
// `env` tag naming their variable prefix, so a Postgres block tagged
// `env:"POSTGRES"` resolves its DSN field from REALMAUTH_POSTGRES_DSN
// when the loader prefix is REALMAUTH.
//
//	type ServerConfig struct {
//		HTTPAddr  string        `yaml:"http_addr" env:"HTTP_ADDR" envDefault:":8080"`
//		CacheTTL  time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" envDefault:"20m"`
//		RealmFile string        `yaml:"realm_file" env:"REALM_FILE" required:"true"`
//	}
//
//	cfg := config.MustLoad[ServerConfig](
//		config.New().WithEnvPrefix("REALMAUTH").WithFile("realmauth.yaml"))
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves a configuration struct from defaults, an optional
// file, and the environment. The zero value reads no file and no
// prefix; configure it with [Loader.WithEnvPrefix] and
// [Loader.WithFile].
type Loader struct {
	envPrefix string
	filePath  string
}

// New returns a Loader with no file and no environment prefix.
func New() *Loader {
	return &Loader{}
}

// WithEnvPrefix sets the prefix prepended (with an underscore) to
// every resolved environment variable name. The prefix is uppercased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets the configuration file to load. A file that does not
// exist is not an error; the defaults and environment still apply.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct.
// Layers apply in order: envDefault tags, then the file, then the
// environment. Fields tagged `required:"true"` must be non-zero once
// all layers have applied, and a cfg implementing [Validator] gets a
// final Validate call.
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return raerr.New(raerr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	root := rv.Elem()

	// The leaves alias the struct's memory, so they stay valid across
	// the file unmarshal in between the two tag-driven passes.
	leaves := leafFields(root, l.envPrefix, "")

	if err := applyDefaults(leaves); err != nil {
		return err
	}
	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}
	if err := applyEnv(leaves); err != nil {
		return err
	}

	return validate(cfg, root)
}

// MustLoad builds a T with the given loader and panics on failure.
// Intended for server main functions where a bad configuration should
// stop the process immediately.
func MustLoad[T any](l *Loader) *T {
	cfg := new(T)
	if err := l.Load(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// field is one settable leaf of the configuration struct, paired with
// the environment variable name its env tags resolve to (empty when
// the field carries no env tag).
type field struct {
	value  reflect.Value
	tag    reflect.StructTag
	path   string
	envKey string
}

// leafFields flattens rv into its settable leaf fields, carrying
// nested env prefixes and the dotted field path down the walk.
// Unexported fields are skipped.
func leafFields(rv reflect.Value, prefix, path string) []field {
	var out []field
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		fv := rv.Field(i)
		sf := rt.Field(i)
		if !fv.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if fv.Kind() == reflect.Struct {
			out = append(out, leafFields(fv, joinEnv(prefix, sf.Tag.Get("env")), fieldPath)...)
			continue
		}

		f := field{value: fv, tag: sf.Tag, path: fieldPath}
		if name := sf.Tag.Get("env"); name != "" {
			f.envKey = joinEnv(prefix, name)
		}
		out = append(out, f)
	}

	return out
}

func joinEnv(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "_" + name
	}
}

// applyDefaults seeds zero-valued leaves from their envDefault tags.
func applyDefaults(leaves []field) error {
	for _, f := range leaves {
		def, ok := f.tag.Lookup("envDefault")
		if !ok || !f.value.IsZero() {
			continue
		}
		if err := setField(f.value, def); err != nil {
			return raerr.Wrapf(err, raerr.CodeInternalConfiguration,
				"config: invalid default for field %q", f.path)
		}
	}
	return nil
}

// applyEnv overrides leaves whose resolved environment variable is
// set. Variables that are set but empty still count as overrides.
func applyEnv(leaves []field) error {
	for _, f := range leaves {
		if f.envKey == "" {
			continue
		}
		val, ok := os.LookupEnv(f.envKey)
		if !ok {
			continue
		}
		if err := setField(f.value, val); err != nil {
			return raerr.Wrapf(err, raerr.CodeInternalConfiguration,
				"config: invalid value in %s", f.envKey)
		}
	}
	return nil
}

// loadFile unmarshals the configured file into cfg. The format is
// chosen by extension; a missing file is silently skipped.
func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return raerr.Newf(raerr.CodeInternalConfiguration,
			"config: path traversal not allowed in %q", l.filePath)
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return raerr.Wrapf(err, raerr.CodeInternalConfiguration,
			"config: failed to read %q", l.filePath)
	}

	var unmarshal func([]byte, any) error
	switch strings.ToLower(filepath.Ext(l.filePath)) {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	case ".json":
		unmarshal = json.Unmarshal
	default:
		return raerr.Newf(raerr.CodeInternalConfiguration,
			"config: unsupported file format %q", filepath.Ext(l.filePath))
	}

	if err := unmarshal(data, cfg); err != nil {
		return raerr.Wrapf(err, raerr.CodeInternalConfiguration,
			"config: failed to parse %q", l.filePath)
	}
	return nil
}

// setField parses raw into fv. Durations are handled before the kind
// switch since their kind is int64.
func setField(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)

	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return err
		}
		fv.SetInt(n)

	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return raerr.Newf(raerr.CodeInternalConfiguration,
				"config: unsupported slice element type %s", fv.Type().Elem())
		}
		parts := strings.Split(raw, ",")
		slice := reflect.MakeSlice(fv.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(strings.TrimSpace(p))
		}
		fv.Set(slice)

	default:
		return raerr.Newf(raerr.CodeInternalConfiguration,
			"config: unsupported field type %s", fv.Type())
	}

	return nil
}
