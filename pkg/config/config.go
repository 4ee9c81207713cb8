// Package config reads the modular runenv configuration file.
//
// The file is a map of module names to module documents. Each module is kept as raw
// YAML until a component asks for it with Get, so that unrelated modules never fail to
// load and ${...} placeholders are expanded against the environment as it is at that
// moment.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/animalet/runenv/internal/expansion"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a configuration file.
type Format string

const (
	YamlFormat Format = "yaml"
	TomlFormat Format = "toml"
	JsonFormat Format = "json"
)

// WellKnownFiles are looked up in order when no configuration path is given.
var WellKnownFiles = []string{"runenv.yaml", "runenv.yml", "runenv.toml"}

type (
	// Config holds the raw modules of a configuration file.
	Config struct {
		path    string
		modules map[string]ModuleRawConfig
	}

	// ModuleRawConfig is the YAML document of a single module.
	ModuleRawConfig []byte

	// Validatable is implemented by every module configuration.
	Validatable interface {
		Validate() error
	}
)

// UnmarshalYAML keeps the node as raw YAML.
func (m *ModuleRawConfig) UnmarshalYAML(value *yaml.Node) error {
	out, err := yaml.Marshal(value)
	if err != nil {
		return err
	}
	*m = out
	return nil
}

// FormatOf infers the format of a file from its extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YamlFormat, nil
	case ".toml":
		return TomlFormat, nil
	case ".json":
		return JsonFormat, nil
	default:
		return "", errors.Errorf("unsupported configuration file extension %q", filepath.Ext(path))
	}
}

// Locate returns explicit when set, otherwise the first well-known file present in dir.
func Locate(dir, explicit string) (string, bool) {
	if explicit != "" {
		return explicit, true
	}
	for _, name := range WellKnownFiles {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// NewConfig reads and parses the configuration file at path.
// A missing file yields an error matching os.ErrNotExist.
func NewConfig(path string) (*Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read configuration file %q", path)
	}

	cfg, err := Parse(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse configuration file %q", path)
	}
	cfg.path = path
	return cfg, nil
}

// Parse splits a configuration document into its modules.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := &Config{modules: make(map[string]ModuleRawConfig)}

	switch format {
	case YamlFormat, JsonFormat:
		// JSON documents are valid YAML.
		if err := yaml.Unmarshal(data, &cfg.modules); err != nil {
			return nil, err
		}
	case TomlFormat:
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		for key, value := range doc {
			raw, err := yaml.Marshal(value)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to convert module %q", key)
			}
			cfg.modules[key] = raw
		}
	default:
		return nil, errors.Errorf("unsupported format %q", format)
	}

	if cfg.modules == nil {
		cfg.modules = make(map[string]ModuleRawConfig)
	}
	return cfg, nil
}

// Path returns the file the configuration was read from, if any.
func (c *Config) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Keys returns the module names in sorted order.
func (c *Config) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.modules))
	for k := range c.modules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Raw returns a copy of the raw document of a module.
func (c *Config) Raw(key string) (ModuleRawConfig, bool) {
	if c == nil {
		return nil, false
	}
	raw, ok := c.modules[key]
	if !ok || raw == nil {
		return nil, false
	}
	out := make(ModuleRawConfig, len(raw))
	copy(out, raw)
	return out, true
}

// Get decodes, expands and validates the module stored under key.
// It returns nil without error when the module is absent.
func Get[T Validatable](cfg *Config, key string) (*T, error) {
	raw, ok := cfg.Raw(key)
	if !ok {
		return nil, nil
	}
	partial, err := Unmarshal[T](raw)
	if err != nil {
		return nil, errors.Wrapf(err, "configuration module %q", key)
	}
	return partial, nil
}

// GetLiteral is Get without placeholder expansion, for modules whose values are data.
func GetLiteral[T Validatable](cfg *Config, key string) (*T, error) {
	raw, ok := cfg.Raw(key)
	if !ok {
		return nil, nil
	}
	partial, err := decode[T](raw, false)
	if err != nil {
		return nil, errors.Wrapf(err, "configuration module %q", key)
	}
	return partial, nil
}

// Unmarshal decodes a raw module into T, expands its placeholders against the process
// environment and validates it.
func Unmarshal[T Validatable](raw ModuleRawConfig) (*T, error) {
	return decode[T](raw, true)
}

func decode[T Validatable](raw ModuleRawConfig, expand bool) (*T, error) {
	if raw == nil {
		return nil, nil
	}
	var result T
	if err := yaml.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling module")
	}
	if expand {
		if err := expansion.ExpandVariables(&result, nil); err != nil {
			return nil, errors.Wrap(err, "error expanding module")
		}
	}
	if err := result.Validate(); err != nil {
		return nil, errors.Wrap(err, "module configuration is invalid")
	}
	return &result, nil
}
