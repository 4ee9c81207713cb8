package runenv

import (
	"strings"

	"github.com/pkg/errors"
)

// FileConfig is the "environments" module of the configuration file.
//
//	environments:
//	  selector: APP_ENV
//	  variables: [DATABASE_URL]
//	  required: [AUTH_URL]
//	  derive:
//	    - primary: AUTH_URL
//	      internal: AUTH_URL_INTERNAL
//	  profiles:
//	    production:
//	      description: Public site
//	      vars:
//	        AUTH_URL: https://example.com
type FileConfig struct {
	Selector  string                 `yaml:"selector,omitempty"`
	Debug     bool                   `yaml:"debug,omitempty"`
	Strict    bool                   `yaml:"strict,omitempty"`
	Variables []string               `yaml:"variables,omitempty"`
	Required  []string               `yaml:"required,omitempty"`
	Derive    []URLPair              `yaml:"derive,omitempty"`
	Profiles  map[string]FileProfile `yaml:"profiles"`
}

// FileProfile is one profile as written in the configuration file.
type FileProfile struct {
	Description string            `yaml:"description,omitempty"`
	Vars        map[string]string `yaml:"vars"`
}

// Validate checks names used in the file.
func (f FileConfig) Validate() error {
	if f.Selector != "" {
		if err := validateName(f.Selector); err != nil {
			return errors.Wrap(err, "invalid selector")
		}
	}

	for name, profile := range f.Profiles {
		if strings.TrimSpace(name) == "" {
			return errors.New("profile name must be set and non-empty")
		}
		for key := range profile.Vars {
			if err := validateName(key); err != nil {
				return errors.Wrapf(err, "invalid variable in profile %q", name)
			}
		}
	}

	for _, key := range f.Variables {
		if err := validateName(key); err != nil {
			return errors.Wrap(err, "invalid entry in variables")
		}
	}

	for _, key := range f.Required {
		if err := validateName(key); err != nil {
			return errors.Wrap(err, "invalid entry in required")
		}
	}

	for i, pair := range f.Derive {
		if pair.Primary == "" || pair.Internal == "" {
			return errors.Errorf("derive entry at index %d must set both primary and internal", i)
		}
		if pair.Primary == pair.Internal {
			return errors.Errorf("derive entry at index %d derives %q from itself", i, pair.Primary)
		}
	}
	return nil
}

// Config maps the file module onto a resolver configuration. A required list becomes a
// RequireVars validator.
func (f FileConfig) Config() Config {
	cfg := Config{
		Environments: make(map[EnvironmentName]EnvironmentConfig, len(f.Profiles)),
		Variables:    append([]string(nil), f.Variables...),
		Selector:     f.Selector,
		Debug:        f.Debug,
		Strict:       f.Strict,
	}

	for name, profile := range f.Profiles {
		vars := make(map[string]string, len(profile.Vars))
		for k, v := range profile.Vars {
			vars[k] = v
		}
		cfg.Environments[EnvironmentName(name)] = EnvironmentConfig{
			Vars:        vars,
			Description: profile.Description,
		}
	}

	if len(f.Required) > 0 {
		cfg.Validator = RequireVars(f.Required...)
	}
	return cfg
}

// URLPairs returns the configured derivations, or DefaultURLPair when none are listed.
func (f FileConfig) URLPairs() []URLPair {
	if len(f.Derive) == 0 {
		return []URLPair{DefaultURLPair}
	}
	return append([]URLPair(nil), f.Derive...)
}

func validateName(name string) error {
	if name == "" {
		return errors.New("variable name must be non-empty")
	}
	if strings.ContainsAny(name, "= \t\n\x00") {
		return errors.Errorf("variable name %q contains forbidden characters", name)
	}
	return nil
}
