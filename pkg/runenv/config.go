// Package runenv resolves the environment a process runs with at startup instead of at
// build time. A selector variable (APP_ENV by default) picks one named profile, the
// profile's variables are layered over the process environment, and any governed
// variable X can be forced with RUNTIME_X.
//
// Precedence, highest first:
//
//	RUNTIME_<NAME> -> profile value for <NAME> -> pre-existing process value -> undefined
//
// Resolve computes the effective environment without side effects, Apply writes it back
// into a ProcessEnvironment, and DeriveInternalURLs fills internal URL variables from
// their public counterparts. All of them are meant to run once, before the process
// starts serving requests.
package runenv

import (
	"dario.cat/mergo"
	"github.com/animalet/runenv/internal/snapshot"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultSelector is the variable naming the active profile.
	DefaultSelector = "APP_ENV"
	// FallbackSelector is consulted when the selector variable is unset or empty.
	FallbackSelector = "NODE_ENV"
	// DefaultEnvironment is used when neither selector variable is set.
	DefaultEnvironment EnvironmentName = "production"
	// RuntimePrefix marks runtime overrides: RUNTIME_X forces the value of X.
	RuntimePrefix = "RUNTIME_"
)

// EnvironmentName identifies a deployment target such as "production" or "staging".
type EnvironmentName string

// EnvironmentConfig is one profile: the literal variable values of a deployment target.
type EnvironmentConfig struct {
	Vars        map[string]string
	Description string
}

// Config is the resolver configuration. Build it once at startup; the resolver never
// modifies it.
type Config struct {
	// Environments maps each profile name to its variables.
	Environments map[EnvironmentName]EnvironmentConfig

	// Variables lists extra names that accept a RUNTIME_ override even when the
	// active profile does not define them.
	Variables []string

	// Selector is the variable naming the active profile. Empty means DefaultSelector.
	Selector string

	// Debug enables trace events describing each resolution decision.
	Debug bool

	// Strict turns an unknown profile name into ErrUnknownEnvironment instead of
	// returning the process environment unchanged.
	Strict bool

	// Validator, when set, checks the effective environment before it is returned.
	Validator Validator

	// Logger receives trace events. Nil means the global zerolog logger.
	Logger *zerolog.Logger
}

// Defaults returns the built-in configuration: no profiles, the default selector.
func Defaults() Config {
	return Config{
		Environments: map[EnvironmentName]EnvironmentConfig{},
		Selector:     DefaultSelector,
	}
}

// Merge layers override on top of defaults and returns the result. Non-empty fields of
// override win, profiles are merged by name (an override profile replaces the default
// profile of the same name) and neither argument is modified.
func Merge(defaults, override Config) (Config, error) {
	out := defaults
	out.Environments = copyEnvironments(defaults.Environments)
	out.Variables = append([]string(nil), defaults.Variables...)

	override.Environments = copyEnvironments(override.Environments)
	override.Variables = append([]string(nil), override.Variables...)

	if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
		return Config{}, errors.Wrap(err, "failed to merge resolver configuration")
	}
	return out, nil
}

// Profile returns the configuration of the named environment.
func (c Config) Profile(name EnvironmentName) (EnvironmentConfig, bool) {
	profile, ok := c.Environments[name]
	return profile, ok
}

// GovernedKeys returns the variables the resolver may change while name is active:
// the profile's variables plus the extra override list, sorted and without duplicates.
func (c Config) GovernedKeys(name EnvironmentName) []string {
	seen := make(map[string]struct{})
	if profile, ok := c.Environments[name]; ok {
		for key := range profile.Vars {
			seen[key] = struct{}{}
		}
	}
	for _, key := range c.Variables {
		seen[key] = struct{}{}
	}
	return sortedKeys(seen)
}

func (c Config) selector() string {
	if c.Selector == "" {
		return DefaultSelector
	}
	return c.Selector
}

func (c Config) logger() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return &log.Logger
}

func copyEnvironments(environments map[EnvironmentName]EnvironmentConfig) map[EnvironmentName]EnvironmentConfig {
	if environments == nil {
		return nil
	}
	return *snapshot.MustCopy(&environments)
}
