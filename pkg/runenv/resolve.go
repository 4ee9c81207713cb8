package runenv

import (
	"github.com/pkg/errors"
)

// Resolve computes the effective environment of cfg for the current content of env.
// It has no side effects on env or cfg and caches nothing, so two calls may differ if
// env changed in between.
//
// When the selected name has no profile the result is a copy of env (or
// ErrUnknownEnvironment in strict mode). Otherwise every profile variable takes its
// RUNTIME_ override when non-empty, else its profile value when non-empty, else keeps
// its process value; names in cfg.Variables only take their RUNTIME_ override. The
// validator's error, if any, is returned as is.
func Resolve(cfg Config, env ProcessEnvironment) (Environment, error) {
	trace := cfg.logger()
	selection := Select(cfg, env)

	if cfg.Debug {
		value, _ := env.Lookup(selection.Selector)
		trace.Debug().
			Str("selector", selection.Selector).
			Str("value", value).
			Str("environment", string(selection.Name)).
			Msg("Selected environment")
	}

	result := Environment(env.Snapshot())

	if !selection.Known {
		if cfg.Strict {
			return nil, errors.Wrapf(ErrUnknownEnvironment, "no profile configured for %q", selection.Name)
		}
		if cfg.Debug {
			trace.Warn().
				Str("environment", string(selection.Name)).
				Msg("No profile configured for environment, keeping process environment unchanged")
		}
		return result, nil
	}

	profile, _ := cfg.Profile(selection.Name)
	for _, key := range sortedKeys(profile.Vars) {
		if override, ok := runtimeOverride(env, key); ok {
			result[key] = override
			if cfg.Debug {
				trace.Debug().Str("key", key).Str("source", "runtime").Msg("Variable overridden at runtime")
			}
			continue
		}

		if value := profile.Vars[key]; value != "" {
			result[key] = value
			if cfg.Debug {
				trace.Debug().Str("key", key).Str("source", "profile").Msg("Variable set from profile")
			}
			continue
		}

		if cfg.Debug {
			trace.Debug().Str("key", key).Str("source", "process").Msg("Empty profile value, keeping process value")
		}
	}

	for _, key := range cfg.Variables {
		if _, covered := profile.Vars[key]; covered {
			continue
		}
		if override, ok := runtimeOverride(env, key); ok {
			result[key] = override
			if cfg.Debug {
				trace.Debug().Str("key", key).Str("source", "runtime").Msg("Variable overridden at runtime")
			}
		}
	}

	if cfg.Validator != nil {
		if err := cfg.Validator.Validate(result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// Apply resolves cfg against env and writes every effective value that differs from the
// current one back into env. Variables are never removed. Nothing is written when
// resolution fails. It returns the names it wrote, in lexical order, so a second call
// with the same inputs returns none.
func Apply(cfg Config, env ProcessEnvironment) ([]string, error) {
	effective, err := Resolve(cfg, env)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, key := range effective.Keys() {
		value := effective[key]
		if current, ok := env.Lookup(key); ok && current == value {
			continue
		}
		if err := env.Set(key, value); err != nil {
			return written, errors.Wrapf(err, "failed to apply %q", key)
		}
		written = append(written, key)
	}

	if cfg.Debug {
		cfg.logger().Debug().Strs("keys", written).Msg("Applied effective environment")
	}
	return written, nil
}

func runtimeOverride(env ProcessEnvironment, key string) (string, bool) {
	value, ok := env.Lookup(RuntimePrefix + key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
