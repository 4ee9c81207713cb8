// Package expansion expands ${...} placeholders in configuration values.
//
// Supported forms:
//   - ${NAME} or $NAME: value of the environment variable NAME
//   - ${env:NAME}: same, with the explicit prefix
//   - ${NAME:-fallback}: fallback when NAME is unset or empty
package expansion

import (
	"os"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Lookup returns the value of an environment variable and whether it is set.
type Lookup func(key string) (string, bool)

// resolve returns the value a single placeholder expands to.
func resolve(placeholder string, lookup Lookup) (string, error) {
	name, fallback, hasFallback := strings.Cut(placeholder, ":-")
	if prefix, key, ok := strings.Cut(name, ":"); ok {
		if prefix != "env" {
			return "", errors.Errorf("unsupported placeholder prefix %q in %q", prefix, placeholder)
		}
		name = key
	}

	value, ok := lookup(name)
	if ok && value != "" {
		return value, nil
	}
	if hasFallback {
		return fallback, nil
	}

	// Missing variables expand to "" like os.Expand, but leave a trace.
	log.Warn().
		Str("env_var", name).
		Msg("Environment variable not set or empty - using empty string")
	return "", nil
}

// ExpandString expands every placeholder in s.
func ExpandString(s string, lookup Lookup) (string, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var expandErr error
	expanded := os.Expand(s, func(placeholder string) string {
		if expandErr != nil {
			return ""
		}
		res, err := resolve(placeholder, lookup)
		if err != nil {
			expandErr = err
			return ""
		}
		return res
	})
	if expandErr != nil {
		return "", expandErr
	}
	return expanded, nil
}

// ExpandVariables recursively expands placeholders in every settable string reachable
// from toExpand: struct fields, pointers, slices and map values. toExpand must be a
// pointer. A nil lookup reads the process environment.
func ExpandVariables(toExpand any, lookup Lookup) error {
	if toExpand == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}

	v := reflect.ValueOf(toExpand)

	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		return expandValue(v.Elem(), lookup)
	}

	return expandValue(v, lookup)
}

func expandValue(val reflect.Value, lookup Lookup) error {
	switch val.Kind() {
	case reflect.String:
		if val.CanSet() {
			expanded, err := ExpandString(val.String(), lookup)
			if err != nil {
				return err
			}
			val.SetString(expanded)
		}

	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			if err := expandValue(val.Field(i), lookup); err != nil {
				return err
			}
		}

	case reflect.Ptr, reflect.Interface:
		if !val.IsNil() {
			if err := expandValue(val.Elem(), lookup); err != nil {
				return err
			}
		}

	case reflect.Slice:
		// Raw byte slices (nested module configs) are expanded when they are decoded.
		if val.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for j := 0; j < val.Len(); j++ {
			if err := expandValue(val.Index(j), lookup); err != nil {
				return err
			}
		}

	case reflect.Map:
		for _, key := range val.MapKeys() {
			mapVal := val.MapIndex(key)
			// Map values are not addressable, expand a copy and store it back.
			newVal := reflect.New(mapVal.Type()).Elem()
			newVal.Set(mapVal)
			if err := expandValue(newVal, lookup); err != nil {
				return err
			}
			val.SetMapIndex(key, newVal)
		}
	default:
	}

	return nil
}
