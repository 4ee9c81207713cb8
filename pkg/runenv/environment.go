package runenv

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Environment is an effective environment: variable names mapped to their values.
// A key that is not present is undefined.
type Environment map[string]string

// Lookup returns the value for key and whether it is defined.
func (e Environment) Lookup(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	value, ok := e[key]
	return value, ok
}

// Keys returns the defined variable names in lexical order.
func (e Environment) Keys() []string {
	return sortedKeys(e)
}

// Subset returns a new Environment holding only the given keys that are defined in e.
func (e Environment) Subset(keys ...string) Environment {
	out := make(Environment, len(keys))
	for _, key := range keys {
		if value, ok := e[key]; ok {
			out[key] = value
		}
	}
	return out
}

// ProcessEnvironment is the ambient variable set of a process. The resolver reads it
// and Apply writes the effective values back into it.
type ProcessEnvironment interface {
	// Lookup returns the value of key and whether it is set.
	Lookup(key string) (string, bool)

	// Set assigns value to key, replacing any previous value.
	Set(key, value string) error

	// Snapshot returns a copy of every variable currently set.
	Snapshot() map[string]string
}

type osEnvironment struct{}

// OS returns the live environment of the running process.
func OS() ProcessEnvironment {
	return osEnvironment{}
}

func (osEnvironment) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

func (osEnvironment) Set(key, value string) error {
	return errors.Wrapf(os.Setenv(key, value), "failed to set environment variable %q", key)
}

func (osEnvironment) Snapshot() map[string]string {
	environ := os.Environ()
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		// Windows keeps per-drive working directories as "=C:=C:\..."
		if !ok || key == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// MapEnvironment is an in-memory ProcessEnvironment. It is safe for concurrent use.
type MapEnvironment struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewMapEnvironment creates a MapEnvironment holding a copy of vars.
func NewMapEnvironment(vars map[string]string) *MapEnvironment {
	m := &MapEnvironment{vars: make(map[string]string, len(vars))}
	for k, v := range vars {
		m.vars[k] = v
	}
	return m
}

func (m *MapEnvironment) Lookup(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.vars[key]
	return value, ok
}

func (m *MapEnvironment) Set(key, value string) error {
	if key == "" || strings.Contains(key, "=") {
		return errors.Errorf("invalid environment variable name %q", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vars[key] = value
	return nil
}

func (m *MapEnvironment) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.vars))
	for k, v := range m.vars {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
