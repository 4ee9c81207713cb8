package runenv

import (
	"github.com/pkg/errors"
)

// URLPair links a publicly reachable URL variable to the variable holding the URL the
// process uses to reach the same service internally.
type URLPair struct {
	Primary  string `yaml:"primary"`
	Internal string `yaml:"internal"`
}

// DefaultURLPair is derived when DeriveInternalURLs gets no pairs.
var DefaultURLPair = URLPair{Primary: "AUTH_URL", Internal: "AUTH_URL_INTERNAL"}

// DeriveInternalURLs copies each pair's primary value into its internal variable when
// the primary is non-empty and the internal one is unset or empty. It runs after Apply,
// over the already patched environment, and returns the internal names it set.
func DeriveInternalURLs(env ProcessEnvironment, pairs ...URLPair) ([]string, error) {
	if len(pairs) == 0 {
		pairs = []URLPair{DefaultURLPair}
	}

	var derived []string
	for _, pair := range pairs {
		primary, ok := env.Lookup(pair.Primary)
		if !ok || primary == "" {
			continue
		}
		if internal, ok := env.Lookup(pair.Internal); ok && internal != "" {
			continue
		}
		if err := env.Set(pair.Internal, primary); err != nil {
			return derived, errors.Wrapf(err, "failed to derive %q from %q", pair.Internal, pair.Primary)
		}
		derived = append(derived, pair.Internal)
	}
	return derived, nil
}
