package server

import (
	"net"

	"github.com/pkg/errors"
)

// DefaultContentSecurityPolicy is sent when the server module does not set one.
const DefaultContentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; font-src 'self'; object-src 'none'; frame-ancestors 'none'; base-uri 'self'; form-action 'self';"

// Config is the "server" module of the configuration file.
type Config struct {
	Address               string             `yaml:"address"`
	ContentSecurityPolicy string             `yaml:"content_security_policy,omitempty"`
	TrustedProxies        []string           `yaml:"trusted_proxies,omitempty"`
	Controllers           ControllerBindings `yaml:"controllers"`
}

// Validate checks that the listen address resolves and every controller binding is complete.
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.New("address must be set and non-empty")
	}

	if _, err := net.ResolveTCPAddr("tcp", c.Address); err != nil {
		return errors.Wrap(err, "invalid address")
	}

	for _, proxy := range c.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return errors.Errorf("invalid trusted proxy %q", proxy)
			}
		}
	}

	return c.Controllers.Validate()
}

func (c Config) contentSecurityPolicy() string {
	if c.ContentSecurityPolicy == "" {
		return DefaultContentSecurityPolicy
	}
	return c.ContentSecurityPolicy
}
