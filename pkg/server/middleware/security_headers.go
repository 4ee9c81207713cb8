// Package middleware holds the gin middleware every runenv server installs.
package middleware

import (
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
)

// PermissionsPolicy blocks browser features the served bundles never need.
const PermissionsPolicy = "geolocation=(), microphone=(), camera=(), payment=()"

// SecurityHeaders adds the common security headers to every response.
// Strict-Transport-Security is only sent on TLS requests and only when hsts is true.
func SecurityHeaders(csp string, hsts bool) gin.HandlerFunc {
	cfg := secure.Config{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: csp,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		IsDevelopment:         false,
	}
	plain := secure.New(cfg)

	tlsHeaders := plain
	if hsts {
		cfg.STSSeconds = 31536000
		cfg.STSIncludeSubdomains = true
		tlsHeaders = secure.New(cfg)
	}

	return func(c *gin.Context) {
		c.Header("Permissions-Policy", PermissionsPolicy)
		if c.Request.TLS != nil {
			tlsHeaders(c)
			return
		}
		plain(c)
	}
}
