// middleware/security_headers.go
package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityConfig tunes the Content-Security-Policy emitted with every
// response.
type SecurityConfig struct {
	// AllowedDomains are added to connect-src so the web client can reach
	// the API and the upload bucket from those origins.
	AllowedDomains []string
	AllowInlineJS  bool
}

// SecurityHeadersWithConfig sets the standard hardening headers plus a CSP
// built from the config.
func SecurityHeadersWithConfig(config SecurityConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			h.Set("Content-Security-Policy", buildCSP(config))
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

			// Remove potentially sensitive headers
			h.Del("Server")
			h.Del("X-Powered-By")

			return next(c)
		}
	}
}

func buildCSP(config SecurityConfig) string {
	csp := []string{
		"default-src 'self'",
		"img-src 'self' data: https:",
		"style-src 'self' 'unsafe-inline'",
	}

	if config.AllowInlineJS {
		csp = append(csp, "script-src 'self' 'unsafe-inline'")
	} else {
		csp = append(csp, "script-src 'self'")
	}

	// The realtime post streams upgrade to websockets, so connect-src has
	// to admit wss alongside the configured origins.
	connect := append([]string{"'self'", "wss:"}, config.AllowedDomains...)
	csp = append(csp, "connect-src "+strings.Join(connect, " "))

	return strings.Join(csp, "; ")
}
