package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestSecurityHeadersWithConfig(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeadersWithConfig(SecurityConfig{
		AllowedDomains: []string{"https://commonroom.app"},
	}))
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	h := rec.Header()
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Contains(t, h.Get("Strict-Transport-Security"), "max-age=31536000")

	csp := h.Get("Content-Security-Policy")
	assert.Contains(t, csp, "script-src 'self';")
	assert.Contains(t, csp, "connect-src 'self' wss: https://commonroom.app")
}

func TestBuildCSPInlineJS(t *testing.T) {
	csp := buildCSP(SecurityConfig{AllowInlineJS: true})
	assert.Contains(t, csp, "script-src 'self' 'unsafe-inline'")
	assert.Contains(t, csp, "connect-src 'self' wss:")
}
