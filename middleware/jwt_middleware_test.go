package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseTokenRoundtrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, refresh, err := GenerateJWT("64f0c2a7e13b4a0001a1b2c3", "user@example.com", "user")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEmpty(t, refresh)
	assert.NotEqual(t, token, refresh)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "64f0c2a7e13b4a0001a1b2c3", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
	assert.Greater(t, claims.ExpiresAt, time.Now().Unix())
}

func TestParseTokenRejectsTampering(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, _, err := GenerateJWT("64f0c2a7e13b4a0001a1b2c3", "user@example.com", "admin")
	require.NoError(t, err)

	_, err = ParseToken(token + "x")
	assert.Error(t, err)

	_, err = ParseToken("not-a-token")
	assert.Error(t, err)
}

func TestParseTokenRejectsBlacklisted(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, _, err := GenerateJWT("64f0c2a7e13b4a0001a1b2c3", "user@example.com", "user")
	require.NoError(t, err)

	BlacklistToken(token, time.Now().Add(time.Hour))
	_, err = ParseToken(token)
	assert.Error(t, err)
}

func TestBlacklistConcurrentAccess(t *testing.T) {
	// Logout writes the blacklist while authenticated requests read it;
	// run both sides hard under -race.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				BlacklistToken(fmt.Sprintf("token-%d-%d", n, j), time.Now().Add(time.Hour))
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				IsTokenBlacklisted(fmt.Sprintf("token-%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	assert.True(t, IsTokenBlacklisted("token-0-0"))
	assert.False(t, IsTokenBlacklisted("never-blacklisted"))
}

func TestActivityTrackerPassesThroughUnauthenticated(t *testing.T) {
	// Without claims in the context the tracker must not touch the
	// database; it just forwards the request.
	e := echo.New()
	called := false
	handler := ActivityTracker(nil)(func(c echo.Context) error {
		called = true
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	require.NoError(t, handler(c))
	assert.True(t, called)
}
