package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeInputStripsScriptsAndControls(t *testing.T) {
	assert.Equal(t, "hello", SanitizeInput("  hello  "))
	assert.Equal(t, "before after", SanitizeInput("before <script>alert(1)</script>after"))
	assert.Equal(t, "line one\nline two", SanitizeInput("line one\nline two\x00"))
	assert.NotContains(t, SanitizeInput(`<img src=x>`), "<")
}

func TestSanitizeEmail(t *testing.T) {
	email, err := SanitizeEmail("  User@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", email)

	_, err = SanitizeEmail("not-an-email")
	assert.Error(t, err)
}
