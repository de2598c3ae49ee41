package tool

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTokenCounter_FallbackEstimate(t *testing.T) {
	var tc *TokenCounter
	assert.Equal(t, 2, tc.Count("12345678"))

	tc = &TokenCounter{model: "custom"}
	assert.Equal(t, "custom", tc.Model())
	assert.Equal(t, 25, tc.Count(strings.Repeat("a", 100)))
}

func TestTokenCounter_FallbackTruncate(t *testing.T) {
	tc := &TokenCounter{}

	assert.Equal(t, "short", tc.Truncate("short", 10))
	assert.Equal(t, strings.Repeat("a", 8), tc.Truncate(strings.Repeat("a", 20), 2))
	assert.Equal(t, "unbounded", tc.Truncate("unbounded", 0))

	out := tc.Truncate(strings.Repeat("é", 10), 1)
	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, len(out), 4)
}
