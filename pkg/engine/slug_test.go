package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		expected string
	}{
		{"simple", "Fix Authentication Bug", "fix-authentication-bug"},
		{"punctuation", "Fix: auth/token (refresh)!", "fix-auth-token-refresh"},
		{"collapses runs", "a  --  b", "a-b"},
		{"trims edges", "-- leading and trailing --", "leading-and-trailing"},
		{"digits kept", "Upgrade to v2.5", "upgrade-to-v2-5"},
		{"empty", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slugify(tt.title))
		})
	}
}

func TestSlugify_CapsLength(t *testing.T) {
	slug := Slugify(strings.Repeat("word ", 30))
	assert.LessOrEqual(t, len(slug), maxSlugLen)
	assert.False(t, strings.HasSuffix(slug, "-"))
}

func TestBranchName(t *testing.T) {
	assert.Equal(t, "feature/42-fix-authentication-bug", BranchName(42, "Fix Authentication Bug"))
	assert.Equal(t, "feature/7", BranchName(7, "???"))
}
