package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaccardOverlap(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []string
		expected float64
	}{
		{"identical", []string{"auth", "token"}, []string{"auth", "token"}, 1.0},
		{"disjoint", []string{"auth"}, []string{"database"}, 0.0},
		{"half overlap", []string{"auth", "token", "jwt"}, []string{"auth", "token", "oauth"}, 0.5},
		{"case insensitive", []string{"Auth"}, []string{"auth"}, 1.0},
		{"empty side", nil, []string{"auth"}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, JaccardOverlap(tt.a, tt.b), 1e-9)
		})
	}
}

func TestPatternOverlap(t *testing.T) {
	patterns := []string{"**/auth/**", "**/*migration*"}

	assert.InDelta(t, 1.0, PatternOverlap(patterns, []string{"internal/auth/handler.go"}), 1e-9)
	assert.InDelta(t, 0.5, PatternOverlap(patterns, []string{
		"internal/auth/handler.go",
		"docs/readme.md",
	}), 1e-9)
	assert.Zero(t, PatternOverlap(patterns, []string{"pkg/util/strings.go"}))
	assert.Zero(t, PatternOverlap(nil, []string{"a.go"}))
}

func TestDiceBigramSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, DiceBigramSimilarity("night", "night"), 1e-9)
	assert.InDelta(t, 1.0, DiceBigramSimilarity("Night", "night"), 1e-9)
	assert.InDelta(t, 0.25, DiceBigramSimilarity("night", "nacht"), 1e-9)
	assert.Zero(t, DiceBigramSimilarity("night", "table"))
	assert.Zero(t, DiceBigramSimilarity("", ""))
	assert.Zero(t, DiceBigramSimilarity("a", "ab"))

	// Similar titles score high even with word-order noise.
	high := DiceBigramSimilarity(
		"Failed: add retry to platform client",
		"Failed: add retry to the platform client",
	)
	assert.Greater(t, high, 0.85)
}

func TestSimilarityMeasuresAreSymmetric(t *testing.T) {
	titles := [][2]string{
		{"add retry to platform client", "add retry to the platform client"},
		{"aaaa", "aab"},
		{"Token Refresh", "token refresh loop"},
	}
	for _, pair := range titles {
		assert.Equal(t,
			DiceBigramSimilarity(pair[0], pair[1]),
			DiceBigramSimilarity(pair[1], pair[0]),
			"dice(%q, %q)", pair[0], pair[1])
	}

	keywords := [][2][]string{
		{{"auth", "token"}, {"token", "retry", "backoff"}},
		{{"a"}, {"a", "b", "c", "d"}},
	}
	for _, pair := range keywords {
		assert.Equal(t,
			JaccardOverlap(pair[0], pair[1]),
			JaccardOverlap(pair[1], pair[0]),
			"jaccard(%v, %v)", pair[0], pair[1])
	}
}
