package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryProcessor_ExpansionPreservesOriginalFirst(t *testing.T) {
	p := NewQueryProcessor(3)

	result := p.Process("fix auth bug")
	require.NotEmpty(t, result.Variants)
	assert.Equal(t, "fix auth bug", result.Variants[0])
	assert.LessOrEqual(t, len(result.Variants), 4) // original + 3 variants
	assert.Contains(t, result.Variants, "repair auth bug")
}

func TestQueryProcessor_NoSynonymsNoVariants(t *testing.T) {
	p := NewQueryProcessor(3)

	result := p.Process("quarterly revenue report")
	assert.Equal(t, []string{"quarterly revenue report"}, result.Variants)
}

func TestExtractEntities(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected []Entity
	}{
		{
			name:  "file path",
			query: "look at internal/auth/handler.go please",
			expected: []Entity{
				{Text: "internal/auth/handler.go", Kind: EntityFile, Confidence: 0.9},
			},
		},
		{
			name:  "PascalCase is a class",
			query: "where is UserService defined",
			expected: []Entity{
				{Text: "UserService", Kind: EntityClass, Confidence: 0.7},
			},
		},
		{
			name:  "camelCase is a function",
			query: "explain handleLogin",
			expected: []Entity{
				{Text: "handleLogin", Kind: EntityFunction, Confidence: 0.7},
			},
		},
		{
			name:  "scoped package",
			query: "upgrade @acme/client now",
			expected: []Entity{
				{Text: "@acme/client", Kind: EntityPackage, Confidence: 0.9},
			},
		},
		{
			name:     "plain words yield nothing",
			query:    "the overall design",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractEntities(tt.query))
		})
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		query    string
		expected Intent
	}{
		{"where is the session token created", IntentCodeSearch},
		{"explain what this middleware does", IntentExplanation},
		{"implement a retry wrapper", IntentImplementation},
		{"debug the crash in the parser", IntentDebugging},
		{"update the readme docs", IntentDocumentation},
		{"refactor the config loader", IntentRefactoring},
		{"session token", IntentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyIntent(tt.query))
		})
	}
}
