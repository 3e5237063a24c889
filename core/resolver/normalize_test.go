package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Acme", "acme"},
		{"  Acme   Corp ", "acme_corp"},
		{"McDonald's", "mcdonalds"},
		{"O’Brien\tGroup", "obrien_group"},
		{"New\nYork", "new_york"},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run("Normalizes "+tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeLabel(tt.input))
		})
	}
}

func TestNormalizeRelation(t *testing.T) {
	t.Run("Spaces and hyphens become underscores", func(t *testing.T) {
		assert.Equal(t, "works_at", NormalizeRelation("Works at"))
		assert.Equal(t, "co_founded", NormalizeRelation("co-founded"))
		assert.Equal(t, "parent_of", NormalizeRelation(" parent-of "))
	})

	t.Run("Apostrophes are stripped", func(t *testing.T) {
		assert.Equal(t, "parents_of", NormalizeRelation(" parent's of "))
	})
}
