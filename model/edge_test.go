package model

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRef(t *testing.T) {
	t.Run("Entity reference accepts any non blank key", func(t *testing.T) {
		assert.NoError(t, EntityRef("acme").Validate())
	})

	t.Run("Document reference requires a uuid", func(t *testing.T) {
		assert.NoError(t, RecordRef{Table: TableDocument, ID: uuid.NewString()}.Validate())

		err := RecordRef{Table: TableDocument, ID: "acme"}.Validate()
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("Unknown table and blank id are rejected", func(t *testing.T) {
		assert.True(t, errors.Is(RecordRef{Table: "article", ID: "x"}.Validate(), ErrValidation))
		assert.True(t, errors.Is(RecordRef{Table: TableEntity, ID: "  "}.Validate(), ErrValidation))
	})

	t.Run("String and ParseRecordRef", func(t *testing.T) {
		ref := EntityRef("works_at:acme")
		assert.Equal(t, "entity:works_at:acme", ref.String())

		parsed, err := ParseRecordRef(ref.String())
		require.NoError(t, err)
		assert.Equal(t, ref, parsed)

		_, err = ParseRecordRef("acme")
		assert.True(t, errors.Is(err, ErrValidation))
	})
}

func TestEdgeOther(t *testing.T) {
	alice := EntityRef("alice")
	acme := EntityRef("acme")
	edge := &Edge{Source: alice, Relation: "works_at", Target: acme}

	t.Run("Other endpoint from source", func(t *testing.T) {
		other, ok := edge.Other(alice)
		assert.True(t, ok)
		assert.Equal(t, acme, other)
	})

	t.Run("Other endpoint from target", func(t *testing.T) {
		other, ok := edge.Other(acme)
		assert.True(t, ok)
		assert.Equal(t, alice, other)
	})

	t.Run("Self loop returns the node itself", func(t *testing.T) {
		loop := &Edge{Source: acme, Relation: "owns", Target: acme}
		other, ok := loop.Other(acme)
		assert.True(t, ok)
		assert.Equal(t, acme, other)
	})

	t.Run("Unrelated node", func(t *testing.T) {
		_, ok := edge.Other(EntityRef("bob"))
		assert.False(t, ok)
	})
}

func TestWeightMerge(t *testing.T) {
	tests := []struct {
		rule     WeightMerge
		stored   float64
		incoming float64
		expected float64
	}{
		{WeightMergeMax, 0.3, 0.8, 0.8},
		{WeightMergeMax, 0.8, 0.3, 0.8},
		{WeightMergeReplace, 0.8, 0.3, 0.3},
		{WeightMergeAverage, 0.2, 0.6, 0.4},
		{WeightMergeSum, 0.7, 0.6, 1},
		{WeightMergeSum, 0.2, 0.3, 0.5},
		{WeightMergeMax, 0.5, 1.7, 1},
		{WeightMergeReplace, 0.5, -2, 0},
		{WeightMerge("unknown"), 0.4, 0.6, 0.6},
	}

	for _, tt := range tests {
		t.Run(string(tt.rule)+" merge", func(t *testing.T) {
			got := tt.rule.Merge(tt.stored, tt.incoming)
			assert.InDelta(t, tt.expected, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}

	t.Run("Valid rules", func(t *testing.T) {
		assert.True(t, WeightMergeAverage.Valid())
		assert.False(t, WeightMerge("min").Valid())
	})
}

func TestClampWeight(t *testing.T) {
	assert.Equal(t, 0.0, ClampWeight(-0.5))
	assert.Equal(t, 1.0, ClampWeight(3))
	assert.Equal(t, 0.25, ClampWeight(0.25))
	assert.Equal(t, 0.0, ClampWeight(math.NaN()))
}
