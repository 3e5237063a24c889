package mock

import (
	"context"
	"testing"

	"github.com/siherrmann/graphrag/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("Same text yields the same unit vector", func(t *testing.T) {
		embedder := NewMockEmbedder(32)

		a, err := embedder.EmbedText(ctx, "Acme")
		require.NoError(t, err)
		b, err := embedder.EmbedText(ctx, "Acme")
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.Len(t, a, 32)
		assert.InDelta(t, 1.0, helper.CosineSimilarity(a, a), 1e-6)
		assert.Equal(t, 2, embedder.CallCount())
	})

	t.Run("Different texts are far apart", func(t *testing.T) {
		embedder := NewMockEmbedder(64)

		vectors, err := embedder.EmbedTexts(ctx, []string{"Alice", "Bob"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)

		assert.Less(t, helper.CosineSimilarity(vectors[0], vectors[1]), 0.9)
	})

	t.Run("Registered vectors take precedence", func(t *testing.T) {
		embedder := NewMockEmbedder(2)
		embedder.Vectors["Acme"] = []float32{1, 0}

		v, err := embedder.EmbedText(ctx, "Acme")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0}, v)

		v[0] = 5
		again, _ := embedder.EmbedText(ctx, "Acme")
		assert.Equal(t, []float32{1, 0}, again, "Returned vectors should be copies")
	})
}

func TestMockExtractor(t *testing.T) {
	ctx := context.Background()

	t.Run("Default graph holds capitalized words once", func(t *testing.T) {
		extractor := NewMockExtractor()

		graph, err := extractor.Extract(ctx, "Alice works at Acme. Bob works at Acme.")
		require.NoError(t, err)

		labels := []string{}
		for _, e := range graph.Entities {
			labels = append(labels, e.Label)
		}
		assert.Equal(t, []string{"Alice", "Acme", "Bob"}, labels)
		assert.Empty(t, graph.Relations)
		assert.Equal(t, 1, extractor.CallCount())
	})
}
