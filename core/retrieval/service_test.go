package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/siherrmann/graphrag/core/mock"
	"github.com/siherrmann/graphrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	service  *Service
	store    *mock.MemoryStore
	embedder *mock.MockEmbedder
	batch    *model.IngestionBatch
}

// newTestEnv stores one document mentioning acme and alice, where acme is
// the target of works_at and the source of owns.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := mock.NewMemoryStore()
	embedder := mock.NewMockEmbedder(2)
	embedder.Vectors["acme news"] = []float32{1, 0}
	embedder.Vectors["unrelated"] = []float32{0, 1}

	batch := &model.IngestionBatch{
		Document: &model.Document{Text: "Alice works at Acme.", Weight: 0.8, Embedding: []float32{1, 0}},
		Chunks:   []*model.Chunk{{Text: "Alice works at Acme.", Embedding: []float32{0.8, 0.6}}},
		Entities: []*model.CanonicalEntity{
			{Key: "acme", Label: "Acme", Data: model.Metadata{"type": "company"}},
			{Key: "alice", Label: "Alice"},
			{Key: "globex", Label: "Globex"},
		},
		Mentions: []*model.Edge{
			{Target: model.EntityRef("acme"), Weight: 0.8},
			{Target: model.EntityRef("alice"), Weight: 0.8},
		},
		Relations: []*model.Edge{
			{Source: model.EntityRef("alice"), Relation: "works_at", Target: model.EntityRef("acme"), Weight: 0.5},
			{Source: model.EntityRef("acme"), Relation: "owns", Target: model.EntityRef("globex"), Weight: 0.2},
		},
		WeightMerge: model.WeightMergeMax,
	}
	require.NoError(t, store.CommitIngestion(context.Background(), batch))

	service, err := NewService(store, store, embedder, model.DefaultGraphConfig(), nil)
	require.NoError(t, err)

	return &testEnv{service: service, store: store, embedder: embedder, batch: batch}
}

func TestGetNode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	t.Run("Acme neighbors are ascending by weight regardless of direction", func(t *testing.T) {
		node, err := env.service.GetNode(ctx, model.EntityRef("acme"))
		require.NoError(t, err)

		require.Len(t, node.Neighbors, 3)
		assert.Equal(t, model.EntityRef("globex"), node.Neighbors[0].Record, "acme is the source of owns")
		assert.Equal(t, "owns", node.Neighbors[0].RelationType)
		assert.Equal(t, 0.2, node.Neighbors[0].Weight)

		assert.Equal(t, model.EntityRef("alice"), node.Neighbors[1].Record, "acme is the target of works_at")
		assert.Equal(t, "works_at", node.Neighbors[1].RelationType)

		assert.Equal(t, env.batch.Document.Ref(), node.Neighbors[2].Record)
		assert.Equal(t, model.RelationMentions, node.Neighbors[2].RelationType)

		for i := 1; i < len(node.Neighbors); i++ {
			assert.LessOrEqual(t, node.Neighbors[i-1].Weight, node.Neighbors[i].Weight)
		}
	})

	t.Run("Content is the record as JSON", func(t *testing.T) {
		node, err := env.service.GetNode(ctx, model.EntityRef("acme"))
		require.NoError(t, err)

		var content map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(node.Content), &content))
		assert.Equal(t, "acme", content["key"])
		assert.Equal(t, "Acme", content["label"])
		assert.NotContains(t, content, "label_embedding")
	})

	t.Run("Document node lists its mentions", func(t *testing.T) {
		node, err := env.service.GetNode(ctx, env.batch.Document.Ref())
		require.NoError(t, err)

		require.Len(t, node.Neighbors, 2)
		for _, n := range node.Neighbors {
			assert.Equal(t, model.RelationMentions, n.RelationType)
			assert.Equal(t, model.TableEntity, n.Record.Table)
		}
	})

	t.Run("Unknown record is not found", func(t *testing.T) {
		_, err := env.service.GetNode(ctx, model.EntityRef("initech"))
		assert.True(t, errors.Is(err, model.ErrNotFound))
		assert.False(t, model.IsRetryable(err))
	})

	t.Run("Invalid reference is a validation error", func(t *testing.T) {
		_, err := env.service.GetNode(ctx, model.RecordRef{Table: "page", ID: "1"})
		assert.True(t, errors.Is(err, model.ErrValidation))

		_, err = env.service.GetNode(ctx, model.RecordRef{Table: model.TableDocument, ID: "not-a-uuid"})
		assert.True(t, errors.Is(err, model.ErrValidation))
	})
}

func TestNormalizeNeighbors(t *testing.T) {
	acme := model.EntityRef("acme")

	t.Run("Ties are ordered by relation then record", func(t *testing.T) {
		edges := []*model.Edge{
			{Source: acme, Relation: "owns", Target: model.EntityRef("b"), Weight: 0.5},
			{Source: model.EntityRef("a"), Relation: "owns", Target: acme, Weight: 0.5},
			{Source: acme, Relation: "funds", Target: model.EntityRef("c"), Weight: 0.5},
			{Source: model.EntityRef("x"), Relation: "owns", Target: model.EntityRef("y"), Weight: 0.1},
		}

		neighbors := NormalizeNeighbors(acme, edges)
		require.Len(t, neighbors, 3, "Edges not touching the node are ignored")
		assert.Equal(t, model.EntityRef("c"), neighbors[0].Record)
		assert.Equal(t, model.EntityRef("a"), neighbors[1].Record)
		assert.Equal(t, model.EntityRef("b"), neighbors[2].Record)
	})

	t.Run("No edges gives an empty list", func(t *testing.T) {
		neighbors := NormalizeNeighbors(acme, nil)
		assert.NotNil(t, neighbors)
		assert.Empty(t, neighbors)
	})
}

func TestSimilaritySearch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	t.Run("Matching document with its mention set", func(t *testing.T) {
		matches, err := env.service.SimilaritySearch(ctx, "acme news", 0.9, 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)

		assert.Equal(t, env.batch.Document.ID, matches[0].DocumentID)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
		assert.ElementsMatch(t, []model.RecordRef{model.EntityRef("acme"), model.EntityRef("alice")}, matches[0].Mentions)
	})

	t.Run("Minimum similarity filters documents", func(t *testing.T) {
		matches, err := env.service.SimilaritySearch(ctx, "unrelated", 0.9, 10)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("Minimum similarity outside unit interval is rejected", func(t *testing.T) {
		_, err := env.service.SimilaritySearch(ctx, "acme news", 1.5, 10)
		assert.True(t, errors.Is(err, model.ErrValidation))

		_, err = env.service.SimilaritySearch(ctx, "acme news", -0.1, 10)
		assert.True(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("Negative limit and blank text are rejected", func(t *testing.T) {
		calls := env.embedder.CallCount()

		_, err := env.service.SimilaritySearch(ctx, "acme news", 0.5, -1)
		assert.True(t, errors.Is(err, model.ErrValidation))

		_, err = env.service.SimilaritySearch(ctx, "  ", 0.5, 10)
		assert.True(t, errors.Is(err, model.ErrValidation))

		assert.Equal(t, calls, env.embedder.CallCount())
	})

	t.Run("Results are ordered by descending similarity", func(t *testing.T) {
		second := &model.IngestionBatch{
			Document:    &model.Document{Text: "Acme and Globex.", Weight: 0.5, Embedding: []float32{0.8, 0.6}},
			WeightMerge: model.WeightMergeMax,
		}
		require.NoError(t, env.store.CommitIngestion(ctx, second))

		matches, err := env.service.SimilaritySearch(ctx, "acme news", 0.5, 0)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, env.batch.Document.ID, matches[0].DocumentID)
		assert.Equal(t, second.Document.ID, matches[1].DocumentID)
		assert.NotNil(t, matches[1].Mentions)
		assert.Empty(t, matches[1].Mentions)

		matches, err = env.service.SimilaritySearch(ctx, "acme news", 0.5, 1)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("Embedding failure is an embedding error", func(t *testing.T) {
		failing := newTestEnv(t)
		failing.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("model not loaded")
		}

		_, err := failing.service.SimilaritySearch(ctx, "acme news", 0.5, 10)
		assert.True(t, errors.Is(err, model.ErrEmbedding))
	})
}

func TestSearchChunks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	t.Run("Chunk above threshold is returned", func(t *testing.T) {
		matches, err := env.service.SearchChunks(ctx, "acme news", 0.7, 0)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "Alice works at Acme.", matches[0].Chunk.Text)
		assert.InDelta(t, 0.8, matches[0].Similarity, 1e-6)
	})

	t.Run("Chunk below threshold is filtered", func(t *testing.T) {
		matches, err := env.service.SearchChunks(ctx, "acme news", 0.9, 0)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func TestExpand(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	t.Run("Two hops from alice reach globex", func(t *testing.T) {
		results, err := env.service.Expand(ctx, model.EntityRef("alice"), 2, []string{"works_at", "owns"})
		require.NoError(t, err)

		var reached []model.RecordRef
		for _, r := range results {
			reached = append(reached, r.Record)
		}
		assert.Equal(t, []model.RecordRef{model.EntityRef("alice"), model.EntityRef("acme"), model.EntityRef("globex")}, reached)
	})

	t.Run("Missing start record is not found", func(t *testing.T) {
		_, err := env.service.Expand(ctx, model.EntityRef("initech"), 2, nil)
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("Negative hops are rejected", func(t *testing.T) {
		_, err := env.service.Expand(ctx, model.EntityRef("alice"), -1, nil)
		assert.True(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("Depth first reaches the same records with their paths", func(t *testing.T) {
		results, err := env.service.ExpandDepthFirst(ctx, model.EntityRef("alice"), 2, []string{"works_at", "owns"})
		require.NoError(t, err)
		require.Len(t, results, 3)

		last := results[2]
		assert.Equal(t, model.EntityRef("globex"), last.Record)
		assert.Equal(t, 2, last.Distance)
		assert.Equal(t, []model.RecordRef{model.EntityRef("alice"), model.EntityRef("acme"), model.EntityRef("globex")}, last.Path)
	})

	t.Run("Depth first rejects negative hops", func(t *testing.T) {
		_, err := env.service.ExpandDepthFirst(ctx, model.EntityRef("alice"), -1, nil)
		assert.True(t, errors.Is(err, model.ErrValidation))
	})
}
