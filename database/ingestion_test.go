package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestionCommit(t *testing.T) {
	database := initDB(t)
	h := initHandlers(t, database)
	ingestion, err := NewIngestionDBHandler(database, h.documents, h.chunks, h.disambiguations, h.entities, h.edges)
	require.NoError(t, err, "Expected NewIngestionDBHandler to not return an error")
	ctx := context.Background()

	newBatch := func(docID uuid.UUID, suffix string) *model.IngestionBatch {
		moses := "moses_" + suffix
		egypt := "egypt_" + suffix
		return &model.IngestionBatch{
			Document: &model.Document{
				ID:        docID,
				Title:     "Exodus",
				Text:      "Moses left Egypt.",
				Weight:    0.8,
				Embedding: []float32{0.4, 0.4, 0.2},
			},
			Chunks: []*model.Chunk{
				{Text: "Moses left Egypt.", Embedding: []float32{0.4, 0.4, 0.2}},
			},
			Disambiguations: []*model.Disambiguation{
				{EntityKey: moses, Label: "Moses", Embedding: []float32{1, 0, 0}},
				{EntityKey: egypt, Label: "Egypt", Embedding: []float32{0, 1, 0}},
			},
			Entities: []*model.CanonicalEntity{
				{Key: moses, Label: "Moses"},
				{Key: egypt, Label: "Egypt"},
			},
			Mentions: []*model.Edge{
				{Target: model.EntityRef(egypt), Weight: 0.8},
				{Target: model.EntityRef(moses), Weight: 0.8},
			},
			Relations: []*model.Edge{
				{Source: model.EntityRef(moses), Relation: "left", Target: model.EntityRef(egypt), Weight: 0.8},
			},
			WeightMerge: model.WeightMergeMax,
		}
	}

	t.Run("Commit stores every part of the batch", func(t *testing.T) {
		suffix := uuid.NewString()
		batch := newBatch(uuid.Nil, suffix)
		err := ingestion.CommitIngestion(ctx, batch)
		require.NoError(t, err, "Expected CommitIngestion to not return an error")
		require.NotEqual(t, uuid.Nil, batch.Document.ID, "Expected document ID to be set")

		chunks, err := h.chunks.SelectChunksByDocument(ctx, batch.Document.ID)
		require.NoError(t, err)
		assert.Len(t, chunks, 1)

		_, err = h.disambiguations.SelectDisambiguation(ctx, "moses_"+suffix)
		assert.NoError(t, err, "Expected disambiguation to be stored")

		_, err = h.entities.SelectEntity(ctx, "egypt_"+suffix)
		assert.NoError(t, err, "Expected entity to be stored")

		edges, err := h.edges.SelectEdgesConnected(ctx, batch.Document.Ref())
		require.NoError(t, err)
		require.Len(t, edges, 2, "Expected one mention edge per entity")
		for _, e := range edges {
			assert.Equal(t, batch.Document.Ref(), e.Source)
			assert.Equal(t, model.RelationMentions, e.Relation)
			assert.Equal(t, 0.8, e.Weight)
		}

		edges, err = h.edges.SelectEdgesConnected(ctx, model.EntityRef("moses_"+suffix))
		require.NoError(t, err)
		var relations []string
		for _, e := range edges {
			relations = append(relations, e.Relation)
		}
		assert.Contains(t, relations, "left")
	})

	t.Run("Failed commit leaves no partial writes", func(t *testing.T) {
		suffix := uuid.NewString()
		batch := newBatch(uuid.Nil, suffix)
		// An edge without relation fails after everything else was written.
		batch.Relations = append(batch.Relations, &model.Edge{
			Source:   model.EntityRef("moses_" + suffix),
			Relation: "",
			Target:   model.EntityRef("egypt_" + suffix),
			Weight:   1,
		})

		err := ingestion.CommitIngestion(ctx, batch)
		require.Error(t, err, "Expected CommitIngestion to fail on the invalid relation")

		_, err = h.disambiguations.SelectDisambiguation(ctx, "moses_"+suffix)
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected disambiguation to be rolled back")
		_, err = h.entities.SelectEntity(ctx, "egypt_"+suffix)
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected entity to be rolled back")
		if batch.Document.ID != uuid.Nil {
			_, err = h.documents.SelectDocument(ctx, batch.Document.ID)
			assert.ErrorIs(t, err, model.ErrNotFound, "Expected document to be rolled back")
		}
	})

	t.Run("Duplicate document ID aborts the whole batch", func(t *testing.T) {
		existing := &model.Document{Text: "taken id", Weight: 1}
		require.NoError(t, h.documents.InsertDocument(ctx, existing))

		suffix := uuid.NewString()
		err := ingestion.CommitIngestion(ctx, newBatch(existing.ID, suffix))
		assert.ErrorIs(t, err, model.ErrStorage)

		_, err = h.entities.SelectEntity(ctx, "moses_"+suffix)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("Commit without document fails validation", func(t *testing.T) {
		err := ingestion.CommitIngestion(ctx, &model.IngestionBatch{})
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}
