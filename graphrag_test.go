package graphrag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/core/mock"
	"github.com/siherrmann/graphrag/core/pipeline"
	"github.com/siherrmann/graphrag/core/resolver"
	"github.com/siherrmann/graphrag/database"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDim   = 16
	aliceText = "Alice works at Acme. Bob works at Acme."
)

func initGraphRAG(t *testing.T) (*GraphRAG, *mock.MockEmbedder, *mock.MockExtractor) {
	t.Helper()

	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")

	g, err := NewGraphRAG(dbConfig, testDim)
	require.NoError(t, err, "failed to create graphrag")
	require.NotNil(t, g, "expected graphrag to be non-nil")

	embedder := mock.NewMockEmbedder(testDim)
	extractor := mock.NewMockExtractor()
	extractor.Graphs[aliceText] = &model.CandidateGraph{
		Entities: []model.CandidateEntity{
			{Label: "Alice", Payload: model.Metadata{"type": "person"}},
			{Label: "Acme", Payload: model.Metadata{"type": "company"}},
			{Label: "Bob", Payload: model.Metadata{"type": "person"}},
		},
		Relations: []model.CandidateRelation{
			{From: "Alice", To: "Acme", Relation: "works at"},
			{From: "Bob", To: "Acme", Relation: "works at"},
		},
	}

	err = g.SetPipeline(pipeline.NewPipeline(nil, embedder, extractor))
	require.NoError(t, err, "failed to set pipeline")

	t.Cleanup(func() {
		g.Close()
	})

	return g, embedder, extractor
}

func TestNewGraphRAG(t *testing.T) {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err)

	t.Run("Valid call NewGraphRAG", func(t *testing.T) {
		g, err := NewGraphRAG(dbConfig, testDim)
		require.NoError(t, err, "Expected NewGraphRAG to not return an error")
		require.NotNil(t, g)
		assert.NotNil(t, g.DB, "Expected graphrag to have a database instance")
		assert.NotNil(t, g.Documents, "Expected graphrag to have documents handler")
		assert.NotNil(t, g.Chunks, "Expected graphrag to have chunks handler")
		assert.NotNil(t, g.Entities, "Expected graphrag to have entities handler")
		assert.NotNil(t, g.Disambiguations, "Expected graphrag to have disambiguations handler")
		assert.NotNil(t, g.Edges, "Expected graphrag to have edges handler")
		assert.Nil(t, g.Pipeline, "Expected pipeline to be nil initially")

		err = g.Close()
		assert.NoError(t, err, "Expected Close to not return an error")
	})

	t.Run("Invalid embedding dimension", func(t *testing.T) {
		_, err := NewGraphRAG(dbConfig, 0)
		assert.True(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("Operations without pipeline are rejected", func(t *testing.T) {
		g, err := NewGraphRAG(dbConfig, testDim)
		require.NoError(t, err)
		defer g.Close()

		_, err = g.Ingest(context.Background(), &model.IngestRequest{Text: "text", Weight: 0.5})
		assert.True(t, errors.Is(err, model.ErrValidation))

		_, err = g.GetNode(context.Background(), model.EntityRef("acme"))
		assert.True(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("GraphRAG with nil database handles Close gracefully", func(t *testing.T) {
		g := &GraphRAG{}
		assert.NoError(t, g.Close())
	})
}

func TestIngestScenario(t *testing.T) {
	ctx := context.Background()
	g, _, _ := initGraphRAG(t)

	id, err := g.Ingest(ctx, &model.IngestRequest{Title: "staff", Text: aliceText, Weight: 0.8})
	require.NoError(t, err, "Expected Ingest to not return an error")
	require.NotEqual(t, uuid.Nil, id)

	t.Run("Entities are stored under normalized keys", func(t *testing.T) {
		for _, key := range []string{"alice", "acme", "bob"} {
			entity, err := g.Entities.SelectEntity(ctx, key)
			require.NoError(t, err, "Expected entity %s", key)
			assert.Equal(t, key, entity.Key)
		}
	})

	t.Run("Works at edges carry the request weight", func(t *testing.T) {
		edges, err := g.Edges.SelectEdgesByRelation(ctx, "works_at", 100)
		require.NoError(t, err)

		found := 0
		for _, e := range edges {
			if e.Target == model.EntityRef("acme") && (e.Source == model.EntityRef("alice") || e.Source == model.EntityRef("bob")) {
				found++
				assert.LessOrEqual(t, e.Weight, 0.8)
			}
		}
		assert.Equal(t, 2, found)
	})

	t.Run("Document mentions acme exactly once", func(t *testing.T) {
		node, err := g.GetNode(ctx, model.RecordRef{Table: model.TableDocument, ID: id.String()})
		require.NoError(t, err)

		acme := 0
		for _, n := range node.Neighbors {
			assert.Equal(t, model.RelationMentions, n.RelationType)
			if n.Record == model.EntityRef("acme") {
				acme++
			}
		}
		assert.Equal(t, 1, acme)
		assert.Len(t, node.Neighbors, 3)
		assert.Contains(t, node.Content, aliceText)
	})

	t.Run("Acme node lists neighbors ascending by weight", func(t *testing.T) {
		node, err := g.GetNode(ctx, model.EntityRef("acme"))
		require.NoError(t, err)

		require.NotEmpty(t, node.Neighbors)
		for i := 1; i < len(node.Neighbors); i++ {
			assert.LessOrEqual(t, node.Neighbors[i-1].Weight, node.Neighbors[i].Weight)
		}
		for _, n := range node.Neighbors {
			assert.NotEqual(t, model.EntityRef("acme"), n.Record, "Neighbor must be the other endpoint")
		}
		assert.Contains(t, node.Content, `"key":"acme"`)
	})

	t.Run("Similarity search finds the document with its mentions", func(t *testing.T) {
		matches, err := g.SimilaritySearch(ctx, aliceText, 0.99, 0)
		require.NoError(t, err)

		var match *model.DocumentMatch
		for _, m := range matches {
			if m.DocumentID == id {
				match = m
			}
		}
		require.NotNil(t, match, "Expected the ingested document to match its own text")
		assert.InDelta(t, 1.0, match.Similarity, 1e-4)
		assert.ElementsMatch(t, []model.RecordRef{model.EntityRef("acme"), model.EntityRef("alice"), model.EntityRef("bob")}, match.Mentions)
	})

	t.Run("Similarity search validates its input", func(t *testing.T) {
		_, err := g.SimilaritySearch(ctx, aliceText, 1.5, 10)
		assert.True(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("Chunk search finds the paragraph", func(t *testing.T) {
		matches, err := g.SearchChunks(ctx, aliceText, 0.99, 5)
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, aliceText, matches[0].Chunk.Text)
	})

	t.Run("Expand from alice reaches bob over acme", func(t *testing.T) {
		results, err := g.Expand(ctx, model.EntityRef("alice"), 2, []string{"works_at"})
		require.NoError(t, err)

		var reached []model.RecordRef
		for _, r := range results {
			reached = append(reached, r.Record)
		}
		assert.Contains(t, reached, model.EntityRef("bob"))
	})

	t.Run("Unknown node is not found", func(t *testing.T) {
		_, err := g.GetNode(ctx, model.EntityRef("initech"))
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})
}

func TestIngestAtomicity(t *testing.T) {
	ctx := context.Background()

	t.Run("Extraction failure stores no document", func(t *testing.T) {
		g, _, extractor := initGraphRAG(t)
		text := "Failing text about " + uuid.NewString()
		extractor.ExtractFunc = func(ctx context.Context, in string) (*model.CandidateGraph, error) {
			return nil, errors.New("model crashed")
		}

		_, err := g.Ingest(ctx, &model.IngestRequest{Text: text, Weight: 0.5})
		assert.True(t, errors.Is(err, model.ErrExtraction))

		matches, err := g.SearchChunks(ctx, text, 0.999, 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("Invalid weight is rejected", func(t *testing.T) {
		g, _, _ := initGraphRAG(t)

		_, err := g.Ingest(ctx, &model.IngestRequest{Text: aliceText, Weight: 1.2})
		assert.True(t, errors.Is(err, model.ErrValidation))
	})
}

func TestIngestFile(t *testing.T) {
	ctx := context.Background()
	g, _, _ := initGraphRAG(t)

	path := filepath.Join(t.TempDir(), "staff.txt")
	require.NoError(t, os.WriteFile(path, []byte(aliceText), 0600))

	t.Run("File is ingested with its name as title", func(t *testing.T) {
		id, err := g.IngestFile(ctx, path, 0.6, model.Metadata{"lang": "en"})
		require.NoError(t, err)

		doc, err := g.Documents.SelectDocument(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "staff", doc.Title)
		assert.Equal(t, path, doc.Source)
		assert.Equal(t, "en", doc.Metadata["lang"])
	})

	t.Run("Missing file is a validation error", func(t *testing.T) {
		_, err := g.IngestFile(ctx, filepath.Join(t.TempDir(), "missing.txt"), 0.6, nil)
		assert.True(t, errors.Is(err, model.ErrValidation))
	})
}

func TestChangeIndexType(t *testing.T) {
	g, _, _ := initGraphRAG(t)

	t.Run("Switch document index to ivfflat", func(t *testing.T) {
		err := g.ChangeIndexType(context.Background(), database.IndexDocuments, "ivfflat", map[string]interface{}{"lists": 10})
		assert.NoError(t, err)
	})

	t.Run("Switch document index back to hnsw", func(t *testing.T) {
		err := g.ChangeIndexType(context.Background(), database.IndexDocuments, "hnsw", nil)
		assert.NoError(t, err)
	})

	t.Run("Unknown index type", func(t *testing.T) {
		err := g.ChangeIndexType(context.Background(), database.IndexDocuments, "btree", nil)
		assert.True(t, errors.Is(err, model.ErrValidation))
	})
}

func TestFindDuplicates(t *testing.T) {
	ctx := context.Background()
	g, embedder, extractor := initGraphRAG(t)

	suffix := uuid.NewString()[:8]
	left, right := "Initech "+suffix, "Initech Corp "+suffix
	vector := make([]float32, testDim)
	vector[0] = 1
	near := make([]float32, testDim)
	near[0], near[1] = 0.7, 0.714
	embedder.Vectors[left] = vector
	embedder.Vectors[right] = near

	text := "Two names for one company " + suffix
	extractor.Graphs[text] = &model.CandidateGraph{
		Entities: []model.CandidateEntity{{Label: left}},
	}
	_, err := g.Ingest(ctx, &model.IngestRequest{Text: text, Weight: 0.5})
	require.NoError(t, err)

	text2 := "Second document " + suffix
	extractor.Graphs[text2] = &model.CandidateGraph{
		Entities: []model.CandidateEntity{{Label: right}},
	}
	_, err = g.Ingest(ctx, &model.IngestRequest{Text: text2, Weight: 0.5})
	require.NoError(t, err)

	t.Run("Near keys are reported", func(t *testing.T) {
		pairs, err := g.FindDuplicates(ctx, 0.5, 1000)
		require.NoError(t, err)

		leftKey, rightKey := resolver.NormalizeLabel(left), resolver.NormalizeLabel(right)
		found := false
		for _, p := range pairs {
			if (p.LeftKey == leftKey && p.RightKey == rightKey) || (p.LeftKey == rightKey && p.RightKey == leftKey) {
				found = true
			}
		}
		assert.True(t, found, "Expected %s and %s to be reported", leftKey, rightKey)
	})
}
