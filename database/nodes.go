package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/model"
)

// NodesDBHandler reads records of any table together with their edges.
type NodesDBHandler struct {
	documents *DocumentsDBHandler
	chunks    *ChunksDBHandler
	entities  *EntitiesDBHandler
	edges     *EdgesDBHandler
}

// NewNodesDBHandler combines the table handlers into a record reader.
func NewNodesDBHandler(documents *DocumentsDBHandler, chunks *ChunksDBHandler, entities *EntitiesDBHandler, edges *EdgesDBHandler) *NodesDBHandler {
	return &NodesDBHandler{
		documents: documents,
		chunks:    chunks,
		entities:  entities,
		edges:     edges,
	}
}

// SelectRecord loads the record ref points to.
// It returns a *model.Document, *model.Chunk or *model.CanonicalEntity.
func (h *NodesDBHandler) SelectRecord(ctx context.Context, ref model.RecordRef) (interface{}, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	switch ref.Table {
	case model.TableDocument:
		return h.documents.SelectDocument(ctx, uuid.MustParse(ref.ID))
	case model.TableChunk:
		return h.chunks.SelectChunk(ctx, uuid.MustParse(ref.ID))
	case model.TableEntity:
		return h.entities.SelectEntity(ctx, ref.ID)
	default:
		return nil, model.NewKindError(model.ErrValidation, "select record", fmt.Errorf("unknown table %q", ref.Table))
	}
}

// SelectEdgesConnected retrieves every edge touching ref.
func (h *NodesDBHandler) SelectEdgesConnected(ctx context.Context, ref model.RecordRef) ([]*model.Edge, error) {
	return h.edges.SelectEdgesConnected(ctx, ref)
}

// SelectDocumentsBySimilarity searches documents by embedding.
func (h *NodesDBHandler) SelectDocumentsBySimilarity(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]*model.DocumentMatch, error) {
	return h.documents.SelectDocumentsBySimilarity(ctx, embedding, minSimilarity, limit)
}

// SelectChunksBySimilarity searches chunks by embedding.
func (h *NodesDBHandler) SelectChunksBySimilarity(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]*model.ChunkMatch, error) {
	return h.chunks.SelectChunksBySimilarity(ctx, embedding, minSimilarity, limit)
}
