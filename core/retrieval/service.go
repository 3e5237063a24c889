package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/siherrmann/graphrag/core/graph"
	"github.com/siherrmann/graphrag/core/pipeline"
	"github.com/siherrmann/graphrag/model"
)

// NodeStore loads records and the edges touching them.
type NodeStore interface {
	SelectRecord(ctx context.Context, ref model.RecordRef) (interface{}, error)
	SelectEdgesConnected(ctx context.Context, ref model.RecordRef) ([]*model.Edge, error)
}

// DocumentSearcher runs nearest neighbor searches over stored embeddings.
type DocumentSearcher interface {
	SelectDocumentsBySimilarity(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]*model.DocumentMatch, error)
	SelectChunksBySimilarity(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]*model.ChunkMatch, error)
}

// Service answers neighborhood and similarity queries.
type Service struct {
	nodes    NodeStore
	searcher DocumentSearcher
	embedder pipeline.Embedder
	config   model.GraphConfig
	logger   *slog.Logger
}

// NewService creates a query service.
func NewService(nodes NodeStore, searcher DocumentSearcher, embedder pipeline.Embedder, config model.GraphConfig, logger *slog.Logger) (*Service, error) {
	if nodes == nil || searcher == nil || embedder == nil {
		return nil, model.NewKindError(model.ErrValidation, "new service", fmt.Errorf("node store, searcher and embedder are required"))
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		nodes:    nodes,
		searcher: searcher,
		embedder: embedder,
		config:   config,
		logger:   logger.With("component", "retrieval"),
	}, nil
}

// GetNode returns the record ref points to with its neighbors, weakest
// edge first. Edges are followed in both directions.
func (s *Service) GetNode(ctx context.Context, ref model.RecordRef) (*model.NodeView, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	record, err := s.nodes.SelectRecord(ctx, ref)
	if err != nil {
		return nil, model.NewKindError(model.ErrStorage, "select record", err)
	}

	edges, err := s.nodes.SelectEdgesConnected(ctx, ref)
	if err != nil {
		return nil, model.NewKindError(model.ErrStorage, "select connected edges", err)
	}

	content, err := json.Marshal(record)
	if err != nil {
		return nil, model.NewKindError(model.ErrStorage, "serialize record", err)
	}

	return &model.NodeView{
		Record:    ref,
		Neighbors: NormalizeNeighbors(ref, edges),
		Content:   string(content),
	}, nil
}

// NormalizeNeighbors turns the edges touching ref into neighbors holding the
// other endpoint. Neighbors are sorted ascending by weight, ties by relation
// type and then by record. Edges not touching ref are ignored.
func NormalizeNeighbors(ref model.RecordRef, edges []*model.Edge) []*model.Neighbor {
	neighbors := make([]*model.Neighbor, 0, len(edges))
	for _, edge := range edges {
		other, ok := edge.Other(ref)
		if !ok {
			continue
		}
		neighbors = append(neighbors, &model.Neighbor{
			Record:       other,
			Weight:       edge.Weight,
			RelationType: edge.Relation,
		})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Weight != neighbors[j].Weight {
			return neighbors[i].Weight < neighbors[j].Weight
		}
		if neighbors[i].RelationType != neighbors[j].RelationType {
			return neighbors[i].RelationType < neighbors[j].RelationType
		}
		return neighbors[i].Record.String() < neighbors[j].Record.String()
	})

	return neighbors
}

// SimilaritySearch returns up to limit documents whose embedding has at least
// minimumSimilarity cosine similarity to the embedding of text, most similar
// first, each with the entities it mentions. A limit of 0 uses the configured
// search limit.
func (s *Service) SimilaritySearch(ctx context.Context, text string, minimumSimilarity float64, limit int) ([]*model.DocumentMatch, error) {
	limit, err := s.validateSearch("similarity search", minimumSimilarity, limit)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	matches, err := s.searcher.SelectDocumentsBySimilarity(ctx, embedding, minimumSimilarity, limit)
	if err != nil {
		return nil, model.NewKindError(model.ErrStorage, "select documents by similarity", err)
	}

	filtered := make([]*model.DocumentMatch, 0, len(matches))
	for _, m := range matches {
		if m.Similarity >= minimumSimilarity {
			if m.Mentions == nil {
				m.Mentions = []model.RecordRef{}
			}
			filtered = append(filtered, m)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Similarity > filtered[j].Similarity
	})
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	s.logger.Debug("Similarity search", "min_similarity", minimumSimilarity, "limit", limit, "matches", len(filtered))

	return filtered, nil
}

// SearchChunks returns up to limit paragraph chunks similar to text, most similar first.
func (s *Service) SearchChunks(ctx context.Context, text string, minimumSimilarity float64, limit int) ([]*model.ChunkMatch, error) {
	limit, err := s.validateSearch("search chunks", minimumSimilarity, limit)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	matches, err := s.searcher.SelectChunksBySimilarity(ctx, embedding, minimumSimilarity, limit)
	if err != nil {
		return nil, model.NewKindError(model.ErrStorage, "select chunks by similarity", err)
	}

	filtered := make([]*model.ChunkMatch, 0, len(matches))
	for _, m := range matches {
		if m.Similarity >= minimumSimilarity {
			filtered = append(filtered, m)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Similarity > filtered[j].Similarity
	})
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	return filtered, nil
}

// Expand walks the graph breadth first from ref up to maxHops edges away.
// When relations is not empty only edges of these types are followed.
// The first result is ref itself.
func (s *Service) Expand(ctx context.Context, ref model.RecordRef, maxHops int, relations []string) ([]*graph.TraversalResult, error) {
	return s.traverse(ctx, "expand", graph.BFS, ref, maxHops, relations)
}

// ExpandDepthFirst walks the same neighborhood as Expand depth first,
// following the strongest edge of every record before its siblings.
func (s *Service) ExpandDepthFirst(ctx context.Context, ref model.RecordRef, maxHops int, relations []string) ([]*graph.TraversalResult, error) {
	return s.traverse(ctx, "expand depth first", graph.DFS, ref, maxHops, relations)
}

type traversal func(ctx context.Context, db graph.GraphDB, source model.RecordRef, maxHops int, relations []string) ([]*graph.TraversalResult, error)

func (s *Service) traverse(ctx context.Context, operation string, walk traversal, ref model.RecordRef, maxHops int, relations []string) ([]*graph.TraversalResult, error) {
	if maxHops < 0 {
		return nil, model.NewKindError(model.ErrValidation, operation, fmt.Errorf("max hops %d is negative", maxHops))
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.nodes.SelectRecord(ctx, ref); err != nil {
		return nil, model.NewKindError(model.ErrStorage, "select record", err)
	}

	return walk(ctx, s.nodes, ref, maxHops, relations)
}

func (s *Service) validateSearch(operation string, minimumSimilarity float64, limit int) (int, error) {
	if math.IsNaN(minimumSimilarity) || minimumSimilarity < 0 || minimumSimilarity > 1 {
		return 0, model.NewKindError(model.ErrValidation, operation, fmt.Errorf("minimum similarity %v is outside [0,1]", minimumSimilarity))
	}
	if limit < 0 {
		return 0, model.NewKindError(model.ErrValidation, operation, fmt.Errorf("limit %d is negative", limit))
	}
	if limit == 0 {
		limit = s.config.SearchLimit
	}
	return limit, nil
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, model.NewKindError(model.ErrValidation, "embed query", fmt.Errorf("query text is blank"))
	}

	embedding, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, model.NewKindError(model.ErrEmbedding, "embed query", err)
	}
	if len(embedding) == 0 {
		return nil, model.NewKindError(model.ErrEmbedding, "embed query", fmt.Errorf("empty embedding"))
	}
	return embedding, nil
}
