package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/core/pipeline"
	"github.com/siherrmann/graphrag/core/resolver"
	"github.com/siherrmann/graphrag/model"
)

// Committer stores an ingestion batch atomically.
type Committer interface {
	CommitIngestion(ctx context.Context, batch *model.IngestionBatch) error
}

// Ingestor drives one ingestion request from raw text to a committed graph.
// It is safe for concurrent use; every request gets its own resolver session.
type Ingestor struct {
	pipeline  *pipeline.Pipeline
	resolver  *resolver.Resolver
	committer Committer
	logger    *slog.Logger
}

// NewIngestor creates an ingestor.
func NewIngestor(p *pipeline.Pipeline, r *resolver.Resolver, committer Committer, logger *slog.Logger) (*Ingestor, error) {
	if p == nil || p.Embedder == nil || p.Extractor == nil || p.Chunker == nil {
		return nil, model.NewKindError(model.ErrValidation, "new ingestor", fmt.Errorf("pipeline needs a chunker, an embedder and an extractor"))
	}
	if r == nil {
		return nil, model.NewKindError(model.ErrValidation, "new ingestor", fmt.Errorf("resolver is nil"))
	}
	if committer == nil {
		return nil, model.NewKindError(model.ErrValidation, "new ingestor", fmt.Errorf("committer is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Ingestor{
		pipeline:  p,
		resolver:  r,
		committer: committer,
		logger:    logger.With("component", "ingestor"),
	}, nil
}

// Ingest stores request as a document with its chunks, extracts and
// resolves its entities and relations and commits everything in one
// transaction. It returns the id of the new document.
// Nothing is written unless the final commit succeeds.
func (i *Ingestor) Ingest(ctx context.Context, request *model.IngestRequest) (uuid.UUID, error) {
	start := time.Now()

	if err := request.Validate(); err != nil {
		return uuid.Nil, err
	}

	document, chunks, err := i.embedDocument(ctx, request)
	if err != nil {
		return uuid.Nil, err
	}

	graph, err := i.extract(ctx, request.Text)
	if err != nil {
		return uuid.Nil, err
	}

	resolutions, session, err := i.resolve(ctx, graph)
	if err != nil {
		return uuid.Nil, err
	}

	batch := &model.IngestionBatch{
		Document:        document,
		Chunks:          chunks,
		Disambiguations: session.Pending(),
		Entities:        buildEntities(graph, resolutions),
		Relations:       buildRelations(graph, resolutions, request.Weight),
		WeightMerge:     i.resolver.Config().WeightMerge,
	}
	batch.Mentions = buildMentions(batch.Entities, request.Weight)

	err = i.committer.CommitIngestion(ctx, batch)
	if err != nil {
		return uuid.Nil, model.NewKindError(model.ErrStorage, "commit ingestion", err)
	}

	i.logger.Info(
		"Ingested document",
		"document", document.ID,
		"chunks", len(batch.Chunks),
		"entities", len(batch.Entities),
		"relations", len(batch.Relations),
		"new_keys", len(batch.Disambiguations),
		"duration", time.Since(start),
	)

	return document.ID, nil
}

func (i *Ingestor) embedDocument(ctx context.Context, request *model.IngestRequest) (*model.Document, []*model.Chunk, error) {
	paragraphs, err := i.pipeline.Chunker(request.Text)
	if err != nil {
		return nil, nil, model.NewKindError(model.ErrValidation, "chunk text", err)
	}

	texts := append([]string{request.Text}, paragraphs...)
	embeddings, err := i.pipeline.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, nil, model.NewKindError(model.ErrEmbedding, "embed document", err)
	}
	if len(embeddings) != len(texts) {
		return nil, nil, model.NewKindError(model.ErrEmbedding, "embed document", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddings)))
	}

	document := &model.Document{
		Title:     request.Title,
		Source:    request.Source,
		Text:      request.Text,
		Weight:    request.Weight,
		Embedding: embeddings[0],
		Metadata:  request.Metadata,
	}

	chunks := make([]*model.Chunk, len(paragraphs))
	for j, paragraph := range paragraphs {
		chunks[j] = &model.Chunk{
			Index:     j,
			Text:      paragraph,
			Embedding: embeddings[j+1],
		}
	}

	return document, chunks, nil
}

func (i *Ingestor) extract(ctx context.Context, text string) (*model.CandidateGraph, error) {
	graph, err := i.pipeline.Extractor.Extract(ctx, text)
	if err != nil {
		return nil, model.NewKindError(model.ErrExtraction, "extract graph", err)
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	for _, e := range graph.Entities {
		if resolver.NormalizeLabel(e.Label) == "" {
			return nil, model.NewKindError(model.ErrExtraction, "extract graph", fmt.Errorf("entity label %q has no usable characters", e.Label))
		}
	}
	for _, r := range graph.Relations {
		if resolver.NormalizeLabel(r.From) == "" || resolver.NormalizeLabel(r.To) == "" || resolver.NormalizeRelation(r.Relation) == "" {
			return nil, model.NewKindError(model.ErrExtraction, "extract graph", fmt.Errorf("relation %q has no usable characters", r.Relation))
		}
	}

	return graph, nil
}

// resolve embeds every distinct label of graph in one call and resolves
// them in order of appearance, entities first. The returned map rewrites
// normalized labels to their resolution.
func (i *Ingestor) resolve(ctx context.Context, graph *model.CandidateGraph) (map[string]*model.Resolution, *resolver.Session, error) {
	var labels []string
	seen := make(map[string]bool)
	add := func(label string) {
		label = strings.TrimSpace(label)
		key := resolver.NormalizeLabel(label)
		if !seen[key] {
			seen[key] = true
			labels = append(labels, label)
		}
	}
	for _, e := range graph.Entities {
		add(e.Label)
	}
	for _, r := range graph.Relations {
		add(r.From)
		add(r.To)
	}

	session := i.resolver.NewSession()
	resolutions := make(map[string]*model.Resolution, len(labels))
	if len(labels) == 0 {
		return resolutions, session, nil
	}

	embeddings, err := i.pipeline.Embedder.EmbedTexts(ctx, labels)
	if err != nil {
		return nil, nil, model.NewKindError(model.ErrEmbedding, "embed labels", err)
	}
	if len(embeddings) != len(labels) {
		return nil, nil, model.NewKindError(model.ErrEmbedding, "embed labels", fmt.Errorf("expected %d embeddings, got %d", len(labels), len(embeddings)))
	}

	for j, label := range labels {
		resolution, err := session.Resolve(ctx, model.EntityReference{Label: label, Embedding: embeddings[j]})
		if err != nil {
			return nil, nil, err
		}
		resolutions[resolver.NormalizeLabel(label)] = resolution
	}

	return resolutions, session, nil
}

// buildEntities creates one entity write per canonical key, merging the
// payloads of every label resolved to it. Label embeddings are only written
// for new keys so stored entities keep the embedding they were created with.
func buildEntities(graph *model.CandidateGraph, resolutions map[string]*model.Resolution) []*model.CanonicalEntity {
	byKey := make(map[string]*model.CanonicalEntity)
	var entities []*model.CanonicalEntity

	add := func(label string, payload model.Metadata) {
		resolution := resolutions[resolver.NormalizeLabel(label)]
		entity, ok := byKey[resolution.Key]
		if !ok {
			entity = &model.CanonicalEntity{
				Key:   resolution.Key,
				Label: resolution.Label,
				Data:  model.Metadata{},
			}
			if !resolution.Matched {
				entity.LabelEmbedding = resolution.Embedding
			}
			byKey[resolution.Key] = entity
			entities = append(entities, entity)
		}
		entity.Data = entity.Data.Merge(payload)
	}

	for _, e := range graph.Entities {
		add(e.Label, e.Payload)
	}
	for _, r := range graph.Relations {
		add(r.From, nil)
		add(r.To, nil)
	}

	return entities
}

// buildRelations creates one edge write per distinct (from, relation, to).
func buildRelations(graph *model.CandidateGraph, resolutions map[string]*model.Resolution, weight float64) []*model.Edge {
	seen := make(map[string]bool)
	var relations []*model.Edge

	for _, r := range graph.Relations {
		edge := &model.Edge{
			Source:   model.EntityRef(resolutions[resolver.NormalizeLabel(r.From)].Key),
			Relation: resolver.NormalizeRelation(r.Relation),
			Target:   model.EntityRef(resolutions[resolver.NormalizeLabel(r.To)].Key),
			Weight:   model.ClampWeight(weight),
		}

		id := edge.Source.String() + "|" + edge.Relation + "|" + edge.Target.String()
		if seen[id] {
			continue
		}
		seen[id] = true
		relations = append(relations, edge)
	}

	return relations
}

// buildMentions creates exactly one mentions edge per canonical entity.
func buildMentions(entities []*model.CanonicalEntity, weight float64) []*model.Edge {
	keys := make([]string, 0, len(entities))
	seen := make(map[string]bool)
	for _, e := range entities {
		if !seen[e.Key] {
			seen[e.Key] = true
			keys = append(keys, e.Key)
		}
	}
	sort.Strings(keys)

	mentions := make([]*model.Edge, len(keys))
	for j, key := range keys {
		mentions[j] = &model.Edge{
			Relation: model.RelationMentions,
			Target:   model.EntityRef(key),
			Weight:   model.ClampWeight(weight),
		}
	}
	return mentions
}
