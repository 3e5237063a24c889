package pipeline

import (
	"context"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// NamedEntity is one entity span found by a NER model.
type NamedEntity struct {
	Word  string
	Type  string
	Score float32
}

// NERExtractor finds entities with a local NER model. It finds no relations,
// so documents ingested with it only gain mention edges.
type NERExtractor struct {
	session   *hugot.Session
	recognize func(text string) ([]NamedEntity, error)
}

// NewNERExtractor creates an entity extractor using a NER model
// Uses distilbert-NER for named entity recognition
// Detects: PER, ORG, LOC, MISC entities
func NewNERExtractor() (*NERExtractor, error) {
	modelPath, err := helper.PrepareModel("KnightsAnalytics/distilbert-NER", "model.onnx")
	if err != nil {
		return nil, model.NewKindError(model.ErrExtraction, "prepare model", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, model.NewKindError(model.ErrExtraction, "create hugot session", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, model.NewKindError(model.ErrExtraction, "create NER pipeline", destroyErr)
		}
		return nil, model.NewKindError(model.ErrExtraction, "create NER pipeline", err)
	}

	return &NERExtractor{
		session: session,
		recognize: func(text string) ([]NamedEntity, error) {
			result, err := nerPipeline.RunPipeline([]string{text})
			if err != nil {
				return nil, err
			}
			if len(result.Entities) == 0 {
				return nil, nil
			}

			entities := make([]NamedEntity, 0, len(result.Entities[0]))
			for _, entity := range result.Entities[0] {
				entities = append(entities, NamedEntity{
					Word:  entity.Word,
					Type:  entity.Entity,
					Score: entity.Score,
				})
			}
			return entities, nil
		},
	}, nil
}

// Extract runs NER over text.
func (e *NERExtractor) Extract(ctx context.Context, text string) (*model.CandidateGraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewKindError(model.ErrExtraction, "run NER", err)
	}

	entities, err := e.recognize(text)
	if err != nil {
		return nil, model.NewKindError(model.ErrExtraction, "run NER", err)
	}

	graph := NamedEntitiesToCandidateGraph(entities)
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return graph, nil
}

// Close releases the hugot session.
func (e *NERExtractor) Close() error {
	return e.session.Destroy()
}

// NamedEntitiesToCandidateGraph keeps the first occurrence of every word as an entity.
func NamedEntitiesToCandidateGraph(entities []NamedEntity) *model.CandidateGraph {
	graph := &model.CandidateGraph{}
	seen := make(map[string]bool)
	for _, entity := range entities {
		word := strings.TrimSpace(entity.Word)
		if word == "" || seen[word] {
			continue
		}
		seen[word] = true

		graph.Entities = append(graph.Entities, model.CandidateEntity{
			Label: word,
			Payload: model.Metadata{
				"type":       normalizeEntityType(entity.Type),
				"confidence": entity.Score,
			},
		})
	}
	return graph
}

// normalizeEntityType removes B- and I- prefixes from NER labels
func normalizeEntityType(label string) string {
	if strings.HasPrefix(label, "B-") || strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}
