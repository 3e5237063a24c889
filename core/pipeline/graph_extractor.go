package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// Triplet represents a relation triplet extracted by REBEL
type Triplet struct {
	Head     string
	Relation string
	Tail     string
}

var tripletPattern = regexp.MustCompile(`<triplet>([^<]+)<subj>([^<]+)<obj>([^<]+)`)

// RebelExtractor extracts entities and relations in a single pass with a
// local REBEL model, without any chat model.
type RebelExtractor struct {
	session  *hugot.Session
	generate func(ctx context.Context, text string) (string, error)
}

// NewRebelExtractor loads the multilingual REBEL model with hugot.
func NewRebelExtractor() (*RebelExtractor, error) {
	modelPath, err := helper.PrepareModel("Babelscape/mrebel-base", "mrebel_base_model.onnx")
	if err != nil {
		return nil, model.NewKindError(model.ErrExtraction, "prepare model", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, model.NewKindError(model.ErrExtraction, "create hugot session", err)
	}

	config := hugot.TextGenerationConfig{
		ModelPath: modelPath,
		Name:      "rebel-pipeline",
	}
	generationPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, model.NewKindError(model.ErrExtraction, "create REBEL pipeline", fmt.Errorf("%w (cleanup error: %v)", err, destroyErr))
		}
		return nil, model.NewKindError(model.ErrExtraction, "create REBEL pipeline", err)
	}

	return &RebelExtractor{
		session: session,
		generate: func(ctx context.Context, text string) (string, error) {
			output, err := generationPipeline.RunPipeline(ctx, []string{text})
			if err != nil {
				return "", err
			}
			if len(output.Responses) == 0 {
				return "", nil
			}
			return output.Responses[0], nil
		},
	}, nil
}

// Extract generates triplets for text and turns them into a candidate graph.
func (e *RebelExtractor) Extract(ctx context.Context, text string) (*model.CandidateGraph, error) {
	generated, err := e.generate(ctx, text)
	if err != nil {
		return nil, model.NewKindError(model.ErrExtraction, "generate with REBEL", err)
	}

	graph := TripletsToCandidateGraph(parseREBELOutput(generated))
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return graph, nil
}

// Close releases the hugot session.
func (e *RebelExtractor) Close() error {
	return e.session.Destroy()
}

// TripletsToCandidateGraph collects the distinct heads and tails of triplets
// as entities and every triplet as a relation.
func TripletsToCandidateGraph(triplets []Triplet) *model.CandidateGraph {
	graph := &model.CandidateGraph{}
	seen := make(map[string]bool)
	addEntity := func(label string) {
		if seen[label] {
			return
		}
		seen[label] = true
		graph.Entities = append(graph.Entities, model.CandidateEntity{
			Label:   label,
			Payload: model.Metadata{"source": "rebel"},
		})
	}

	for _, triplet := range triplets {
		if triplet.Head == "" || triplet.Tail == "" || triplet.Relation == "" {
			continue
		}
		addEntity(triplet.Head)
		addEntity(triplet.Tail)
		graph.Relations = append(graph.Relations, model.CandidateRelation{
			From:     triplet.Head,
			To:       triplet.Tail,
			Relation: triplet.Relation,
		})
	}

	return graph
}

// parseREBELOutput parses REBEL model output into triplets
// REBEL outputs format: "<triplet> head <subj> tail <obj> relation <triplet> ..."
func parseREBELOutput(generated string) []Triplet {
	var triplets []Triplet

	matches := tripletPattern.FindAllStringSubmatch(generated, -1)
	for _, match := range matches {
		if len(match) == 4 {
			triplets = append(triplets, Triplet{
				Head:     strings.TrimSpace(match[1]),
				Tail:     strings.TrimSpace(match[2]),
				Relation: strings.TrimSpace(match[3]),
			})
		}
	}

	return triplets
}
