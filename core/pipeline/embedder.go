package pipeline

import (
	"context"
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// DefaultEmbeddingDimension is the vector size of the DefaultEmbedder model.
const DefaultEmbeddingDimension = 384

// HugotEmbedder runs a sentence transformer locally with hugot.
type HugotEmbedder struct {
	session *hugot.Session
	run     func(texts []string) ([][]float32, error)
}

// DefaultEmbedder creates an embedder using a real sentence transformer model
// Uses the all-MiniLM-L6-v2 model which produces 384-dimensional embeddings
func DefaultEmbedder() (*HugotEmbedder, error) {
	modelPath, err := helper.PrepareModel("sentence-transformers/all-MiniLM-L6-v2", "onnx/model.onnx")
	if err != nil {
		return nil, model.NewKindError(model.ErrEmbedding, "prepare model", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, model.NewKindError(model.ErrEmbedding, "create hugot session", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, model.NewKindError(model.ErrEmbedding, "create sentence pipeline", fmt.Errorf("%w (cleanup error: %v)", err, destroyErr))
		}
		return nil, model.NewKindError(model.ErrEmbedding, "create sentence pipeline", err)
	}

	return &HugotEmbedder{
		session: session,
		run: func(texts []string) ([][]float32, error) {
			result, err := sentencePipeline.RunPipeline(texts)
			if err != nil {
				return nil, err
			}
			return result.Embeddings, nil
		},
	}, nil
}

// EmbedText generates the embedding of one text.
func (e *HugotEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedTexts generates the embeddings of all texts in one pipeline run.
func (e *HugotEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewKindError(model.ErrEmbedding, "embed texts", err)
	}

	embeddings, err := e.run(texts)
	if err != nil {
		return nil, model.NewKindError(model.ErrEmbedding, "run pipeline", err)
	}
	if len(embeddings) != len(texts) {
		return nil, model.NewKindError(model.ErrEmbedding, "run pipeline", fmt.Errorf("got %d embeddings for %d texts", len(embeddings), len(texts)))
	}

	return embeddings, nil
}

// Close releases the hugot session.
func (e *HugotEmbedder) Close() error {
	return e.session.Destroy()
}
