package pipeline

import (
	"context"

	"github.com/siherrmann/graphrag/model"
)

// Embedder turns text into embedding vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Extractor turns text into a candidate graph of entities and relations.
type Extractor interface {
	Extract(ctx context.Context, text string) (*model.CandidateGraph, error)
}

// ChunkFunc is a function that splits text into chunk texts
type ChunkFunc func(text string) ([]string, error)

// EmbedFunc is a function that generates embeddings for text
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// EmbedText calls f.
func (f EmbedFunc) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// EmbedTexts calls f once per text.
func (f EmbedFunc) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		embedding, err := f(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, embedding)
	}
	return embeddings, nil
}

// ExtractFunc is a function that extracts a candidate graph from text
type ExtractFunc func(ctx context.Context, text string) (*model.CandidateGraph, error)

// Extract calls f.
func (f ExtractFunc) Extract(ctx context.Context, text string) (*model.CandidateGraph, error) {
	return f(ctx, text)
}

// Pipeline bundles the adapters an ingestion needs.
type Pipeline struct {
	Chunker   ChunkFunc
	Embedder  Embedder
	Extractor Extractor
}

// NewPipeline creates a new processing pipeline.
// A nil chunker defaults to ParagraphChunker.
func NewPipeline(chunker ChunkFunc, embedder Embedder, extractor Extractor) *Pipeline {
	if chunker == nil {
		chunker = ParagraphChunker()
	}
	return &Pipeline{
		Chunker:   chunker,
		Embedder:  embedder,
		Extractor: extractor,
	}
}
