package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siherrmann/graphrag/model"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIEmbedder implements Embedder against an OpenAI-compatible embedding API.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// NewOpenAIEmbedder creates an embedder for config.EmbeddingHost and config.EmbeddingModel.
func NewOpenAIEmbedder(config *Config, logger *slog.Logger) (*OpenAIEmbedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Local OpenAI-compatible servers ignore the token
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken("none"),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, model.NewKindError(model.ErrEmbedding, "create embedding client", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, model.NewKindError(model.ErrEmbedding, "create embedder", err)
	}

	return &OpenAIEmbedder{
		embedder: embedder,
		logger:   logger.With("component", "openai-embedder"),
	}, nil
}

// EmbedText generates a vector embedding for a single text string.
func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in one request.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings", "count", len(texts))

	embeddings, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, model.NewKindError(model.ErrEmbedding, "embed texts", err)
	}
	if len(embeddings) != len(texts) {
		return nil, model.NewKindError(model.ErrEmbedding, "embed texts", fmt.Errorf("got %d embeddings for %d texts", len(embeddings), len(texts)))
	}

	return embeddings, nil
}

// LLMExtractor implements Extractor with an OpenAI-compatible chat model in JSON mode.
type LLMExtractor struct {
	client   llms.Model
	attempts int
	logger   *slog.Logger
}

// NewLLMExtractor creates an extractor for config.ExtractionHost and config.ExtractionModel.
func NewLLMExtractor(config *Config, logger *slog.Logger) (*LLMExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ExtractionHost),
		openai.WithToken("none"),
		openai.WithModel(config.ExtractionModel),
	)
	if err != nil {
		return nil, model.NewKindError(model.ErrExtraction, "create extraction client", err)
	}

	return newLLMExtractor(client, config.ExtractionAttempts, logger), nil
}

func newLLMExtractor(client llms.Model, attempts int, logger *slog.Logger) *LLMExtractor {
	if attempts < 1 {
		attempts = 1
	}
	return &LLMExtractor{
		client:   client,
		attempts: attempts,
		logger:   logger.With("component", "llm-extractor"),
	}
}

// Extract asks the model for the graph of text. Answers that do not parse
// into a valid candidate graph are retried up to the configured attempts.
func (e *LLMExtractor) Extract(ctx context.Context, text string) (*model.CandidateGraph, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(fmt.Sprintf(extractionPromptTemplate, extractionResponseSchema)),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(text),
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt < e.attempts; attempt++ {
		response, err := e.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			e.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, model.NewKindError(model.ErrExtraction, "generate content", err)
		}

		if len(response.Choices) < 1 {
			lastErr = fmt.Errorf("no choices returned from model")
			e.logger.Warn("empty model response", "attempt", attempt+1)
			continue
		}

		graph, err := ParseCandidateGraph(response.Choices[0].Content)
		if err != nil {
			lastErr = err
			e.logger.Warn("error parsing extraction response",
				"attempt", attempt+1,
				"response", response.Choices[0].Content,
				"err", err)
			continue
		}

		e.logger.Debug("extracted graph",
			"entities", len(graph.Entities),
			"relations", len(graph.Relations))
		return graph, nil
	}

	e.logger.Error("failed to parse extraction response after retries", "attempts", e.attempts, "err", lastErr)
	return nil, model.NewKindError(model.ErrExtraction, "extract graph", lastErr)
}
