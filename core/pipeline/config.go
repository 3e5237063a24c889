package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/siherrmann/graphrag/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds the settings of the OpenAI-compatible model adapters.
type Config struct {
	// EmbeddingHost is the base URL of the embedding API.
	// Example: "http://localhost:11434/v1" for a local Ollama server
	EmbeddingHost string `validate:"required,url"`

	// ExtractionHost is the base URL of the chat API used for graph extraction.
	ExtractionHost string `validate:"required,url"`

	// EmbeddingModel is the model identifier used for embeddings.
	// Example: "mxbai-embed-large", "text-embedding-3-small"
	EmbeddingModel string `validate:"required"`

	// ExtractionModel is the model identifier used for graph extraction.
	ExtractionModel string `validate:"required"`

	// ExtractionAttempts is how often a malformed model answer is retried.
	// Default: 3
	ExtractionAttempts int `validate:"min=1,max=10"`

	// CacheSize is the number of cached embeddings; zero disables the cache.
	CacheSize int `validate:"min=0"`

	// CacheTTL is how long a cached embedding is kept.
	CacheTTL time.Duration `validate:"min=0"`

	// SentencesPerChunk groups sentences into chunks of this size.
	// Zero keeps paragraph chunking.
	SentencesPerChunk int `validate:"min=0"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithHost sets both embedding and extraction hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ExtractionHost = host
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithExtractionHost sets the extraction service host URL.
func WithExtractionHost(host string) ConfigOption {
	return func(c *Config) {
		c.ExtractionHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithExtractionModel sets the extraction model identifier.
func WithExtractionModel(model string) ConfigOption {
	return func(c *Config) {
		c.ExtractionModel = model
	}
}

// WithExtractionAttempts sets how often extraction is tried per request.
func WithExtractionAttempts(attempts int) ConfigOption {
	return func(c *Config) {
		c.ExtractionAttempts = attempts
	}
}

// WithCache enables the embedding cache.
func WithCache(size int, ttl time.Duration) ConfigOption {
	return func(c *Config) {
		c.CacheSize = size
		c.CacheTTL = ttl
	}
}

// WithSentenceChunks chunks documents into groups of n sentences instead of paragraphs.
func WithSentenceChunks(n int) ConfigOption {
	return func(c *Config) {
		c.SentencesPerChunk = n
	}
}

// DefaultConfig returns a Config for a local Ollama server with the given options applied.
func DefaultConfig(opts ...ConfigOption) *Config {
	defaultHost := "http://localhost:11434/v1"
	cfg := &Config{
		EmbeddingHost:      defaultHost,
		ExtractionHost:     defaultHost,
		EmbeddingModel:     "mxbai-embed-large",
		ExtractionModel:    "qwen2.5:7b",
		ExtractionAttempts: 3,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Chunker returns the chunking function selected by the config.
func (c *Config) Chunker() ChunkFunc {
	if c.SentencesPerChunk > 0 {
		return SentenceChunker(c.SentencesPerChunk)
	}
	return ParagraphChunker()
}

// Normalize adds the /v1 suffix OpenAI-compatible servers expect to both hosts.
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.ExtractionHost = normalizeHost(c.ExtractionHost)
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate normalizes the configuration and checks it is complete.
func (c *Config) Validate() error {
	c.Normalize()

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		messages := make([]string, 0, len(fieldErrors))
		for _, fe := range fieldErrors {
			messages = append(messages, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return model.NewKindError(model.ErrValidation, "validate pipeline config", errors.New(strings.Join(messages, "; ")))
	}
	return model.NewKindError(model.ErrValidation, "validate pipeline config", err)
}
