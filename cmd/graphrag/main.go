package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/siherrmann/graphrag"
	"github.com/siherrmann/graphrag/core/pipeline"
	"github.com/siherrmann/graphrag/database"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	"github.com/urfave/cli/v2"
)

var logger = slog.Default()

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "graphrag",
		Usage: "Entity resolving knowledge graph on PostgreSQL",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"GRAPHRAG_LOG_LEVEL"},
			},
			&cli.IntFlag{
				Name:    "embedding-dim",
				Usage:   "Dimension of the embedding vectors",
				Value:   1024,
				EnvVars: []string{"GRAPHRAG_EMBEDDING_DIM"},
			},
			&cli.StringFlag{
				Name:    "pipeline",
				Usage:   "Pipeline to use: llm (OpenAI compatible server) or local (ONNX models)",
				Value:   "llm",
				EnvVars: []string{"GRAPHRAG_PIPELINE"},
			},
			&cli.StringFlag{
				Name:    "local-extractor",
				Usage:   "Extractor of the local pipeline: rebel (entities and relations) or ner (entities only)",
				Value:   string(graphrag.LocalExtractorRebel),
				EnvVars: []string{"GRAPHRAG_LOCAL_EXTRACTOR"},
			},
			&cli.StringFlag{
				Name:    "host",
				Usage:   "OpenAI compatible server for embeddings and extraction",
				Value:   "http://localhost:11434/v1",
				EnvVars: []string{"GRAPHRAG_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				Value:   "mxbai-embed-large",
				EnvVars: []string{"GRAPHRAG_EMBEDDING_MODEL"},
			},
			&cli.StringFlag{
				Name:    "extraction-model",
				Usage:   "Chat model name for graph extraction",
				Value:   "qwen2.5:7b",
				EnvVars: []string{"GRAPHRAG_EXTRACTION_MODEL"},
			},
			&cli.IntFlag{
				Name:    "extraction-attempts",
				Usage:   "Attempts per extraction when the model returns malformed JSON",
				Value:   3,
				EnvVars: []string{"GRAPHRAG_EXTRACTION_ATTEMPTS"},
			},
			&cli.IntFlag{
				Name:    "cache-size",
				Usage:   "Number of cached embeddings, 0 disables the cache",
				Value:   1000,
				EnvVars: []string{"GRAPHRAG_CACHE_SIZE"},
			},
			&cli.DurationFlag{
				Name:    "cache-ttl",
				Usage:   "Lifetime of cached embeddings",
				Value:   10 * time.Minute,
				EnvVars: []string{"GRAPHRAG_CACHE_TTL"},
			},
			&cli.IntFlag{
				Name:    "sentences-per-chunk",
				Usage:   "Chunk documents into groups of this many sentences, 0 for paragraphs",
				EnvVars: []string{"GRAPHRAG_SENTENCES_PER_CHUNK"},
			},
			&cli.Float64Flag{
				Name:    "threshold",
				Usage:   "Minimum similarity for two labels to denote the same entity",
				Value:   0.9,
				EnvVars: []string{"GRAPHRAG_SIMILARITY_THRESHOLD"},
			},
			&cli.StringFlag{
				Name:    "identity-scheme",
				Usage:   "Where entity identities are looked up: disambiguation or entity",
				Value:   string(model.IdentitySchemeDisambiguation),
				EnvVars: []string{"GRAPHRAG_IDENTITY_SCHEME"},
			},
			&cli.StringFlag{
				Name:    "weight-merge",
				Usage:   "How repeated edge weights combine: max, replace, average or sum",
				Value:   string(model.WeightMergeMax),
				EnvVars: []string{"GRAPHRAG_WEIGHT_MERGE"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest text files, one document per file",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  "weight",
						Usage: "Weight of every edge written for the files, in [0,1]",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of files ingested concurrently",
						Value: 4,
					},
					&cli.StringSliceFlag{
						Name:  "metadata",
						Usage: "Metadata attached to every document as key=value",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Find documents or paragraphs similar to a text",
				ArgsUsage: "TEXT",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  "min-similarity",
						Usage: "Minimum cosine similarity in [0,1]",
						Value: 0.5,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results, 0 for the default",
					},
					&cli.BoolFlag{
						Name:  "chunks",
						Usage: "Search paragraphs instead of documents",
					},
				},
			},
			{
				Name:      "node",
				Usage:     "Show a record with its neighbors",
				ArgsUsage: "TABLE:ID",
				Action:    nodeCommand,
			},
			{
				Name:      "expand",
				Usage:     "Walk the graph from a record",
				ArgsUsage: "TABLE:ID",
				Action:    expandCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "hops",
						Usage: "Maximum number of edges from the start record",
						Value: 2,
					},
					&cli.StringSliceFlag{
						Name:  "relation",
						Usage: "Only follow edges of this relation type",
					},
					&cli.BoolFlag{
						Name:  "depth-first",
						Usage: "Walk depth first instead of breadth first",
					},
				},
			},
			{
				Name:   "duplicates",
				Usage:  "Report canonical entities that probably denote the same concept",
				Action: duplicatesCommand,
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity of a reported pair",
						Value: 0.8,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of pairs",
						Value: 100,
					},
				},
			},
			{
				Name:   "index",
				Usage:  "Rebuild a vector index as hnsw or ivfflat",
				Action: indexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "target",
						Usage:    "documents, chunks, entities or disambiguations",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "hnsw or ivfflat",
						Value: "hnsw",
					},
					&cli.IntFlag{
						Name:  "lists",
						Usage: "Number of ivfflat lists",
						Value: 100,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.String("log-level"))
	}

	logger = helper.NewLogger(os.Stderr, level)
	slog.SetDefault(logger)

	return nil
}

// open connects to the database configured by the environment and sets up the pipeline.
func open(c *cli.Context) (*graphrag.GraphRAG, error) {
	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return nil, fmt.Errorf("failed to load database configuration: %w", err)
	}

	graphConfig := model.DefaultGraphConfig()
	graphConfig.SimilarityThreshold = c.Float64("threshold")
	graphConfig.IdentityScheme = model.IdentityScheme(c.String("identity-scheme"))
	graphConfig.WeightMerge = model.WeightMerge(c.String("weight-merge"))

	embeddingDim := c.Int("embedding-dim")
	usePipeline := func(g *graphrag.GraphRAG) error {
		config := pipeline.DefaultConfig(
			pipeline.WithHost(c.String("host")),
			pipeline.WithEmbeddingModel(c.String("embedding-model")),
			pipeline.WithExtractionModel(c.String("extraction-model")),
			pipeline.WithExtractionAttempts(c.Int("extraction-attempts")),
			pipeline.WithCache(c.Int("cache-size"), c.Duration("cache-ttl")),
			pipeline.WithSentenceChunks(c.Int("sentences-per-chunk")),
		)
		return g.UseDefaultPipeline(config)
	}

	switch c.String("pipeline") {
	case "llm":
	case "local":
		embeddingDim = pipeline.DefaultEmbeddingDimension
		usePipeline = func(g *graphrag.GraphRAG) error {
			return g.UseLocalPipeline(graphrag.LocalExtractor(c.String("local-extractor")))
		}
	default:
		return nil, fmt.Errorf("unknown pipeline %q: must be llm or local", c.String("pipeline"))
	}

	g, err := graphrag.NewGraphRAGWithConfig(dbConfig, embeddingDim, graphConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create graphrag: %w", err)
	}

	if err := usePipeline(g); err != nil {
		g.Close()
		return nil, fmt.Errorf("failed to set up pipeline: %w", err)
	}

	return g, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

type ingestResult struct {
	File       string    `json:"file"`
	DocumentID uuid.UUID `json:"document_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Retryable  bool      `json:"retryable,omitempty"`
}

func ingestCommand(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("at least one file is required")
	}

	metadata, err := parseMetadata(c.StringSlice("metadata"))
	if err != nil {
		return err
	}

	workers := c.Int("workers")
	if workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}

	g, err := open(c)
	if err != nil {
		return err
	}
	defer g.Close()

	ctx, cancel := signalContext()
	defer cancel()

	pool, err := ants.NewPool(workers)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]ingestResult, len(files))
	var wg sync.WaitGroup
	for i, file := range files {
		i, file := i, file
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()

			results[i].File = file
			id, err := g.IngestFile(ctx, file, c.Float64("weight"), metadata)
			if err != nil {
				logger.Error("Failed to ingest file", "file", file, "error", err)
				results[i].Error = err.Error()
				results[i].Retryable = model.IsRetryable(err)
				return
			}
			results[i].DocumentID = id
		})
		if err != nil {
			wg.Done()
			results[i] = ingestResult{File: file, Error: err.Error()}
		}
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}

	if err := printJSON(results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func parseMetadata(pairs []string) (model.Metadata, error) {
	metadata := model.Metadata{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected key=value", pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}

func searchCommand(c *cli.Context) error {
	text := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("search text is required")
	}

	g, err := open(c)
	if err != nil {
		return err
	}
	defer g.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if c.Bool("chunks") {
		matches, err := g.SearchChunks(ctx, text, c.Float64("min-similarity"), c.Int("limit"))
		if err != nil {
			return err
		}
		return printJSON(matches)
	}

	matches, err := g.SimilaritySearch(ctx, text, c.Float64("min-similarity"), c.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(matches)
}

func parseRef(c *cli.Context) (model.RecordRef, error) {
	if c.NArg() != 1 {
		return model.RecordRef{}, fmt.Errorf("expected one record reference like entity:acme")
	}
	return model.ParseRecordRef(c.Args().First())
}

func nodeCommand(c *cli.Context) error {
	ref, err := parseRef(c)
	if err != nil {
		return err
	}

	g, err := open(c)
	if err != nil {
		return err
	}
	defer g.Close()

	ctx, cancel := signalContext()
	defer cancel()

	node, err := g.GetNode(ctx, ref)
	if err != nil {
		return err
	}
	return printJSON(node)
}

func expandCommand(c *cli.Context) error {
	ref, err := parseRef(c)
	if err != nil {
		return err
	}

	g, err := open(c)
	if err != nil {
		return err
	}
	defer g.Close()

	ctx, cancel := signalContext()
	defer cancel()

	expand := g.Expand
	if c.Bool("depth-first") {
		expand = g.ExpandDepthFirst
	}

	results, err := expand(ctx, ref, c.Int("hops"), c.StringSlice("relation"))
	if err != nil {
		return err
	}
	return printJSON(results)
}

func duplicatesCommand(c *cli.Context) error {
	g, err := open(c)
	if err != nil {
		return err
	}
	defer g.Close()

	ctx, cancel := signalContext()
	defer cancel()

	pairs, err := g.FindDuplicates(ctx, c.Float64("threshold"), c.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(pairs)
}

func indexCommand(c *cli.Context) error {
	g, err := open(c)
	if err != nil {
		return err
	}
	defer g.Close()

	ctx, cancel := signalContext()
	defer cancel()

	params := map[string]interface{}{"lists": c.Int("lists")}
	return g.ChangeIndexType(ctx, database.IndexTarget(c.String("target")), c.String("type"), params)
}
