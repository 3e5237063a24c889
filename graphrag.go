package graphrag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/core/graph"
	"github.com/siherrmann/graphrag/core/ingestion"
	"github.com/siherrmann/graphrag/core/pipeline"
	"github.com/siherrmann/graphrag/core/resolver"
	"github.com/siherrmann/graphrag/core/retrieval"
	"github.com/siherrmann/graphrag/database"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	loadSql "github.com/siherrmann/graphrag/sql"
)

// GraphRAG provides a unified interface to ingestion and retrieval
// on top of all database handlers.
type GraphRAG struct {
	DB              *helper.Database
	Documents       *database.DocumentsDBHandler
	Chunks          *database.ChunksDBHandler
	Entities        *database.EntitiesDBHandler
	Disambiguations *database.DisambiguationsDBHandler
	Edges           *database.EdgesDBHandler
	Nodes           *database.NodesDBHandler
	Ingestion       *database.IngestionDBHandler

	Config    model.GraphConfig
	Pipeline  *pipeline.Pipeline // Set with SetPipeline
	Resolver  *resolver.Resolver
	Ingestor  *ingestion.Ingestor
	Retrieval *retrieval.Service

	closers []io.Closer
	log     *slog.Logger
}

// NewGraphRAG creates a new GraphRAG instance with the default graph configuration.
// embeddingDim must match the dimension of the embedder set later.
func NewGraphRAG(config *helper.DatabaseConfiguration, embeddingDim int) (*GraphRAG, error) {
	logger := helper.NewLogger(os.Stdout, slog.LevelInfo)
	return NewGraphRAGWithConfig(config, embeddingDim, model.DefaultGraphConfig(), logger)
}

// NewGraphRAGWithConfig creates a new GraphRAG instance with all handlers initialized.
func NewGraphRAGWithConfig(config *helper.DatabaseConfiguration, embeddingDim int, graphConfig model.GraphConfig, logger *slog.Logger) (*GraphRAG, error) {
	if embeddingDim <= 0 {
		return nil, model.NewKindError(model.ErrValidation, "new graphrag", fmt.Errorf("embedding dimension %d must be positive", embeddingDim))
	}
	if err := graphConfig.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = helper.NewLogger(os.Stdout, slog.LevelInfo)
	}

	db, err := helper.NewDatabase("graphrag", config, logger)
	if err != nil {
		return nil, helper.NewError("connect database", err)
	}

	err = loadSql.Init(db.Instance)
	if err != nil {
		db.Close()
		return nil, helper.NewError("initialize database extensions", err)
	}

	g := &GraphRAG{DB: db, Config: graphConfig, log: logger}
	err = g.initHandlers(embeddingDim)
	if err != nil {
		db.Close()
		return nil, err
	}

	return g, nil
}

// initHandlers creates all handlers in dependency order (documents before chunks).
// force=false to not reload if functions already exist.
func (g *GraphRAG) initHandlers(embeddingDim int) error {
	var err error

	g.Documents, err = database.NewDocumentsDBHandler(g.DB, embeddingDim, false)
	if err != nil {
		return helper.NewError("create documents handler", err)
	}

	g.Chunks, err = database.NewChunksDBHandler(g.DB, embeddingDim, false)
	if err != nil {
		return helper.NewError("create chunks handler", err)
	}

	g.Entities, err = database.NewEntitiesDBHandler(g.DB, embeddingDim, false)
	if err != nil {
		return helper.NewError("create entities handler", err)
	}

	g.Disambiguations, err = database.NewDisambiguationsDBHandler(g.DB, embeddingDim, false)
	if err != nil {
		return helper.NewError("create disambiguations handler", err)
	}

	g.Edges, err = database.NewEdgesDBHandler(g.DB, false)
	if err != nil {
		return helper.NewError("create edges handler", err)
	}

	g.Nodes = database.NewNodesDBHandler(g.Documents, g.Chunks, g.Entities, g.Edges)

	g.Ingestion, err = database.NewIngestionDBHandler(g.DB, g.Documents, g.Chunks, g.Disambiguations, g.Entities, g.Edges)
	if err != nil {
		return helper.NewError("create ingestion handler", err)
	}

	return nil
}

// Close releases the pipeline resources and closes the database connection
func (g *GraphRAG) Close() error {
	var firstErr error
	for _, c := range g.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.closers = nil

	if g.DB != nil {
		if err := g.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetPipeline sets the adapters used for ingestion and queries and wires
// the resolver, the ingestor and the query service on top of them.
func (g *GraphRAG) SetPipeline(p *pipeline.Pipeline) error {
	if p == nil {
		return model.NewKindError(model.ErrValidation, "set pipeline", fmt.Errorf("pipeline is nil"))
	}

	// Disambiguation records only exist in the disambiguation scheme.
	var candidates resolver.CandidateStore = g.Entities
	var writer resolver.DisambiguationWriter
	if g.Config.IdentityScheme == model.IdentitySchemeDisambiguation {
		candidates = g.Disambiguations
		writer = g.Disambiguations
	}

	res, err := resolver.NewResolver(candidates, writer, p.Embedder, g.Config, g.log)
	if err != nil {
		return helper.NewError("create resolver", err)
	}

	ingestor, err := ingestion.NewIngestor(p, res, g.Ingestion, g.log)
	if err != nil {
		return helper.NewError("create ingestor", err)
	}

	service, err := retrieval.NewService(g.Nodes, g.Nodes, p.Embedder, g.Config, g.log)
	if err != nil {
		return helper.NewError("create retrieval service", err)
	}

	g.Pipeline = p
	g.Resolver = res
	g.Ingestor = ingestor
	g.Retrieval = service

	return nil
}

// UseDefaultPipeline sets up chunking as selected by config with an OpenAI compatible
// embedding model and chat model for extraction, e.g. served by Ollama.
// Embeddings are cached when the config enables the cache.
func (g *GraphRAG) UseDefaultPipeline(config *pipeline.Config) error {
	if config == nil {
		config = pipeline.DefaultConfig()
	}

	embedder, err := pipeline.NewOpenAIEmbedder(config, g.log)
	if err != nil {
		return helper.NewError("create embedder", err)
	}

	extractor, err := pipeline.NewLLMExtractor(config, g.log)
	if err != nil {
		return helper.NewError("create extractor", err)
	}

	cached := pipeline.NewCachedEmbedder(embedder, config.CacheSize, config.CacheTTL)
	return g.SetPipeline(pipeline.NewPipeline(config.Chunker(), cached, extractor))
}

// LocalExtractor selects the ONNX model used by UseLocalPipeline.
type LocalExtractor string

const (
	// LocalExtractorRebel extracts entities and relations with REBEL.
	LocalExtractorRebel LocalExtractor = "rebel"
	// LocalExtractorNER extracts entities only, so documents just gain mention edges.
	LocalExtractorNER LocalExtractor = "ner"
)

// UseLocalPipeline sets up a pipeline running fully in process with ONNX
// models: all-MiniLM-L6-v2 embeddings (384 dimensions) and the chosen
// extractor. Models are downloaded to helper.ModelDir on first use.
func (g *GraphRAG) UseLocalPipeline(kind LocalExtractor) error {
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	var extractor interface {
		pipeline.Extractor
		io.Closer
	}
	switch kind {
	case LocalExtractorRebel, "":
		extractor, err = pipeline.NewRebelExtractor()
	case LocalExtractorNER:
		extractor, err = pipeline.NewNERExtractor()
	default:
		err = model.NewKindError(model.ErrValidation, "use local pipeline", fmt.Errorf("unknown extractor %q", kind))
	}
	if err != nil {
		embedder.Close()
		return helper.NewError("create local extractor", err)
	}

	err = g.SetPipeline(pipeline.NewPipeline(pipeline.ParagraphChunker(), embedder, extractor))
	if err != nil {
		embedder.Close()
		extractor.Close()
		return err
	}

	g.closers = append(g.closers, embedder, extractor)
	return nil
}

func (g *GraphRAG) requirePipeline(operation string) error {
	if g.Pipeline == nil {
		return model.NewKindError(model.ErrValidation, operation, fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	return nil
}

// Ingest extracts the graph of request and stores it with the document in
// one transaction. It returns the id of the new document.
func (g *GraphRAG) Ingest(ctx context.Context, request *model.IngestRequest) (uuid.UUID, error) {
	if err := g.requirePipeline("ingest"); err != nil {
		return uuid.Nil, err
	}
	return g.Ingestor.Ingest(ctx, request)
}

// IngestFile ingests the content of a file, titled by its name.
func (g *GraphRAG) IngestFile(ctx context.Context, filePath string, weight float64, metadata model.Metadata) (uuid.UUID, error) {
	request, err := model.NewIngestRequestFromFile(filePath, weight, metadata)
	if err != nil {
		return uuid.Nil, model.NewKindError(model.ErrValidation, "read file", err)
	}
	return g.Ingest(ctx, request)
}

// GetNode returns a stored record with its neighbors, weakest edge first.
func (g *GraphRAG) GetNode(ctx context.Context, ref model.RecordRef) (*model.NodeView, error) {
	if err := g.requirePipeline("get node"); err != nil {
		return nil, err
	}
	return g.Retrieval.GetNode(ctx, ref)
}

// SimilaritySearch returns documents similar to text with their mention sets.
func (g *GraphRAG) SimilaritySearch(ctx context.Context, text string, minimumSimilarity float64, limit int) ([]*model.DocumentMatch, error) {
	if err := g.requirePipeline("similarity search"); err != nil {
		return nil, err
	}
	return g.Retrieval.SimilaritySearch(ctx, text, minimumSimilarity, limit)
}

// SearchChunks returns paragraphs similar to text.
func (g *GraphRAG) SearchChunks(ctx context.Context, text string, minimumSimilarity float64, limit int) ([]*model.ChunkMatch, error) {
	if err := g.requirePipeline("search chunks"); err != nil {
		return nil, err
	}
	return g.Retrieval.SearchChunks(ctx, text, minimumSimilarity, limit)
}

// Expand performs breadth-first search from a record up to maxHops edges away.
func (g *GraphRAG) Expand(ctx context.Context, ref model.RecordRef, maxHops int, relations []string) ([]*graph.TraversalResult, error) {
	if err := g.requirePipeline("expand"); err != nil {
		return nil, err
	}
	return g.Retrieval.Expand(ctx, ref, maxHops, relations)
}

// ExpandDepthFirst performs depth-first search from a record up to maxHops edges away.
func (g *GraphRAG) ExpandDepthFirst(ctx context.Context, ref model.RecordRef, maxHops int, relations []string) ([]*graph.TraversalResult, error) {
	if err := g.requirePipeline("expand depth first"); err != nil {
		return nil, err
	}
	return g.Retrieval.ExpandDepthFirst(ctx, ref, maxHops, relations)
}

// FindDuplicates reports canonical entities that are probably the same concept.
// It needs the disambiguation identity scheme.
func (g *GraphRAG) FindDuplicates(ctx context.Context, threshold float64, limit int) ([]*model.DuplicatePair, error) {
	if err := g.requirePipeline("find duplicates"); err != nil {
		return nil, err
	}
	return g.Resolver.FindDuplicates(ctx, threshold, limit)
}

// ChangeIndexType changes the vector index of target between HNSW and IVFFlat
func (g *GraphRAG) ChangeIndexType(ctx context.Context, target database.IndexTarget, indexType string, params map[string]interface{}) error {
	return database.ChangeIndexType(ctx, g.DB, target, indexType, params)
}
