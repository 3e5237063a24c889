package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/siherrmann/graphrag"
	"github.com/siherrmann/graphrag/core/pipeline"
	"github.com/siherrmann/graphrag/database"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

const sampleContent1 = `Ada Lovelace worked with Charles Babbage on the Analytical Engine.

Babbage designed the Analytical Engine in London as a successor of the Difference Engine.
Lovelace wrote the first published algorithm intended for the machine.`

const sampleContent2 = `Charles Babbage was a member of the Royal Society.

The Analytical Engine was never completed during the lifetime of Babbage.
Ada King, Countess of Lovelace, translated an article about the engine by Luigi Menabrea.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "graphrag_test",
		Username: "graphrag",
		Password: "graphrag",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// Looser threshold and averaged edge weights
	graphConfig := model.DefaultGraphConfig()
	graphConfig.SimilarityThreshold = 0.85
	graphConfig.WeightMerge = model.WeightMergeAverage

	logger := helper.NewLogger(os.Stdout, slog.LevelDebug)
	g, err := graphrag.NewGraphRAGWithConfig(dbConfig, 1024, graphConfig, logger)
	if err != nil {
		log.Fatalf("Failed to create graphrag: %v", err)
	}
	defer g.Close()

	// Ollama serving an embedding model and a chat model
	config := pipeline.DefaultConfig(
		pipeline.WithHost("http://localhost:11434/v1"),
		pipeline.WithEmbeddingModel("mxbai-embed-large"),
		pipeline.WithExtractionModel("qwen2.5:7b"),
	)
	if err := g.UseDefaultPipeline(config); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	ctx := context.Background()

	fmt.Println("=== Ingesting Documents ===")
	for i, text := range []string{sampleContent1, sampleContent2} {
		docID, err := g.Ingest(ctx, &model.IngestRequest{
			Title:  fmt.Sprintf("Computing history %d", i+1),
			Source: "advanced_example",
			Text:   text,
			Weight: 0.6 + 0.2*float64(i),
		})
		if err != nil {
			if model.IsRetryable(err) {
				log.Fatalf("Ingestion failed, retry later: %v", err)
			}
			log.Fatalf("Ingestion failed: %v", err)
		}
		fmt.Printf("Document %d: %s\n", i+1, docID)
	}

	queryText := "Who designed the Analytical Engine?"

	fmt.Println("\n=== 1. Document Search ===")
	matches, err := g.SimilaritySearch(ctx, queryText, 0.3, 3)
	if err != nil {
		log.Fatalf("Document search failed: %v", err)
	}
	for _, match := range matches {
		fmt.Printf("%s %.4f mentions %v\n", match.DocumentID, match.Similarity, match.Mentions)
	}

	fmt.Println("\n=== 2. Paragraph Search ===")
	chunks, err := g.SearchChunks(ctx, queryText, 0.3, 3)
	if err != nil {
		log.Fatalf("Paragraph search failed: %v", err)
	}
	for _, match := range chunks {
		fmt.Printf("%.4f %q\n", match.Similarity, match.Chunk.Text)
	}

	fmt.Println("\n=== 3. Graph Expansion ===")
	if len(matches) > 0 {
		results, err := g.Expand(ctx, model.RecordRef{Table: model.TableDocument, ID: matches[0].DocumentID.String()}, 2, nil)
		if err != nil {
			log.Fatalf("Expansion failed: %v", err)
		}
		for _, result := range results {
			fmt.Printf("%d hops: %s via %s (%.2f)\n", result.Distance, result.Record, result.Relation, result.Weight)
		}
	}

	fmt.Println("\n=== 4. Possible Duplicates ===")
	pairs, err := g.FindDuplicates(ctx, 0.7, 20)
	if err != nil {
		log.Fatalf("Duplicate search failed: %v", err)
	}
	for _, pair := range pairs {
		fmt.Printf("%s ~ %s (%.4f)\n", pair.LeftLabel, pair.RightLabel, pair.Similarity)
	}

	fmt.Println("\n=== 5. Changing Index Type ===")
	err = g.ChangeIndexType(ctx, database.IndexEntities, "ivfflat", map[string]interface{}{
		"lists": 10,
	})
	if err != nil {
		log.Printf("Warning: Index change failed: %v", err)
	} else {
		fmt.Println("Successfully switched entities to IVFFlat index")
	}

	fmt.Println("\nAdvanced example completed successfully!")
}
