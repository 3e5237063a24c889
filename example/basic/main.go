package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/graphrag"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

const sampleContent = `Alice works at Acme. She joined Acme in Berlin after leaving Globex.

Bob manages the Berlin office of Acme and reports to Alice.

Globex is a competitor of Acme and is based in Munich.`

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

	g, err := graphrag.NewGraphRAG(dbConfig, 384)
	if err != nil {
		log.Fatalf("Failed to create graphrag: %v", err)
	}
	defer g.Close()

	// Local ONNX models, no server required
	if err := g.UseLocalPipeline(graphrag.LocalExtractorRebel); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	ctx := context.Background()

	fmt.Println("Ingesting document...")
	docID, err := g.Ingest(ctx, &model.IngestRequest{
		Title:  "Acme staff",
		Source: "basic_example",
		Text:   sampleContent,
		Weight: 0.8,
		Metadata: model.Metadata{
			"topic": "companies",
		},
	})
	if err != nil {
		log.Fatalf("Failed to ingest document: %v", err)
	}
	fmt.Printf("Document inserted with ID: %s\n", docID)

	queryText := "Who works at Acme?"
	fmt.Printf("\nQuerying: %s\n", queryText)

	matches, err := g.SimilaritySearch(ctx, queryText, 0.0, 5)
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}

	fmt.Printf("\nFound %d documents:\n", len(matches))
	for i, match := range matches {
		fmt.Printf("\n--- Result %d ---\n", i+1)
		fmt.Printf("Document: %s\n", match.DocumentID)
		fmt.Printf("Similarity: %.4f\n", match.Similarity)
		fmt.Printf("Mentions: %v\n", match.Mentions)
	}

	// Look at the neighborhood of the first mentioned entity
	if len(matches) > 0 && len(matches[0].Mentions) > 0 {
		node, err := g.GetNode(ctx, matches[0].Mentions[0])
		if err != nil {
			log.Fatalf("Failed to get node: %v", err)
		}

		fmt.Printf("\nNode %s: %s\n", node.Record, node.Content)
		for _, neighbor := range node.Neighbors {
			fmt.Printf("  %-12s %-30s weight %.2f\n", neighbor.RelationType, neighbor.Record, neighbor.Weight)
		}
	}

	fmt.Println("\nBasic example completed successfully!")
}
