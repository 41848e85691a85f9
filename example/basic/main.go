package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/scholarlab/paperdex"
	"github.com/scholarlab/paperdex/helper"
	"github.com/scholarlab/paperdex/model"
)

const paperText = `Vector similarity search retrieves text passages by comparing embeddings.

An embedding model maps each passage to a point in a high dimensional space.
Passages about similar topics end up close together, even when they share no words.

PostgreSQL with the pgvector extension stores embeddings next to the source text.
An HNSW index keeps nearest neighbor queries fast as the collection grows.

Combining embedding similarity with keyword overlap on titles and abstracts
gives a hybrid ranking that handles both exact-term and paraphrased queries.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Point the environment configuration at the container
	os.Setenv("DB_HOST", "localhost")
	os.Setenv("DB_PORT", dbPort)
	os.Setenv("DB_DATABASE", "database")
	os.Setenv("DB_USERNAME", "user")
	os.Setenv("DB_PASSWORD", "password")
	os.Setenv("DB_SCHEMA", "public")
	os.Setenv("DB_SSLMODE", "disable")

	p, err := paperdex.New(model.DefaultRetrievalConfig())
	if err != nil {
		log.Fatalf("Failed to create paperdex: %v", err)
	}
	defer p.Close()

	ctx := context.Background()

	// Index a paper's extracted text. The first call downloads the embedding
	// model, so it can take a while.
	fmt.Println("Indexing document...")
	numChunks, err := p.IndexDocument(ctx, 1, paperText)
	if err != nil {
		log.Fatalf("Failed to index document: %v", err)
	}
	fmt.Printf("Indexed %d chunks\n", numChunks)

	// Retrieve the most relevant chunks of the document for a question
	queryText := "How does hybrid ranking work?"
	fmt.Printf("\nQuerying: %s\n", queryText)

	contents := p.RetrieveForDocument(ctx, 1, queryText, 3)
	fmt.Printf("\nFound %d relevant chunks:\n", len(contents))
	for i, content := range contents {
		fmt.Printf("\n--- Chunk %d ---\n%s\n", i+1, content)
	}

	// Rank candidate papers against a search query
	docs := []*model.Document{
		{ID: 1, Title: "Hybrid Retrieval with pgvector", Abstract: "Combining keyword and embedding similarity."},
		{ID: 2, Title: "Bird Migration Patterns", Abstract: "Seasonal movement of birds."},
	}

	results, outcome := p.HybridRank(ctx, "embedding similarity search", docs, []int64{1})
	if outcome.Degraded {
		log.Printf("Ranking degraded: %s", outcome.Reason)
	}

	fmt.Printf("\nRanked %d papers:\n", len(results))
	for i, result := range results {
		fmt.Printf("%d. %s (relevance %.4f, keyword %.4f, semantic %.4f)\n",
			i+1, result.Document.Title, result.Relevance, result.KeywordScore, result.SemanticScore)
	}

	fmt.Println("\nBasic example completed successfully!")
}
