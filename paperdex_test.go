package paperdex

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/scholarlab/paperdex/core/index"
	"github.com/scholarlab/paperdex/core/pipeline"
	"github.com/scholarlab/paperdex/helper"
	"github.com/scholarlab/paperdex/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEmbeddingDim = 8

// testEmbedder creates a simple deterministic embedder for testing
func testEmbedder(dimension int) pipeline.EmbedFunc {
	return func(text string) ([]float32, error) {
		embedding := make([]float32, dimension)
		for i := 0; i < dimension; i++ {
			embedding[i] = float32((len(text)+i)%100) / 100.0
		}
		return embedding, nil
	}
}

func initPaperdex(t *testing.T) *Paperdex {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)

	logger := helper.NewDefaultLogger(io.Discard)
	embed := testEmbedder(testEmbeddingDim)
	store := index.NewStore(testEmbeddingDim, 100, func() (pipeline.EmbedFunc, error) {
		return embed, nil
	}, logger)

	p, err := NewWithBackend(model.DefaultRetrievalConfig(), store, embed, logger)
	require.NoError(t, err, "failed to create paperdex instance")
	require.NotNil(t, p, "expected paperdex instance to be non-nil")

	t.Cleanup(func() {
		p.Close()
	})

	return p
}

func TestNew(t *testing.T) {
	t.Run("Valid call New", func(t *testing.T) {
		p, err := New(model.DefaultRetrievalConfig())
		require.NoError(t, err, "Expected New to not return an error")
		require.NotNil(t, p, "Expected New to return a non-nil instance")
		assert.NotNil(t, p.Store, "Expected paperdex to have a chunk store")
		assert.NotNil(t, p.Pipeline, "Expected paperdex to have a pipeline")
		assert.NotNil(t, p.Indexer, "Expected paperdex to have an indexer")
		assert.NotNil(t, p.Ranker, "Expected paperdex to have a ranker")

		// Nothing was initialized lazily yet, Close is a no-op
		err = p.Close()
		assert.NoError(t, err, "Expected Close to not return an error")
	})

	t.Run("Invalid configuration is rejected", func(t *testing.T) {
		config := model.DefaultRetrievalConfig()
		config.ChunkOverlap = config.ChunkTargetSize

		_, err := New(config)
		assert.Error(t, err, "Expected error for overlap not below target size")
	})

	t.Run("Invalid configuration is rejected with backend", func(t *testing.T) {
		config := model.DefaultRetrievalConfig()
		config.ChunkTargetSize = 0

		_, err := NewWithBackend(config, nil, testEmbedder(testEmbeddingDim), helper.NewDefaultLogger(io.Discard))
		assert.Error(t, err, "Expected error for zero chunk target size")
	})
}

func TestIndexDocument(t *testing.T) {
	p := initPaperdex(t)
	ctx := context.Background()

	t.Run("Index document with long text", func(t *testing.T) {
		text := strings.Repeat("The experiment used a held-out validation set. Accuracy rose with model size. ", 20)

		count, err := p.IndexDocument(ctx, 201, text)

		require.NoError(t, err, "Expected IndexDocument to not return an error")
		assert.Greater(t, count, 1, "Expected multiple chunks for long text")
		assert.True(t, p.HasChunks(ctx, 201), "Expected document to have indexed chunks")
	})

	t.Run("Re-index with shorter text shrinks the chunk set", func(t *testing.T) {
		long := strings.Repeat("The experiment used a held-out validation set. Accuracy rose with model size. ", 20)
		short := "Just one short paragraph."

		longCount, err := p.IndexDocument(ctx, 202, long)
		require.NoError(t, err)

		shortCount, err := p.IndexDocument(ctx, 202, short)
		require.NoError(t, err)

		assert.Less(t, shortCount, longCount, "Expected fewer chunks after shrinking")

		ids, err := p.Store.ExistingChunkIDs(ctx, 202)
		require.NoError(t, err)
		assert.Equal(t, shortCount, len(ids), "Expected stale chunks from the longer pass to be deleted")
	})

	t.Run("Empty text removes the document", func(t *testing.T) {
		_, err := p.IndexDocument(ctx, 203, "Some indexable content here.")
		require.NoError(t, err)
		require.True(t, p.HasChunks(ctx, 203))

		count, err := p.IndexDocument(ctx, 203, "   ")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.False(t, p.HasChunks(ctx, 203), "Expected chunks to be removed for empty text")
	})

	t.Run("Remove document", func(t *testing.T) {
		_, err := p.IndexDocument(ctx, 204, "Some indexable content here.")
		require.NoError(t, err)

		err = p.RemoveDocument(ctx, 204)
		require.NoError(t, err)
		assert.False(t, p.HasChunks(ctx, 204))
	})

	t.Run("Remove unknown document is a no-op", func(t *testing.T) {
		err := p.RemoveDocument(ctx, 999)
		assert.NoError(t, err)
	})
}

func TestRetrieveForDocument(t *testing.T) {
	p := initPaperdex(t)
	ctx := context.Background()

	text := strings.Repeat("Gradient descent converges under mild assumptions. The step size controls stability. ", 20)
	_, err := p.IndexDocument(ctx, 301, text)
	require.NoError(t, err)

	t.Run("Returns chunk contents up to the limit", func(t *testing.T) {
		contents := p.RetrieveForDocument(ctx, 301, "convergence of gradient descent", 3)

		assert.NotEmpty(t, contents, "Expected retrieval to return chunk contents")
		assert.LessOrEqual(t, len(contents), 3)
		for _, content := range contents {
			assert.NotEmpty(t, content)
		}
	})

	t.Run("Non-positive limit uses the configured default", func(t *testing.T) {
		contents := p.RetrieveForDocument(ctx, 301, "step size", 0)

		assert.NotEmpty(t, contents)
		assert.LessOrEqual(t, len(contents), p.Config.TopKPerDocument)
	})

	t.Run("Unknown document returns empty", func(t *testing.T) {
		contents := p.RetrieveForDocument(ctx, 999, "anything", 3)
		assert.Empty(t, contents)
	})
}

func TestRetrieveForDocuments(t *testing.T) {
	p := initPaperdex(t)
	ctx := context.Background()

	textA := strings.Repeat("Convolutional networks excel at vision tasks. Pooling reduces spatial size. ", 15)
	textB := strings.Repeat("Recurrent networks model sequences. Gating controls information flow. ", 15)
	_, err := p.IndexDocument(ctx, 401, textA)
	require.NoError(t, err)
	_, err = p.IndexDocument(ctx, 402, textB)
	require.NoError(t, err)

	t.Run("Returns chunks keyed by document id", func(t *testing.T) {
		results := p.RetrieveForDocuments(ctx, []int64{401, 402}, "network architectures", 2)

		assert.NotEmpty(t, results)
		for documentID, contents := range results {
			assert.Contains(t, []int64{401, 402}, documentID)
			assert.LessOrEqual(t, len(contents), 2, "Expected per-document limit to hold")
		}
	})

	t.Run("Empty document set returns empty map", func(t *testing.T) {
		results := p.RetrieveForDocuments(ctx, nil, "anything", 2)
		assert.Empty(t, results)
	})
}

// scriptedChunksHandler serves a fixed chunk set with exact similarity
// values, for retrieval tests that need full control over ranking.
type scriptedChunksHandler struct {
	chunks []*model.Chunk
}

func (h *scriptedChunksHandler) UpsertChunk(chunk *model.Chunk) error {
	for i, existing := range h.chunks {
		if existing.ChunkID == chunk.ChunkID {
			h.chunks[i] = chunk
			return nil
		}
	}
	h.chunks = append(h.chunks, chunk)
	return nil
}

func (h *scriptedChunksHandler) SelectChunk(chunkID string) (*model.Chunk, error) {
	for _, chunk := range h.chunks {
		if chunk.ChunkID == chunkID {
			return chunk, nil
		}
	}
	return nil, fmt.Errorf("chunk %s not found", chunkID)
}

func (h *scriptedChunksHandler) SelectChunksByDocument(documentID int64) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	for _, chunk := range h.chunks {
		if chunk.DocumentID == documentID {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

func (h *scriptedChunksHandler) SelectChunkIDsByDocument(documentID int64) ([]string, error) {
	var ids []string
	for _, chunk := range h.chunks {
		if chunk.DocumentID == documentID {
			ids = append(ids, chunk.ChunkID)
		}
	}
	return ids, nil
}

func (h *scriptedChunksHandler) SelectChunksBySimilarity(embedding []float32, limit int, documentIDs []int64) ([]*model.Chunk, error) {
	var results []*model.Chunk
	for _, chunk := range h.chunks {
		if len(documentIDs) > 0 {
			match := false
			for _, id := range documentIDs {
				if chunk.DocumentID == id {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		results = append(results, chunk)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (h *scriptedChunksHandler) DeleteChunksByDocument(documentID int64) (int, error) {
	var kept []*model.Chunk
	deleted := 0
	for _, chunk := range h.chunks {
		if chunk.DocumentID == documentID {
			deleted++
			continue
		}
		kept = append(kept, chunk)
	}
	h.chunks = kept
	return deleted, nil
}

func (h *scriptedChunksHandler) DeleteChunksByIDs(chunkIDs []string) (int, error) {
	ids := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		ids[id] = struct{}{}
	}
	var kept []*model.Chunk
	deleted := 0
	for _, chunk := range h.chunks {
		if _, ok := ids[chunk.ChunkID]; ok {
			deleted++
			continue
		}
		kept = append(kept, chunk)
	}
	h.chunks = kept
	return deleted, nil
}

func (h *scriptedChunksHandler) CountChunks() (int64, error) {
	return int64(len(h.chunks)), nil
}

func (h *scriptedChunksHandler) HasChunks(documentID int64) (bool, error) {
	for _, chunk := range h.chunks {
		if chunk.DocumentID == documentID {
			return true, nil
		}
	}
	return false, nil
}

func (h *scriptedChunksHandler) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return nil
}

func scriptedChunk(documentID int64, chunkIndex int, similarity float64) *model.Chunk {
	return &model.Chunk{
		ChunkID:    model.ChunkID(documentID, chunkIndex),
		DocumentID: documentID,
		ChunkIndex: chunkIndex,
		Content:    fmt.Sprintf("document %d chunk %d", documentID, chunkIndex),
		Similarity: similarity,
	}
}

func TestRetrieveForDocumentsPerDocumentLimit(t *testing.T) {
	ctx := context.Background()

	// Document 1 has many strong matches, document 2 only weaker ones.
	handler := &scriptedChunksHandler{chunks: []*model.Chunk{
		scriptedChunk(1, 0, 0.9),
		scriptedChunk(1, 1, 0.9),
		scriptedChunk(1, 2, 0.9),
		scriptedChunk(1, 3, 0.9),
		scriptedChunk(2, 0, 0.5),
		scriptedChunk(2, 1, 0.5),
	}}

	logger := helper.NewDefaultLogger(io.Discard)
	embed := testEmbedder(testEmbeddingDim)
	store := index.NewStoreWithBackend(handler, embed, 100, logger)

	p, err := NewWithBackend(model.DefaultRetrievalConfig(), store, embed, logger)
	require.NoError(t, err)

	t.Run("Every scoped document gets its own chunk budget", func(t *testing.T) {
		results := p.RetrieveForDocuments(ctx, []int64{1, 2}, "query", 2)

		require.Contains(t, results, int64(1), "Expected the dominant document to be represented")
		require.Contains(t, results, int64(2), "Expected the weaker document to be represented despite stronger matches elsewhere")
		assert.Equal(t, 2, len(results[1]), "Expected the per-document limit to hold")
		assert.Equal(t, 2, len(results[2]))
		for _, content := range results[2] {
			assert.Contains(t, content, "document 2")
		}
	})

	t.Run("Documents without chunks get no entry", func(t *testing.T) {
		results := p.RetrieveForDocuments(ctx, []int64{1, 3}, "query", 2)

		assert.Contains(t, results, int64(1))
		assert.NotContains(t, results, int64(3))
	})
}

func TestHybridRank(t *testing.T) {
	p := initPaperdex(t)
	ctx := context.Background()

	docs := []*model.Document{
		{ID: 501, Title: "Spectral Graph Theory", Abstract: "Eigenvalues of graph Laplacians."},
		{ID: 502, Title: "Bird Migration Patterns", Abstract: "Seasonal movement of birds."},
	}
	_, err := p.IndexDocument(ctx, 501, strings.Repeat("Graph Laplacians encode connectivity. Spectral methods partition graphs. ", 15))
	require.NoError(t, err)
	_, err = p.IndexDocument(ctx, 502, strings.Repeat("Birds navigate by the stars. Migration follows food availability. ", 15))
	require.NoError(t, err)

	t.Run("Keyword matches rank above unrelated documents", func(t *testing.T) {
		results, outcome := p.HybridRank(ctx, "spectral graph theory", docs, []int64{501, 502})

		assert.False(t, outcome.Degraded, "Expected a healthy backend")
		require.NotEmpty(t, results)
		assert.Equal(t, int64(501), results[0].Document.ID, "Expected the keyword-matching document to rank first")
		assert.Greater(t, results[0].KeywordScore, 0.0)

		for i := 0; i < len(results)-1; i++ {
			assert.GreaterOrEqual(t, results[i].Relevance, results[i+1].Relevance)
		}
	})

	t.Run("Query with no overlap may exclude documents", func(t *testing.T) {
		results, outcome := p.HybridRank(ctx, "zzzz qqqq", docs, nil)

		assert.False(t, outcome.Degraded)
		assert.Empty(t, results, "Expected no results without keyword or semantic signal")
	})
}

func TestDegradedBackend(t *testing.T) {
	p := initPaperdex(t)
	ctx := context.Background()

	// Point the lazily initialized store at a closed port
	t.Setenv("DB_PORT", "1")

	t.Run("Retrieval degrades to empty", func(t *testing.T) {
		contents := p.RetrieveForDocument(ctx, 1, "anything", 3)
		assert.Empty(t, contents)
	})

	t.Run("Hybrid ranking degrades to keyword scores", func(t *testing.T) {
		docs := []*model.Document{{ID: 1, Title: "Quantum Computing"}}

		results, outcome := p.HybridRank(ctx, "quantum", docs, []int64{1})

		assert.True(t, outcome.Degraded, "Expected a degraded outcome")
		require.Equal(t, 1, len(results), "Expected keyword-only ranking to still return results")
		assert.Equal(t, 0.0, results[0].SemanticScore)
		assert.Greater(t, results[0].KeywordScore, 0.0)
	})
}
