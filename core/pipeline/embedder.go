package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/knights-analytics/hugot"
	"github.com/scholarlab/paperdex/helper"
)

// DefaultEmbeddingDim is the output dimension of the default embedding model.
const DefaultEmbeddingDim = 384

// DefaultEmbeddingCacheSize is the default number of query embeddings kept in
// memory by CachedEmbedder. At 384 dimensions * 4 bytes * 1000 entries this is
// about 1.5MB.
const DefaultEmbeddingCacheSize = 1000

// EmbedFunc is a function that generates an embedding vector for text.
type EmbedFunc func(text string) ([]float32, error)

// DefaultEmbedder creates an embedder using a real sentence transformer model.
// Uses the all-MiniLM-L6-v2 model which produces 384-dimensional embeddings.
func DefaultEmbedder() (EmbedFunc, error) {
	// Prepare model (download if needed)
	modelName := "sentence-transformers/all-MiniLM-L6-v2"
	modelPath, err := helper.PrepareModel(modelName, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	// Initialize hugot session with Go backend
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	// Create sentence transformers pipeline configuration
	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return func(text string) ([]float32, error) {
		result, err := sentencePipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding: %w", err)
		}

		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("no embedding generated")
		}

		return result.Embeddings[0], nil
	}, nil
}

// LazyEmbedder defers building the inner embedder to the first call, so
// constructing a pipeline never blocks on model download. A failed factory
// call is retried on the next invocation.
func LazyEmbedder(factory func() (EmbedFunc, error)) EmbedFunc {
	var mu sync.Mutex
	var inner EmbedFunc

	return func(text string) ([]float32, error) {
		mu.Lock()
		if inner == nil {
			embed, err := factory()
			if err != nil {
				mu.Unlock()
				return nil, err
			}
			inner = embed
		}
		embed := inner
		mu.Unlock()

		return embed(text)
	}
}

// CachedEmbedder wraps an embedder with LRU caching so repeated queries skip
// the model entirely. Cache keys are content hashes, so arbitrary text length
// is fine.
func CachedEmbedder(inner EmbedFunc, cacheSize int) EmbedFunc {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)

	return func(text string) ([]float32, error) {
		hash := sha256.Sum256([]byte(text))
		key := hex.EncodeToString(hash[:])

		if vec, ok := cache.Get(key); ok {
			return vec, nil
		}

		vec, err := inner(text)
		if err != nil {
			return nil, err
		}

		cache.Add(key, vec)
		return vec, nil
	}
}
