package paperdex

import (
	"context"
	"log/slog"
	"os"

	"github.com/scholarlab/paperdex/core/index"
	"github.com/scholarlab/paperdex/core/indexing"
	"github.com/scholarlab/paperdex/core/pipeline"
	"github.com/scholarlab/paperdex/core/retrieval"
	"github.com/scholarlab/paperdex/helper"
	"github.com/scholarlab/paperdex/model"
)

// Paperdex provides a unified interface to document indexing and hybrid
// retrieval over a PostgreSQL chunk collection.
type Paperdex struct {
	Config   model.RetrievalConfig
	Store    *index.Store
	Pipeline *pipeline.Pipeline
	Indexer  *indexing.Indexer
	Ranker   *retrieval.Ranker
	// Logging
	log *slog.Logger
}

// New creates a Paperdex instance with the default embedding model. The
// database connection and the model are acquired lazily on first use, so New
// never blocks on external setup; the database is configured from the
// environment (DB_HOST, DB_PORT, ...).
func New(config model.RetrievalConfig) (*Paperdex, error) {
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("validate configuration", err)
	}

	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	chunker := pipeline.OverlapChunker(config.ChunkTargetSize, config.ChunkOverlap, config.BoundaryLookback)

	// One shared embedder for indexing and queries, cached so repeated query
	// texts skip the model.
	embed := pipeline.LazyEmbedder(func() (pipeline.EmbedFunc, error) {
		inner, err := pipeline.DefaultEmbedder()
		if err != nil {
			return nil, helper.NewError("create default embedder", err)
		}
		return pipeline.CachedEmbedder(inner, pipeline.DefaultEmbeddingCacheSize), nil
	})

	store := index.NewStore(pipeline.DefaultEmbeddingDim, config.UpsertBatchSize, func() (pipeline.EmbedFunc, error) {
		return embed, nil
	}, logger)

	chunkPipeline := pipeline.NewPipeline(chunker, embed)

	return &Paperdex{
		Config:   config,
		Store:    store,
		Pipeline: chunkPipeline,
		Indexer:  indexing.NewIndexer(chunkPipeline, store, logger),
		Ranker:   retrieval.NewRanker(store, config.KeywordWeight, config.SemanticWeight, logger),
		log:      logger,
	}, nil
}

// NewWithBackend creates a Paperdex instance over an already initialized chunk
// store and embedder. Used by tests and by callers that manage their own
// database lifecycle.
func NewWithBackend(config model.RetrievalConfig, store *index.Store, embed pipeline.EmbedFunc, logger *slog.Logger) (*Paperdex, error) {
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("validate configuration", err)
	}

	chunker := pipeline.OverlapChunker(config.ChunkTargetSize, config.ChunkOverlap, config.BoundaryLookback)

	chunkPipeline := pipeline.NewPipeline(chunker, embed)

	return &Paperdex{
		Config:   config,
		Store:    store,
		Pipeline: chunkPipeline,
		Indexer:  indexing.NewIndexer(chunkPipeline, store, logger),
		Ranker:   retrieval.NewRanker(store, config.KeywordWeight, config.SemanticWeight, logger),
		log:      logger,
	}, nil
}

// IndexDocument chunks, embeds and stores a document's text, replacing any
// previously indexed chunks for the same document id. Returns the number of
// chunks stored; text with no indexable content removes the document from the
// index and returns 0.
func (p *Paperdex) IndexDocument(ctx context.Context, documentID int64, text string) (int, error) {
	return p.Indexer.AddOrReplace(ctx, documentID, text)
}

// RemoveDocument deletes every indexed chunk of a document. Removing a
// document that was never indexed is a no-op.
func (p *Paperdex) RemoveDocument(ctx context.Context, documentID int64) error {
	return p.Indexer.Remove(ctx, documentID)
}

// HasChunks reports whether the document has any indexed content. Backend
// failures report false.
func (p *Paperdex) HasChunks(ctx context.Context, documentID int64) bool {
	return p.Store.HasChunks(ctx, documentID)
}

// RetrieveForDocument returns the text of up to limit chunks of one document,
// ranked by similarity to the query. limit <= 0 uses the configured default.
// Index failures degrade to an empty result, never an error.
func (p *Paperdex) RetrieveForDocument(ctx context.Context, documentID int64, query string, limit int) []string {
	if limit <= 0 {
		limit = p.Config.TopKPerDocument
	}

	chunks, outcome := p.Store.Query(ctx, query, limit, model.DocumentEquals(documentID))
	if outcome.Degraded {
		return []string{}
	}

	contents := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		contents = append(contents, chunk.Content)
	}
	return contents
}

// RetrieveForDocuments returns relevant chunk texts per document for a set of
// documents, keyed by document id. Each document is queried within its own
// scope, so a document with many strong matches cannot crowd another out of
// the result. Documents without matching chunks get no entry. Index failures
// degrade to a missing entry, never an error. With the default cached
// embedder the per-document queries share one embedding computation.
func (p *Paperdex) RetrieveForDocuments(ctx context.Context, documentIDs []int64, query string, limitPerDocument int) map[int64][]string {
	if limitPerDocument <= 0 {
		limitPerDocument = p.Config.TopKPerDocument
	}

	results := make(map[int64][]string, len(documentIDs))
	for _, documentID := range documentIDs {
		chunks, outcome := p.Store.Query(ctx, query, limitPerDocument, model.DocumentEquals(documentID))
		if outcome.Degraded || len(chunks) == 0 {
			continue
		}

		contents := make([]string, 0, len(chunks))
		for _, chunk := range chunks {
			contents = append(contents, chunk.Content)
		}
		results[documentID] = contents
	}
	return results
}

// HybridRank scores the candidate documents against the query by combining
// keyword overlap and semantic chunk similarity, returning the included
// documents ordered by descending relevance. indexedScope lists the document
// ids with indexed chunks; candidates outside it are ranked on keywords alone.
func (p *Paperdex) HybridRank(ctx context.Context, query string, documents []*model.Document, indexedScope []int64) ([]model.RankedResult, model.QueryOutcome) {
	return p.Ranker.Rank(ctx, query, documents, indexedScope)
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat.
func (p *Paperdex) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return p.Store.ChangeIndexType(ctx, indexType, params)
}

// Close releases the database connection if one was opened.
func (p *Paperdex) Close() error {
	return p.Store.Close()
}
