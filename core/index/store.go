package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scholarlab/paperdex/core/pipeline"
	"github.com/scholarlab/paperdex/database"
	"github.com/scholarlab/paperdex/helper"
	"github.com/scholarlab/paperdex/model"
	loadSql "github.com/scholarlab/paperdex/sql"
)

// Store is the embedding index: a single shared chunk collection with an
// attached embedding function, queryable by cosine similarity and filterable
// by document id.
//
// The database handle and the embedding model are acquired on first use, not
// at construction, so building a Store never blocks on external setup. The
// guarded init runs at most once per Store; concurrent first callers are safe.
type Store struct {
	log             *slog.Logger
	embeddingDim    int
	upsertBatchSize int
	embedderFactory func() (pipeline.EmbedFunc, error)

	mu     sync.Mutex
	db     *helper.Database
	chunks database.ChunksDBHandlerFunctions
	embed  pipeline.EmbedFunc
}

// NewStore creates a store that connects to PostgreSQL using the environment
// configuration and builds its embedder from embedderFactory, both lazily on
// first use.
func NewStore(embeddingDim int, upsertBatchSize int, embedderFactory func() (pipeline.EmbedFunc, error), logger *slog.Logger) *Store {
	return &Store{
		log:             logger,
		embeddingDim:    embeddingDim,
		upsertBatchSize: upsertBatchSize,
		embedderFactory: embedderFactory,
	}
}

// NewStoreWithBackend creates a store over an already initialized chunk
// handler and embedder. Used by tests and by embedders that manage their own
// database lifecycle.
func NewStoreWithBackend(chunks database.ChunksDBHandlerFunctions, embed pipeline.EmbedFunc, upsertBatchSize int, logger *slog.Logger) *Store {
	return &Store{
		log:             logger,
		upsertBatchSize: upsertBatchSize,
		chunks:          chunks,
		embed:           embed,
	}
}

// ensureInit acquires the database handle and embedding function if this is
// the first use. Failed initialization is retried on the next call rather
// than latched, so the store recovers once external setup completes.
func (s *Store) ensureInit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chunks != nil && s.embed != nil {
		return nil
	}

	if s.chunks == nil {
		config, err := helper.NewDatabaseConfiguration()
		if err != nil {
			return helper.NewError("load database configuration", err)
		}

		db, err := helper.NewDatabase("paperdex", config, s.log)
		if err != nil {
			return helper.NewError("connect to chunk store", err)
		}

		if err := loadSql.Init(db.Instance); err != nil {
			db.Instance.Close()
			return helper.NewError("initialize database extensions", err)
		}

		handler, err := database.NewChunksDBHandler(db, s.embeddingDim, false)
		if err != nil {
			db.Instance.Close()
			return helper.NewError("create chunks handler", err)
		}

		s.db = db
		s.chunks = handler

		if count, err := handler.CountChunks(); err == nil {
			s.log.Info("Chunk collection ready", slog.Int64("stored_chunks", count))
		}
	}

	if s.embed == nil {
		embed, err := s.embedderFactory()
		if err != nil {
			return helper.NewError("create embedder", err)
		}
		s.embed = embed
	}

	return nil
}

// Upsert inserts or overwrites chunk records by chunk id, in batches of the
// configured size so a single call never exceeds backend statement limits.
func (s *Store) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureInit(ctx); err != nil {
		return err
	}

	batchSize := s.upsertBatchSize
	if batchSize <= 0 {
		batchSize = model.DefaultRetrievalConfig().UpsertBatchSize
	}

	for batchStart := 0; batchStart < len(chunks); batchStart += batchSize {
		batchEnd := batchStart + batchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		for _, chunk := range chunks[batchStart:batchEnd] {
			if err := s.chunks.UpsertChunk(chunk); err != nil {
				return helper.NewError(fmt.Sprintf("upsert chunk %s", chunk.ChunkID), err)
			}
		}
	}

	return nil
}

// Query embeds the query text and returns up to k chunks ranked by descending
// cosine similarity among records matching the filter. k is clamped to the
// number of records currently stored; requesting more than exists is tolerated.
// Backend failures degrade to an empty result, never an error.
func (s *Store) Query(ctx context.Context, queryText string, k int, filter model.DocumentFilter) ([]*model.Chunk, model.QueryOutcome) {
	if err := s.ensureInit(ctx); err != nil {
		s.log.Warn("Chunk store unavailable, returning no results", slog.String("reason", err.Error()))
		return nil, model.DegradedOutcome(err.Error())
	}

	// An explicitly empty scope can match nothing.
	if filter.Kind == model.FilterSet && len(filter.IDs) == 0 {
		return nil, model.OkOutcome()
	}

	count, err := s.chunks.CountChunks()
	if err != nil {
		s.log.Warn("Chunk count failed, returning no results", slog.String("reason", err.Error()))
		return nil, model.DegradedOutcome(err.Error())
	}
	if count == 0 {
		return nil, model.OkOutcome()
	}
	if int64(k) > count {
		k = int(count)
	}
	if k <= 0 {
		return nil, model.OkOutcome()
	}

	embedding, err := s.embed(queryText)
	if err != nil {
		s.log.Warn("Query embedding failed, returning no results", slog.String("reason", err.Error()))
		return nil, model.DegradedOutcome(err.Error())
	}

	var documentIDs []int64
	if filter.Kind != model.FilterNone {
		documentIDs = filter.IDList()
	}

	results, err := s.chunks.SelectChunksBySimilarity(embedding, k, documentIDs)
	if err != nil {
		s.log.Warn("Similarity query failed, returning no results", slog.String("reason", err.Error()))
		return nil, model.DegradedOutcome(err.Error())
	}

	return results, model.OkOutcome()
}

// ExistingChunkIDs returns the chunk identifiers currently stored for a
// document, ordered by chunk index.
func (s *Store) ExistingChunkIDs(ctx context.Context, documentID int64) ([]string, error) {
	if err := s.ensureInit(ctx); err != nil {
		return nil, err
	}
	return s.chunks.SelectChunkIDsByDocument(documentID)
}

// Delete removes every record belonging to the document. Deleting a document
// with no indexed records is a no-op.
func (s *Store) Delete(ctx context.Context, documentID int64) (int, error) {
	if err := s.ensureInit(ctx); err != nil {
		return 0, err
	}
	return s.chunks.DeleteChunksByDocument(documentID)
}

// DeleteIDs removes the given chunk identifiers.
func (s *Store) DeleteIDs(ctx context.Context, chunkIDs []string) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}
	if err := s.ensureInit(ctx); err != nil {
		return 0, err
	}
	return s.chunks.DeleteChunksByIDs(chunkIDs)
}

// Count returns the number of chunks stored across all documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if err := s.ensureInit(ctx); err != nil {
		return 0, err
	}
	return s.chunks.CountChunks()
}

// HasChunks reports whether the document has any indexed content.
// Backend failures report false.
func (s *Store) HasChunks(ctx context.Context, documentID int64) bool {
	if err := s.ensureInit(ctx); err != nil {
		return false
	}
	has, err := s.chunks.HasChunks(documentID)
	if err != nil {
		return false
	}
	return has
}

// ChangeIndexType switches the vector index between HNSW and IVFFlat.
func (s *Store) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	if err := s.ensureInit(ctx); err != nil {
		return err
	}
	return s.chunks.ChangeIndexType(ctx, indexType, params)
}

// Reset drops the initialized backend so the next operation re-initializes.
// Intended for test isolation.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		s.db.Instance.Close()
		s.db = nil
	}
	s.chunks = nil
	if s.embedderFactory != nil {
		s.embed = nil
	}
}

// Close releases the database handle if the store opened one.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil && s.db.Instance != nil {
		err := s.db.Instance.Close()
		s.db = nil
		s.chunks = nil
		return err
	}
	return nil
}
