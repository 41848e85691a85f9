package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/scholarlab/paperdex/helper"
	"github.com/scholarlab/paperdex/model"
	loadSql "github.com/scholarlab/paperdex/sql"
)

// ChunksDBHandlerFunctions defines the interface for chunk database operations.
type ChunksDBHandlerFunctions interface {
	UpsertChunk(chunk *model.Chunk) error
	SelectChunk(chunkID string) (*model.Chunk, error)
	SelectChunksByDocument(documentID int64) ([]*model.Chunk, error)
	SelectChunkIDsByDocument(documentID int64) ([]string, error)
	SelectChunksBySimilarity(embedding []float32, limit int, documentIDs []int64) ([]*model.Chunk, error)
	DeleteChunksByDocument(documentID int64) (int, error)
	DeleteChunksByIDs(chunkIDs []string) (int, error)
	CountChunks() (int64, error)
	HasChunks(documentID int64) (bool, error)
	ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler.
// It loads chunk-related SQL functions and creates the chunks table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table with its indexes.
// If the table already exists, it does not create it again.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("initialize chunks table", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// UpsertChunk inserts a chunk or overwrites the existing row with the same chunk_id.
func (h *ChunksDBHandler) UpsertChunk(chunk *model.Chunk) error {
	embeddingVector := pgvector.NewVector(chunk.Embedding)
	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_chunk($1, $2, $3, $4, $5, $6)`,
		chunk.ChunkID,
		chunk.DocumentID,
		chunk.ChunkIndex,
		chunk.Content,
		embeddingVector,
		chunk.Metadata,
	)

	var storedEmbedding pgvector.Vector
	err := row.Scan(
		&chunk.ChunkID,
		&chunk.DocumentID,
		&chunk.ChunkIndex,
		&chunk.Content,
		&storedEmbedding,
		&chunk.Metadata,
		&chunk.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}
	chunk.Embedding = storedEmbedding.Slice()

	return nil
}

// SelectChunk retrieves a chunk by its identifier.
func (h *ChunksDBHandler) SelectChunk(chunkID string) (*model.Chunk, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_chunk($1)`,
		chunkID,
	)

	chunk := &model.Chunk{}
	var embedding pgvector.Vector
	err := row.Scan(
		&chunk.ChunkID,
		&chunk.DocumentID,
		&chunk.ChunkIndex,
		&chunk.Content,
		&embedding,
		&chunk.Metadata,
		&chunk.CreatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}
	chunk.Embedding = embedding.Slice()

	return chunk, nil
}

// SelectChunksByDocument retrieves all chunks for a document ordered by chunk index.
func (h *ChunksDBHandler) SelectChunksByDocument(documentID int64) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_document($1)`,
		documentID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		var embedding pgvector.Vector
		err := rows.Scan(
			&chunk.ChunkID,
			&chunk.DocumentID,
			&chunk.ChunkIndex,
			&chunk.Content,
			&embedding,
			&chunk.Metadata,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunk.Embedding = embedding.Slice()

		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunkIDsByDocument retrieves the chunk identifier set currently stored
// for a document, ordered by chunk index.
func (h *ChunksDBHandler) SelectChunkIDsByDocument(documentID int64) ([]string, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunk_ids_by_document($1)`,
		documentID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, helper.NewError("scan", err)
		}
		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return ids, nil
}

// SelectChunksBySimilarity performs vector similarity search under cosine distance.
// If documentIDs is nil or empty, searches across all documents.
func (h *ChunksDBHandler) SelectChunksBySimilarity(embedding []float32, limit int, documentIDs []int64) ([]*model.Chunk, error) {
	embeddingVector := pgvector.NewVector(embedding)

	var documentIDsParam interface{}
	if len(documentIDs) > 0 {
		documentIDsParam = pq.Array(documentIDs)
	} else {
		documentIDsParam = nil
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3)`,
		embeddingVector,
		limit,
		documentIDsParam,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := rows.Scan(
			&chunk.ChunkID,
			&chunk.DocumentID,
			&chunk.ChunkIndex,
			&chunk.Content,
			&chunk.Metadata,
			&chunk.CreatedAt,
			&chunk.Similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// DeleteChunksByDocument deletes every chunk of a document.
// Deleting a document with no chunks is a no-op and returns 0.
func (h *ChunksDBHandler) DeleteChunksByDocument(documentID int64) (int, error) {
	var deleted int
	err := h.db.Instance.QueryRow(
		`SELECT delete_chunks_by_document($1)`,
		documentID,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("exec", err)
	}
	return deleted, nil
}

// DeleteChunksByIDs deletes the given chunk identifiers.
func (h *ChunksDBHandler) DeleteChunksByIDs(chunkIDs []string) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}

	var deleted int
	err := h.db.Instance.QueryRow(
		`SELECT delete_chunks_by_ids($1)`,
		pq.Array(chunkIDs),
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("exec", err)
	}
	return deleted, nil
}

// CountChunks returns the number of chunks currently stored in the collection.
func (h *ChunksDBHandler) CountChunks() (int64, error) {
	var count int64
	err := h.db.Instance.QueryRow(`SELECT count_chunks()`).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

// HasChunks reports whether any chunk is stored for the document.
func (h *ChunksDBHandler) HasChunks(documentID int64) (bool, error) {
	var has bool
	err := h.db.Instance.QueryRow(
		`SELECT has_chunks($1)`,
		documentID,
	).Scan(&has)
	if err != nil {
		return false, helper.NewError("scan", err)
	}
	return has, nil
}
