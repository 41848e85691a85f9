package database

import (
	"context"
	"fmt"
	"time"

	"github.com/scholarlab/paperdex/helper"
)

// embeddingIndexName is the vector index created by init_chunks in
// sql/chunks.sql. ChangeIndexType drops and recreates it under this name, so
// the two must stay in sync.
const embeddingIndexName = "idx_chunks_embedding"

// Default build parameters for the supported index types.
const (
	defaultHnswM              = 16
	defaultHnswEfConstruction = 64
	defaultIvfflatLists       = 100
)

// ChangeIndexType rebuilds the vector index over the chunks embedding column.
// indexType is "hnsw" (params "m", "ef_construction") or "ivfflat" (param
// "lists"); missing params use the defaults. The index type is validated
// before the existing index is dropped, and the rebuild is capped at 60s
// since it scales with the collection size.
func (h *ChunksDBHandler) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	createIndexSQL, err := createIndexStatement(indexType, params)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = h.db.Instance.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s;`, embeddingIndexName))
	if err != nil {
		return helper.NewError("drop index", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	h.db.Logger.Info(fmt.Sprintf("Rebuilt vector index as %s with params: %v", indexType, params))

	return nil
}

// createIndexStatement renders the CREATE INDEX statement for the index type,
// filling missing params with defaults.
func createIndexStatement(indexType string, params map[string]interface{}) (string, error) {
	switch indexType {
	case "hnsw":
		m := intParam(params, "m", defaultHnswM)
		efConstruction := intParam(params, "ef_construction", defaultHnswEfConstruction)
		return fmt.Sprintf(
			`CREATE INDEX %s ON chunks USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			embeddingIndexName, m, efConstruction,
		), nil
	case "ivfflat":
		lists := intParam(params, "lists", defaultIvfflatLists)
		return fmt.Sprintf(
			`CREATE INDEX %s ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			embeddingIndexName, lists,
		), nil
	default:
		return "", helper.NewError("change index type", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType))
	}
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	if value, ok := params[key].(int); ok {
		return value
	}
	return fallback
}
