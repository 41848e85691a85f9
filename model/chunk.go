package model

import (
	"fmt"
	"time"
)

// Chunk represents one indexed segment of a document's text.
// Its identity follows the convention "{document_id}_chunk_{chunk_index}",
// which external tooling may rely on for inspection.
type Chunk struct {
	ChunkID    string    `json:"chunk_id"`
	DocumentID int64     `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Metadata   Metadata  `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	// Results
	Similarity float64 `json:"similarity,omitempty"`
}

// ChunkID builds the canonical chunk identifier for a document position.
func ChunkID(documentID int64, chunkIndex int) string {
	return fmt.Sprintf("%d_chunk_%d", documentID, chunkIndex)
}

// ChunkIDsFor returns the full identifier set for a document indexed into n chunks,
// ordered by chunk index.
func ChunkIDsFor(documentID int64, n int) []string {
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = ChunkID(documentID, i)
	}
	return ids
}
