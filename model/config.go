package model

import "fmt"

// RetrievalConfig holds the tuning knobs for chunking and hybrid ranking.
//
// Effects:
//   - ChunkTargetSize: larger means fewer, coarser chunks and a cheaper but
//     blunter index.
//   - ChunkOverlap: larger means more redundancy across chunk boundaries,
//     higher recall at higher storage cost.
//   - BoundaryLookback: how far back from the budgeted cut point the chunker
//     searches for a sentence boundary.
//   - KeywordWeight/SemanticWeight: should sum to 1.0; shifting toward keyword
//     favors exact-term matches, toward semantic favors paraphrase matches.
type RetrievalConfig struct {
	ChunkTargetSize  int     `json:"chunk_target_size"`
	ChunkOverlap     int     `json:"chunk_overlap"`
	BoundaryLookback int     `json:"boundary_lookback"`
	KeywordWeight    float64 `json:"keyword_weight"`
	SemanticWeight   float64 `json:"semantic_weight"`
	// UpsertBatchSize bounds how many chunk records are written per statement.
	UpsertBatchSize int `json:"upsert_batch_size"`
	// TopKPerDocument is the default number of chunks returned per document.
	TopKPerDocument int `json:"top_k_per_document"`
}

// DefaultRetrievalConfig returns the default tuning: 500 char chunks with
// 50 char overlap, 100 char boundary lookback, a 0.4/0.6 keyword/semantic
// split, and 5 chunks per document.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		ChunkTargetSize:  500,
		ChunkOverlap:     50,
		BoundaryLookback: 100,
		KeywordWeight:    0.4,
		SemanticWeight:   0.6,
		UpsertBatchSize:  100,
		TopKPerDocument:  5,
	}
}

// Validate checks the configuration for values that would break chunking
// or ranking invariants.
func (c RetrievalConfig) Validate() error {
	if c.ChunkTargetSize <= 0 {
		return fmt.Errorf("chunk target size must be positive, got %d", c.ChunkTargetSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkTargetSize {
		return fmt.Errorf("chunk overlap must be in [0, target size), got %d", c.ChunkOverlap)
	}
	if c.BoundaryLookback < 0 {
		return fmt.Errorf("boundary lookback must not be negative, got %d", c.BoundaryLookback)
	}
	if c.KeywordWeight < 0 || c.SemanticWeight < 0 {
		return fmt.Errorf("score weights must not be negative")
	}
	if c.UpsertBatchSize <= 0 {
		return fmt.Errorf("upsert batch size must be positive, got %d", c.UpsertBatchSize)
	}
	return nil
}

// FilterKind discriminates the supported document filters.
type FilterKind int

const (
	// FilterNone matches every chunk in the collection.
	FilterNone FilterKind = iota
	// FilterExact matches chunks of a single document.
	FilterExact
	// FilterSet matches chunks of any document in a set.
	FilterSet
)

// DocumentFilter is a typed filter on the chunk collection's document_id
// attribute, so the index contract stays backend-agnostic.
type DocumentFilter struct {
	Kind FilterKind         `json:"kind"`
	ID   int64              `json:"id,omitempty"`
	IDs  map[int64]struct{} `json:"ids,omitempty"`
}

// AllDocuments matches every indexed chunk.
func AllDocuments() DocumentFilter {
	return DocumentFilter{Kind: FilterNone}
}

// DocumentEquals matches chunks belonging to exactly one document.
func DocumentEquals(id int64) DocumentFilter {
	return DocumentFilter{Kind: FilterExact, ID: id}
}

// DocumentIn matches chunks belonging to any of the given documents.
func DocumentIn(ids []int64) DocumentFilter {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return DocumentFilter{Kind: FilterSet, IDs: set}
}

// IDList returns the filter's document ids as a slice, for set filters.
func (f DocumentFilter) IDList() []int64 {
	if f.Kind == FilterExact {
		return []int64{f.ID}
	}
	ids := make([]int64, 0, len(f.IDs))
	for id := range f.IDs {
		ids = append(ids, id)
	}
	return ids
}
