package indexing

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/scholarlab/paperdex/core/pipeline"
	"github.com/scholarlab/paperdex/helper"
	"github.com/scholarlab/paperdex/model"
)

// ChunkStore is the slice of the embedding index the indexer mutates.
type ChunkStore interface {
	Upsert(ctx context.Context, chunks []*model.Chunk) error
	ExistingChunkIDs(ctx context.Context, documentID int64) ([]string, error)
	Delete(ctx context.Context, documentID int64) (int, error)
	DeleteIDs(ctx context.Context, chunkIDs []string) (int, error)
}

// Indexer orchestrates add/replace/delete of a document's chunks so that after
// a successful pass the stored chunk set for the document is exactly the set
// produced by that pass, with no leftovers from an earlier, longer pass.
//
// Concurrent passes for the same document id are not coordinated and may
// interleave; callers that re-index the same document from multiple goroutines
// get no ordering guarantee.
type Indexer struct {
	pipeline *pipeline.Pipeline
	store    ChunkStore
	log      *slog.Logger
}

// NewIndexer creates an indexer over the given pipeline and chunk store.
func NewIndexer(p *pipeline.Pipeline, store ChunkStore, logger *slog.Logger) *Indexer {
	return &Indexer{
		pipeline: p,
		store:    store,
		log:      logger,
	}
}

// AddOrReplace chunks and embeds a document's text and replaces its indexed
// chunk set. Safe to call repeatedly for the same document (e.g. re-upload):
// positions present in both passes are overwritten by upsert, positions beyond
// the new chunk count are deleted. Text with no extractable content removes
// all entries and returns 0.
func (i *Indexer) AddOrReplace(ctx context.Context, documentID int64, text string) (int, error) {
	passID := uuid.New()

	chunks, err := i.pipeline.Process(ctx, documentID, text)
	if err != nil {
		return 0, helper.NewError("process document", err)
	}

	if len(chunks) == 0 {
		deleted, err := i.store.Delete(ctx, documentID)
		if err != nil {
			return 0, helper.NewError("delete document chunks", err)
		}
		i.log.Info("Document has no indexable text",
			slog.Int64("document_id", documentID),
			slog.Int("deleted_chunks", deleted),
			slog.String("pass_id", passID.String()))
		return 0, nil
	}

	newIDs := make(map[string]struct{}, len(chunks))
	for _, chunk := range chunks {
		newIDs[chunk.ChunkID] = struct{}{}
	}

	existing, err := i.store.ExistingChunkIDs(ctx, documentID)
	if err != nil {
		return 0, helper.NewError("fetch existing chunk ids", err)
	}

	// Delete only the stale excess beyond the new chunk count; overlapping
	// positions are overwritten by the upsert below.
	var stale []string
	for _, id := range existing {
		if _, ok := newIDs[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if _, err := i.store.DeleteIDs(ctx, stale); err != nil {
			return 0, helper.NewError("delete stale chunks", err)
		}
	}

	if err := i.store.Upsert(ctx, chunks); err != nil {
		return 0, helper.NewError("upsert chunks", err)
	}

	i.log.Info("Indexed document",
		slog.Int64("document_id", documentID),
		slog.Int("chunks", len(chunks)),
		slog.Int("stale_deleted", len(stale)),
		slog.String("pass_id", passID.String()))

	return len(chunks), nil
}

// Remove deletes every indexed chunk of a document. Removing a document with
// no indexed chunks is a no-op.
func (i *Indexer) Remove(ctx context.Context, documentID int64) error {
	deleted, err := i.store.Delete(ctx, documentID)
	if err != nil {
		return helper.NewError("delete document chunks", err)
	}
	if deleted > 0 {
		i.log.Info("Removed document from index",
			slog.Int64("document_id", documentID),
			slog.Int("deleted_chunks", deleted))
	}
	return nil
}
