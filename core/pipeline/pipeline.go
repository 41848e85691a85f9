package pipeline

import (
	"context"

	"github.com/scholarlab/paperdex/model"
	"golang.org/x/sync/errgroup"
)

// embedConcurrency bounds how many chunk embeddings are computed in parallel
// during one indexing pass.
const embedConcurrency = 4

// Pipeline combines chunking and embedding functions
type Pipeline struct {
	Chunker  ChunkFunc
	Embedder EmbedFunc
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
	}
}

// Process splits a document's text into chunks and embeds each one.
// Chunk identifiers follow "{document_id}_chunk_{chunk_index}" and results are
// ordered by chunk index. Empty or whitespace-only text yields no chunks.
func (p *Pipeline) Process(ctx context.Context, documentID int64, text string) ([]*model.Chunk, error) {
	chunksWithIndex, err := p.Chunker(text)
	if err != nil {
		return nil, err
	}
	if len(chunksWithIndex) == 0 {
		return []*model.Chunk{}, nil
	}

	chunks := make([]*model.Chunk, len(chunksWithIndex))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, cwi := range chunksWithIndex {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			embedding, err := p.Embedder(cwi.Content)
			if err != nil {
				return err
			}

			chunks[i] = &model.Chunk{
				ChunkID:    model.ChunkID(documentID, cwi.ChunkIndex),
				DocumentID: documentID,
				ChunkIndex: cwi.ChunkIndex,
				Content:    cwi.Content,
				Embedding:  embedding,
				Metadata: model.Metadata{
					"document_id": documentID,
					"chunk_index": cwi.ChunkIndex,
				},
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return chunks, nil
}
