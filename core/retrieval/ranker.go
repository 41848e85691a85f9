package retrieval

import (
	"context"
	"log/slog"
	"sort"

	"github.com/scholarlab/paperdex/model"
)

// minRelevance is the inclusion floor for documents without any keyword hit.
// Near-zero semantic noise alone does not surface a document.
const minRelevance = 0.01

// semanticProbeDepth is how many chunks per scoped document the batched
// similarity query requests; the per-document score is the maximum over them.
const semanticProbeDepth = 5

// SemanticSearcher is the slice of the embedding index the ranker reads.
type SemanticSearcher interface {
	Query(ctx context.Context, queryText string, k int, filter model.DocumentFilter) ([]*model.Chunk, model.QueryOutcome)
}

// Ranker fuses keyword and semantic relevance into a single ranked list.
type Ranker struct {
	searcher       SemanticSearcher
	keywordWeight  float64
	semanticWeight float64
	log            *slog.Logger
}

// NewRanker creates a ranker over the given semantic searcher. The weights
// should sum to 1.0 so the combined score stays in [0,1].
func NewRanker(searcher SemanticSearcher, keywordWeight float64, semanticWeight float64, logger *slog.Logger) *Ranker {
	return &Ranker{
		searcher:       searcher,
		keywordWeight:  keywordWeight,
		semanticWeight: semanticWeight,
		log:            logger,
	}
}

// Rank scores every candidate document against the query and returns the
// included ones ordered by descending relevance. Documents with equal
// relevance keep the relative order supplied by the caller.
//
// indexedScope lists the document ids that have indexed chunks; the semantic
// signal comes from one batched similarity query filtered to that scope.
// If the semantic query degrades, ranking proceeds on keyword scores alone
// and the returned outcome reports the degradation.
func (r *Ranker) Rank(ctx context.Context, query string, documents []*model.Document, indexedScope []int64) ([]model.RankedResult, model.QueryOutcome) {
	queryTokens := Tokenize(query)

	semantic, outcome := r.semanticScores(ctx, query, indexedScope)

	results := make([]model.RankedResult, 0, len(documents))
	for _, doc := range documents {
		keywordScore := KeywordScore(queryTokens, doc)
		semanticScore := semantic[doc.ID]

		relevance := r.keywordWeight*keywordScore + r.semanticWeight*semanticScore
		if relevance <= minRelevance && keywordScore <= 0 {
			continue
		}

		results = append(results, model.RankedResult{
			Document:      doc,
			Relevance:     relevance,
			KeywordScore:  keywordScore,
			SemanticScore: semanticScore,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})

	return results, outcome
}

// semanticScores runs the batched similarity query and reduces it to a
// per-document maximum similarity, floored at 0. Documents outside the scope
// or without returned chunks score 0.
func (r *Ranker) semanticScores(ctx context.Context, query string, indexedScope []int64) (map[int64]float64, model.QueryOutcome) {
	scores := make(map[int64]float64, len(indexedScope))
	if r.searcher == nil || len(indexedScope) == 0 {
		return scores, model.OkOutcome()
	}

	k := len(indexedScope) * semanticProbeDepth
	chunks, outcome := r.searcher.Query(ctx, query, k, model.DocumentIn(indexedScope))
	if outcome.Degraded {
		r.log.Warn("Semantic query degraded, ranking on keyword scores only",
			slog.String("reason", outcome.Reason))
		return scores, outcome
	}

	for _, chunk := range chunks {
		similarity := chunk.Similarity
		if similarity < 0 {
			similarity = 0
		}
		if similarity > scores[chunk.DocumentID] {
			scores[chunk.DocumentID] = similarity
		}
	}

	return scores, outcome
}
