package model

// RankedResult represents one document scored by the hybrid ranker.
type RankedResult struct {
	Document      *Document `json:"document"`
	Relevance     float64   `json:"relevance"`      // Combined score in [0,1]
	KeywordScore  float64   `json:"keyword_score"`  // Weighted field-overlap score
	SemanticScore float64   `json:"semantic_score"` // Max chunk similarity (1 - cosine distance)
}

// QueryOutcome reports whether a retrieval operation ran against a healthy
// backend or fell back to degraded results. Degraded outcomes carry empty or
// partial results rather than errors, so callers can still render something.
type QueryOutcome struct {
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// OkOutcome reports a fully served query.
func OkOutcome() QueryOutcome {
	return QueryOutcome{}
}

// DegradedOutcome reports a query served without backend results.
func DegradedOutcome(reason string) QueryOutcome {
	return QueryOutcome{Degraded: true, Reason: reason}
}
