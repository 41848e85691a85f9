package retrieval

import (
	"strings"
	"unicode"

	"github.com/scholarlab/paperdex/model"
)

// Field weights for keyword hits. A query token may score in several fields at
// once, so the maximum weight per token is the sum of all three.
const (
	titleWeight    = 3
	authorsWeight  = 2
	abstractWeight = 1
	maxTokenWeight = titleWeight + authorsWeight + abstractWeight
)

// Tokenize lowercases the input and extracts maximal runs of letters and
// digits as tokens. Punctuation and whitespace act as separators only.
func Tokenize(s string) []string {
	var tokens []string
	var current strings.Builder

	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(s) {
		set[tok] = struct{}{}
	}
	return set
}

// KeywordScore computes the weighted keyword-overlap score between query
// tokens and a document's structured fields: title hits weigh 3, authors 2,
// abstract 1, additive across fields. The accumulated weight is normalized by
// len(queryTokens) * 6 and clamped to [0,1]. Empty query tokens score 0.
func KeywordScore(queryTokens []string, doc *model.Document) float64 {
	if len(queryTokens) == 0 {
		return 0.0
	}

	title := tokenSet(doc.Title)
	authors := tokenSet(doc.Authors)
	abstract := tokenSet(doc.Abstract)

	total := 0
	for _, tok := range queryTokens {
		if _, ok := title[tok]; ok {
			total += titleWeight
		}
		if _, ok := authors[tok]; ok {
			total += authorsWeight
		}
		if _, ok := abstract[tok]; ok {
			total += abstractWeight
		}
	}

	score := float64(total) / float64(len(queryTokens)*maxTokenWeight)
	if score > 1.0 {
		score = 1.0
	}
	return score
}
