// Package ranker orders matching documents by summed term frequency.
package ranker

import "sort"

type ScoredDoc struct {
	DocID int64 `json:"doc_id"`
	Score int64 `json:"score"`
}

// Rank sorts docs by descending score in place, keeping the incoming order
// for equal scores, and returns at most limit of them. A non-positive limit
// returns every document.
func Rank(docs []ScoredDoc, limit int) []ScoredDoc {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Score > docs[j].Score
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}
