package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankOrdersByScoreDescending(t *testing.T) {
	docs := []ScoredDoc{{1, 3}, {2, 9}, {3, 5}}
	assert.Equal(t, []ScoredDoc{{2, 9}, {3, 5}, {1, 3}}, Rank(docs, 10))
}

func TestRankKeepsInsertionOrderOnTies(t *testing.T) {
	docs := []ScoredDoc{{4, 2}, {1, 7}, {9, 2}, {2, 2}}
	assert.Equal(t, []ScoredDoc{{1, 7}, {4, 2}, {9, 2}, {2, 2}}, Rank(docs, 0))
}

func TestRankTruncates(t *testing.T) {
	docs := make([]ScoredDoc, 15)
	for i := range docs {
		docs[i] = ScoredDoc{DocID: int64(i + 1), Score: int64(i + 1)}
	}
	top := Rank(docs, 10)
	assert.Len(t, top, 10)
	assert.Equal(t, int64(15), top[0].Score)
	assert.Equal(t, int64(6), top[9].Score)
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, Rank(nil, 10))
}
