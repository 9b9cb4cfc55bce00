package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/store/document"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/store/index"
)

// DefaultMaxResults caps the number of ranked documents returned per query.
const DefaultMaxResults = 10

// PostingSource is the read side of the inverted index.
type PostingSource interface {
	PostingsFor(term string) index.PostingList
}

// DocumentResolver maps document ids back to their path and owner.
type DocumentResolver interface {
	Lookup(id int64) (document.Document, bool)
}

// Hit is one ranked document attributed to the session that first
// registered it.
type Hit struct {
	SessionID int64  `json:"session_id"`
	DocID     int64  `json:"doc_id"`
	Path      string `json:"path"`
	Frequency int64  `json:"frequency"`
}

type SearchResult struct {
	Query     string         `json:"query"`
	Terms     []string       `json:"terms"`
	TotalHits int            `json:"total_hits"`
	Results   []Hit          `json:"results"`
	TermStats map[string]int `json:"term_stats"`
	Elapsed   time.Duration  `json:"elapsed"`
}

type Executor struct {
	postings   PostingSource
	docs       DocumentResolver
	maxResults int
	logger     *slog.Logger
}

func New(postings PostingSource, docs DocumentResolver, maxResults int) *Executor {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Executor{
		postings:   postings,
		docs:       docs,
		maxResults: maxResults,
		logger:     slog.Default().With("component", "query-executor"),
	}
}

// MaxResults returns the cap applied to every query.
func (e *Executor) MaxResults() int {
	return e.maxResults
}

type candidate struct {
	docID   int64
	score   int64
	matched int
}

// Execute evaluates plan as a strict AND over its distinct terms. A
// document's score is the sum of the frequencies of every posting of every
// query term that references it, so a term repeated in the query counts its
// frequencies once per occurrence. Results are ranked by score and cut to
// limit, which falls back to the executor maximum when out of range.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	start := time.Now()
	result := &SearchResult{
		Query:     plan.RawQuery,
		Terms:     plan.Terms,
		Results:   []Hit{},
		TermStats: make(map[string]int),
	}
	if plan.Empty() {
		result.Elapsed = time.Since(start)
		return result, nil
	}
	if limit <= 0 || limit > e.maxResults {
		limit = e.maxResults
	}

	terms, weights := distinct(plan.Terms)
	candidates := make(map[int64]*candidate)
	order := make([]*candidate, 0)

	for i, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		postings := e.postings.PostingsFor(term)
		result.TermStats[term] = len(postings)
		if len(postings) == 0 {
			// one unknown term empties the intersection
			order = order[:0]
			break
		}
		for _, p := range postings {
			c, ok := candidates[p.DocID]
			if !ok {
				if i > 0 {
					continue
				}
				c = &candidate{docID: p.DocID}
				candidates[p.DocID] = c
				order = append(order, c)
			}
			if c.matched < i {
				continue
			}
			c.matched = i + 1
			c.score += p.Frequency * weights[i]
		}
	}

	scored := make([]ranker.ScoredDoc, 0, len(order))
	for _, c := range order {
		if c.matched == len(terms) {
			scored = append(scored, ranker.ScoredDoc{DocID: c.docID, Score: c.score})
		}
	}
	result.TotalHits = len(scored)

	for _, sd := range ranker.Rank(scored, limit) {
		doc, ok := e.docs.Lookup(sd.DocID)
		if !ok {
			e.logger.Warn("posting references unknown document", "doc_id", sd.DocID)
			continue
		}
		result.Results = append(result.Results, Hit{
			SessionID: doc.OwnerID,
			DocID:     doc.ID,
			Path:      doc.Path,
			Frequency: sd.Score,
		})
	}
	result.Elapsed = time.Since(start)

	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"candidates", result.TotalHits,
		"results", len(result.Results),
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// distinct returns the unique terms in first-seen order together with how
// many times each occurs.
func distinct(terms []string) ([]string, []int64) {
	seen := make(map[string]int, len(terms))
	out := make([]string, 0, len(terms))
	weights := make([]int64, 0, len(terms))
	for _, t := range terms {
		if i, ok := seen[t]; ok {
			weights[i]++
			continue
		}
		seen[t] = len(out)
		out = append(out, t)
		weights = append(weights, 1)
	}
	return out, weights
}
