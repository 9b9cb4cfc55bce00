// Package index provides the server's shared inverted index. Terms are striped
// over a fixed number of shards by hash so operations on different terms do
// not contend on a global lock.
package index

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const DefaultShards = 64

type shard struct {
	mu    sync.RWMutex
	terms map[string]*postingList
}

// InvertedIndex maps terms to insertion-ordered posting lists. Postings are
// never removed.
type InvertedIndex struct {
	shards   []*shard
	version  atomic.Uint64
	postings atomic.Int64
	logger   *slog.Logger
}

// New creates an index striped over numShards shards. Non-positive values
// fall back to DefaultShards.
func New(numShards int) *InvertedIndex {
	if numShards <= 0 {
		numShards = DefaultShards
	}
	idx := &InvertedIndex{
		shards: make([]*shard, numShards),
		logger: slog.Default().With("component", "inverted-index"),
	}
	for i := range idx.shards {
		idx.shards[i] = &shard{terms: make(map[string]*postingList)}
	}
	idx.logger.Debug("inverted index created", "shards", numShards)
	return idx
}

func (idx *InvertedIndex) shardFor(term string) *shard {
	return idx.shards[xxhash.Sum64String(term)%uint64(len(idx.shards))]
}

// list returns the posting list for term, creating it if absent.
func (idx *InvertedIndex) list(term string) *postingList {
	sh := idx.shardFor(term)

	sh.mu.RLock()
	pl, ok := sh.terms[term]
	sh.mu.RUnlock()
	if ok {
		return pl
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if pl, ok := sh.terms[term]; ok {
		return pl
	}
	pl = newPostingList()
	sh.terms[term] = pl
	return pl
}

// AddPosting appends one posting to term's list.
func (idx *InvertedIndex) AddPosting(term string, sessionID, docID, freq int64) {
	idx.list(term).add(Posting{SessionID: sessionID, DocID: docID, Frequency: freq})
	idx.postings.Add(1)
	idx.version.Add(1)
}

// AddPostings appends one posting per term of freqs for the given document
// and returns how many were appended. Empty terms and non-positive counts
// are ignored; terms are lower-cased before insertion.
func (idx *InvertedIndex) AddPostings(sessionID, docID int64, freqs Frequencies) int {
	added := 0
	for term, freq := range freqs {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || freq <= 0 {
			continue
		}
		idx.AddPosting(term, sessionID, docID, freq)
		added++
	}
	return added
}

// PostingsFor returns a snapshot of term's postings, or nil when the term is
// unknown. The returned slice must not be modified.
func (idx *InvertedIndex) PostingsFor(term string) PostingList {
	sh := idx.shardFor(term)
	sh.mu.RLock()
	pl, ok := sh.terms[term]
	sh.mu.RUnlock()
	if !ok {
		return nil
	}
	return pl.snapshot()
}

// Version increases with every mutation.
func (idx *InvertedIndex) Version() uint64 {
	return idx.version.Load()
}

func (idx *InvertedIndex) Stats() Stats {
	terms := 0
	for _, sh := range idx.shards {
		sh.mu.RLock()
		terms += len(sh.terms)
		sh.mu.RUnlock()
	}
	return Stats{
		Terms:    terms,
		Postings: idx.postings.Load(),
		Shards:   len(idx.shards),
	}
}
