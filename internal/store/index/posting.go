package index

import (
	"sync"
	"sync/atomic"
)

// Posting records how often a term occurred in one document as submitted by
// one session.
type Posting struct {
	SessionID int64
	DocID     int64
	Frequency int64
}

type PostingList []Posting

// Frequencies maps a term to its occurrence count within one document.
type Frequencies map[string]int64

// Stats summarises the index for operators.
type Stats struct {
	Terms    int
	Postings int64
	Shards   int
}

// postingList is an append-only sequence. Writers serialise on mu and publish
// a new slice header; readers load the header without locking and only ever
// see fully written elements.
type postingList struct {
	mu       sync.Mutex
	postings atomic.Pointer[PostingList]
}

func newPostingList() *postingList {
	pl := &postingList{}
	empty := make(PostingList, 0, 4)
	pl.postings.Store(&empty)
	return pl
}

func (pl *postingList) add(p Posting) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	next := append(*pl.postings.Load(), p)
	pl.postings.Store(&next)
}

func (pl *postingList) snapshot() PostingList {
	s := *pl.postings.Load()
	return s[:len(s):len(s)]
}
