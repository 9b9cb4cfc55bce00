// Package proto defines the message types exchanged between indexing clients
// and the retrieval server over the JSON-over-TCP RPC layer (see pkg/rpc).
//
// Method names follow the "Service.Method" convention and are listed as
// constants below so both sides agree on them.
package proto

const (
	MethodRegister   = "FileRetrieval.Register"
	MethodIndex      = "FileRetrieval.ComputeIndex"
	MethodSearch     = "FileRetrieval.ComputeSearch"
	MethodDeregister = "FileRetrieval.Deregister"
	MethodShutdown   = "FileRetrieval.Shutdown"
)

// ---------- Sessions ----------

// RegisterRequest opens a session. Address is informational only.
type RegisterRequest struct {
	Address string `json:"address,omitempty"`
}

// RegisterResponse carries the newly issued session id.
type RegisterResponse struct {
	ClientID int64 `json:"client_id"`
}

// DeregisterRequest closes a session.
type DeregisterRequest struct {
	ClientID int64 `json:"client_id"`
}

// Ack is the empty acknowledgement reply.
type Ack struct {
	Message string `json:"message,omitempty"`
}

// ShutdownRequest asks the server to tear down.
type ShutdownRequest struct {
	Reason string `json:"reason"`
}

// ---------- Index ----------

// IndexRequest submits the term frequencies of one document.
type IndexRequest struct {
	ClientID        int64            `json:"client_id" validate:"required,min=1"`
	DocumentPath    string           `json:"document_path" validate:"required,max=4096"`
	WordFrequencies map[string]int64 `json:"word_frequencies"`
}

// IndexResponse acknowledges a submission. IndexedTerms is the number of
// distinct terms turned into postings.
type IndexResponse struct {
	Message      string `json:"message"`
	IndexedTerms int    `json:"indexed_terms"`
}

// ---------- Search ----------

// SearchRequest is a conjunctive query over already-split terms.
type SearchRequest struct {
	Terms []string `json:"terms"`
	Limit int      `json:"limit,omitempty" validate:"min=0"`
}

// SearchResponse is the ranked, truncated result list. TotalResults counts
// every matching document before truncation.
type SearchResponse struct {
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
	TimeTaken    float64        `json:"time_taken"`
}

// SearchResult is one matching document attributed to its owning session.
type SearchResult struct {
	ClientID     int64  `json:"client_id"`
	DocumentPath string `json:"document_path"`
	Frequency    int64  `json:"frequency"`
}

// ---------- Introspection ----------

// SessionInfo describes one active session for operators.
type SessionInfo struct {
	ClientID    int64  `json:"client_id"`
	Address     string `json:"address,omitempty"`
	ConnectedAt int64  `json:"connected_at"`
}
