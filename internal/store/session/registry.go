// Package session tracks the clients currently connected to the server.
package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Session is one registered client.
type Session struct {
	ID          int64
	Address     string
	ConnectedAt time.Time
}

// Registry hands out strictly increasing session ids starting at 1. Ids are
// never reused, even after deregistration.
type Registry struct {
	mu     sync.Mutex
	active map[int64]Session
	nextID int64
	now    func() time.Time
	logger *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		active: make(map[int64]Session),
		nextID: 1,
		now:    time.Now,
		logger: slog.Default().With("component", "session-registry"),
	}
}

// Register opens a session for address and returns its id.
func (r *Registry) Register(address string) int64 {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.active[id] = Session{ID: id, Address: address, ConnectedAt: r.now()}
	r.mu.Unlock()

	r.logger.Info("session registered", "session_id", id, "address", address)
	return id
}

// Deregister removes id from the active set. It reports whether a session was
// removed; unknown or already removed ids are a no-op.
func (r *Registry) Deregister(id int64) bool {
	r.mu.Lock()
	_, ok := r.active[id]
	delete(r.active, id)
	r.mu.Unlock()

	if ok {
		r.logger.Info("session deregistered", "session_id", id)
	}
	return ok
}

// IsActive reports whether id is currently connected.
func (r *Registry) IsActive(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

// ListActive returns the active sessions ordered by id.
func (r *Registry) ListActive() []Session {
	r.mu.Lock()
	out := make([]Session, 0, len(r.active))
	for _, s := range r.active {
		out = append(out, s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
