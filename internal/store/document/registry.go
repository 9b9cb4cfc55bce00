// Package document assigns stable integer identifiers to document paths and
// remembers which session first submitted each one.
package document

import (
	"log/slog"
	"sync"
)

// Document is one registered path.
type Document struct {
	ID      int64
	Path    string
	OwnerID int64
}

// Registry maps paths to identifiers. Identifiers start at 1, are strictly
// increasing and are never reused.
type Registry struct {
	mu     sync.RWMutex
	byPath map[string]int64
	byID   map[int64]Document
	nextID int64
	logger *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		byPath: make(map[string]int64),
		byID:   make(map[int64]Document),
		nextID: 1,
		logger: slog.Default().With("component", "document-registry"),
	}
}

// AssignOrGet returns the identifier of path, allocating one owned by
// sessionID on first sight. Later callers get the existing identifier and
// the recorded owner is left unchanged.
func (r *Registry) AssignOrGet(path string, sessionID int64) int64 {
	r.mu.RLock()
	id, ok := r.byPath[path]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byPath[path]; ok {
		return id
	}
	id = r.nextID
	r.nextID++
	r.byPath[path] = id
	r.byID[id] = Document{ID: id, Path: path, OwnerID: sessionID}
	r.logger.Debug("document registered", "doc_id", id, "path", path, "owner", sessionID)
	return id
}

// PathOf returns the path registered under id.
func (r *Registry) PathOf(id int64) (string, bool) {
	doc, ok := r.Lookup(id)
	return doc.Path, ok
}

// Lookup returns the full record registered under id.
func (r *Registry) Lookup(id int64) (Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.byID[id]
	return doc, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
