package ingest

import (
	"context"
	"sync"
)

// Registry tracks active pipeline runs keyed by document id. It enforces
// at-most-one-concurrent-run-per-document and carries the cancel handle for
// each run.
type Registry struct {
	mu   sync.Mutex
	runs map[string]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]context.CancelFunc)}
}

// Begin registers a run for docID and returns a cancellable child context.
// Returns ok=false if a run for that document is already active; duplicate
// requests are rejected, not queued.
func (r *Registry) Begin(parent context.Context, docID string) (context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, active := r.runs[docID]; active {
		return nil, false
	}

	ctx, cancel := context.WithCancel(parent)
	r.runs[docID] = cancel
	return ctx, true
}

// Finish removes the run entry and releases its context resources.
func (r *Registry) Finish(docID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.runs[docID]; ok {
		cancel()
		delete(r.runs, docID)
	}
}

// Cancel aborts an active run. Returns false if no run is active for docID.
func (r *Registry) Cancel(docID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancel, ok := r.runs[docID]
	if !ok {
		return false
	}
	cancel()
	return true
}

// Active reports whether a run is currently registered for docID.
func (r *Registry) Active(docID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.runs[docID]
	return ok
}
