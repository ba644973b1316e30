// ABOUTME: Registry mapping workflow IDs and versions to handles
// ABOUTME: Resolution without a version picks the highest registered one

package workflow

import (
	"sort"
	"sync"

	"github.com/2389/nexus-gateway/internal/apperr"
)

// Registry holds registered workflow handles. Registration typically
// happens at startup but is safe at any time.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]map[int]*Handle // id -> version -> handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]map[int]*Handle)}
}

// Register adds a handle. Re-registering the same id+version replaces
// the previous handle.
func (r *Registry) Register(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.handles[h.ID]
	if !ok {
		versions = make(map[int]*Handle)
		r.handles[h.ID] = versions
	}
	versions[h.Version] = h
}

// Resolve returns the handle for id at the given version. Version 0
// means "latest": the highest registered version wins.
func (r *Registry) Resolve(id string, version int) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.handles[id]
	if !ok || len(versions) == 0 {
		return nil, apperr.NotFound("workflow " + id)
	}

	if version != 0 {
		h, ok := versions[version]
		if !ok {
			return nil, apperr.NotFound("workflow " + id)
		}
		return h, nil
	}

	latest := 0
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	return versions[latest], nil
}

// List returns the latest version of every registered handle, sorted by ID.
func (r *Registry) List() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Handle, 0, len(r.handles))
	for _, versions := range r.handles {
		latest := 0
		for v := range versions {
			if v > latest {
				latest = v
			}
		}
		out = append(out, versions[latest])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
