// Package fork implements the rollback/fork engine: discarding the N most
// recent committed frames, tearing down stateful units, and rebuilding the
// derived state by deterministically replaying the surviving frame log.
package fork

import (
	"fmt"
	"sync"

	"github.com/hupe1980/worldmesh/core"
)

// Registry tracks every live stateful unit in a space so the engine can
// classify them at fork time. Registration order is preserved for
// deterministic teardown.
type Registry struct {
	mu    sync.RWMutex
	units map[string]core.Unit
	order []string
}

// NewRegistry constructs an empty unit registry.
func NewRegistry() *Registry {
	return &Registry{units: make(map[string]core.Unit)}
}

// Register adds a unit; duplicate ids are rejected.
func (r *Registry) Register(u core.Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := u.UnitID()
	if _, exists := r.units[id]; exists {
		return fmt.Errorf("unit %q already registered", id)
	}
	r.units[id] = u
	r.order = append(r.order, id)
	return nil
}

// Deregister removes a unit by id; unknown ids are a no-op.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[id]; !ok {
		return
	}
	delete(r.units, id)
	kept := r.order[:0]
	for _, oid := range r.order {
		if oid != id {
			kept = append(kept, oid)
		}
	}
	r.order = kept
}

// Units returns the registered units in registration order.
func (r *Registry) Units() []core.Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Unit, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.units[id])
	}
	return out
}
