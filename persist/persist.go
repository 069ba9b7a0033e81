// Package persist is the snapshot-store boundary: saving and loading a
// space's full derived state plus frame history. Stores hold exactly one
// snapshot per space; history is the snapshot's own frame log, not a
// store-side journal.
package persist

import (
	"context"
	"sync"

	"github.com/hupe1980/worldmesh/core"
)

// Store saves and loads space snapshots.
type Store interface {
	// Save persists the snapshot for the given space, replacing any previous
	// one.
	Save(ctx context.Context, spaceID string, snap core.Snapshot) error

	// Load returns the stored snapshot for the space. The bool reports
	// whether one existed.
	Load(ctx context.Context, spaceID string) (core.Snapshot, bool, error)
}

// InMemoryStore keeps snapshots in process memory. Useful for tests and for
// spaces that only need rollback, not restarts.
type InMemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]core.Snapshot
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{snaps: make(map[string]core.Snapshot)}
}

// Save implements Store.
func (s *InMemoryStore) Save(_ context.Context, spaceID string, snap core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[spaceID] = snap
	return nil
}

// Load implements Store.
func (s *InMemoryStore) Load(_ context.Context, spaceID string) (core.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[spaceID]
	return snap, ok, nil
}
