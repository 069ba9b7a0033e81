package core

import "context"

// ForkRange is the inclusive sequence range being discarded by a rollback.
type ForkRange struct {
	From uint64
	To   uint64
}

// Unit is the capability interface every live stateful component implements
// so the fork engine can classify and manage it. Embed BaseUnit for no-op
// defaults instead of checking for optional hooks at runtime.
type Unit interface {
	// UnitID returns a stable identifier unique within the space.
	UnitID() string

	// ForkInvariant reports whether the unit survives a fork untouched.
	// Infrastructure holding resources that must outlive a rollback (a live
	// network connection, for example) returns true.
	ForkInvariant() bool

	// OnFork notifies a fork-invariant unit that the given sequence range is
	// being discarded, so it can drop any cached state referencing those
	// frames without being destroyed itself.
	OnFork(fr ForkRange)

	// Shutdown tears the unit down, releasing sockets, timers and listener
	// registrations. Called on every non-invariant unit during a rollback.
	Shutdown(ctx context.Context) error

	// PersistentState returns the minimal state to capture before teardown,
	// or nil if the unit has nothing to restore.
	PersistentState() map[string]any
}

// BaseUnit provides no-op defaults for the Unit interface. Embed it and
// override only what the unit needs.
type BaseUnit struct {
	id        string
	invariant bool
}

// NewBaseUnit constructs a BaseUnit with the given id and fork classification.
func NewBaseUnit(id string, forkInvariant bool) BaseUnit {
	return BaseUnit{id: id, invariant: forkInvariant}
}

// UnitID returns the unit's identifier.
func (u BaseUnit) UnitID() string { return u.id }

// ForkInvariant reports the unit's fork classification.
func (u BaseUnit) ForkInvariant() bool { return u.invariant }

// OnFork does nothing.
func (u BaseUnit) OnFork(ForkRange) {}

// Shutdown does nothing.
func (u BaseUnit) Shutdown(context.Context) error { return nil }

// PersistentState returns nil.
func (u BaseUnit) PersistentState() map[string]any { return nil }
