package core

// ChangeKind classifies a facet change surfaced to reaction handlers.
type ChangeKind string

const (
	// ChangeAdded marks a facet inserted during the frame.
	ChangeAdded ChangeKind = "added"
	// ChangeUpdated marks a facet mutated during the frame.
	ChangeUpdated ChangeKind = "changed"
)

// FacetChange is one entry in the change list handed to reaction handlers: the
// final state of a facet that was added or changed since the frame began.
type FacetChange struct {
	Kind  ChangeKind
	Facet Facet
}

// TopicWildcard matches every event topic in an ingestion handler's interest
// declaration.
const TopicWildcard = "*"

// PreFilter shapes raw events before they become pipeline input. It may
// rewrite the event or drop it entirely (ok=false). Pre-filters are not
// required for correctness; they exist to buffer, coalesce or rate-limit
// noisy sources.
type PreFilter interface {
	// Name returns the filter's identifier for diagnostics.
	Name() string
	// Filter returns the (possibly rewritten) event and whether it should
	// continue into the pipeline.
	Filter(ev Event) (Event, bool)
}

// IngestionHandler turns a raw event into deltas. All handlers whose declared
// topics match the event run; their deltas are concatenated in registration
// order and form the incoming frame. An error here aborts the frame.
type IngestionHandler interface {
	// Name returns the handler's identifier for diagnostics.
	Name() string
	// Topics declares the event topics this handler is interested in.
	// TopicWildcard matches everything.
	Topics() []string
	// OnEvent returns zero or more deltas derived from the event.
	OnEvent(ev Event, snap Snapshot) ([]Delta, error)
}

// StabilizationHandler derives additional deltas from the state as of the
// current iteration. The phase loops the full handler set until a pass
// produces no deltas, so implementations must converge: produce nothing when
// their output already matches their inputs. An error here aborts the frame.
type StabilizationHandler interface {
	// Name returns the handler's identifier for diagnostics.
	Name() string
	// Stabilize returns zero or more deltas given the current iteration's state.
	Stabilize(snap Snapshot) ([]Delta, error)
}

// ReactionHandler reacts to the facet changes of a committed frame by
// emitting new external-style events, which recurse into new frames. Reaction
// handlers have no write access to state; errors and panics are caught and
// logged without blocking the frame.
type ReactionHandler interface {
	// Name returns the handler's identifier for diagnostics.
	Name() string
	// Kinds declares the facet kinds this handler is interested in. An empty
	// list matches every kind.
	Kinds() []Kind
	// OnChanges returns follow-up events for the changes it cares about.
	OnChanges(changes []FacetChange, snap Snapshot) ([]Event, error)
}

// MaintenanceHandler runs last in every frame for cleanup, persistence
// triggers and invariant checks. It may emit follow-up events. Errors and
// panics are caught and logged; the frame still commits.
type MaintenanceHandler interface {
	// Name returns the handler's identifier for diagnostics.
	Name() string
	// Maintain runs the handler against the committed frame's state.
	Maintain(snap Snapshot) ([]Event, error)
}
