package pipeline

import "github.com/hupe1980/worldmesh/core"

// The func adapters below expose plain Go functions as phase handlers,
// mirroring the FunctionTool pattern: no internal mutable state after
// construction, safe for concurrent use.

// IngestionFunc adapts a function to core.IngestionHandler.
type IngestionFunc struct {
	name   string
	topics []string
	fn     func(ev core.Event, snap core.Snapshot) ([]core.Delta, error)
}

// NewIngestionFunc wraps fn as an ingestion handler interested in topics.
func NewIngestionFunc(name string, topics []string, fn func(ev core.Event, snap core.Snapshot) ([]core.Delta, error)) *IngestionFunc {
	return &IngestionFunc{name: name, topics: topics, fn: fn}
}

// Name implements core.IngestionHandler.
func (h *IngestionFunc) Name() string { return h.name }

// Topics implements core.IngestionHandler.
func (h *IngestionFunc) Topics() []string { return h.topics }

// OnEvent implements core.IngestionHandler.
func (h *IngestionFunc) OnEvent(ev core.Event, snap core.Snapshot) ([]core.Delta, error) {
	return h.fn(ev, snap)
}

// StabilizationFunc adapts a function to core.StabilizationHandler.
type StabilizationFunc struct {
	name string
	fn   func(snap core.Snapshot) ([]core.Delta, error)
}

// NewStabilizationFunc wraps fn as a stabilization handler. The function must
// converge: return nothing once its output matches its inputs.
func NewStabilizationFunc(name string, fn func(snap core.Snapshot) ([]core.Delta, error)) *StabilizationFunc {
	return &StabilizationFunc{name: name, fn: fn}
}

// Name implements core.StabilizationHandler.
func (h *StabilizationFunc) Name() string { return h.name }

// Stabilize implements core.StabilizationHandler.
func (h *StabilizationFunc) Stabilize(snap core.Snapshot) ([]core.Delta, error) { return h.fn(snap) }

// ReactionFunc adapts a function to core.ReactionHandler.
type ReactionFunc struct {
	name  string
	kinds []core.Kind
	fn    func(changes []core.FacetChange, snap core.Snapshot) ([]core.Event, error)
}

// NewReactionFunc wraps fn as a reaction handler interested in kinds (empty =
// every kind).
func NewReactionFunc(name string, kinds []core.Kind, fn func(changes []core.FacetChange, snap core.Snapshot) ([]core.Event, error)) *ReactionFunc {
	return &ReactionFunc{name: name, kinds: kinds, fn: fn}
}

// Name implements core.ReactionHandler.
func (h *ReactionFunc) Name() string { return h.name }

// Kinds implements core.ReactionHandler.
func (h *ReactionFunc) Kinds() []core.Kind { return h.kinds }

// OnChanges implements core.ReactionHandler.
func (h *ReactionFunc) OnChanges(changes []core.FacetChange, snap core.Snapshot) ([]core.Event, error) {
	return h.fn(changes, snap)
}

// MaintenanceFunc adapts a function to core.MaintenanceHandler.
type MaintenanceFunc struct {
	name string
	fn   func(snap core.Snapshot) ([]core.Event, error)
}

// NewMaintenanceFunc wraps fn as a maintenance handler.
func NewMaintenanceFunc(name string, fn func(snap core.Snapshot) ([]core.Event, error)) *MaintenanceFunc {
	return &MaintenanceFunc{name: name, fn: fn}
}

// Name implements core.MaintenanceHandler.
func (h *MaintenanceFunc) Name() string { return h.name }

// Maintain implements core.MaintenanceHandler.
func (h *MaintenanceFunc) Maintain(snap core.Snapshot) ([]core.Event, error) { return h.fn(snap) }
