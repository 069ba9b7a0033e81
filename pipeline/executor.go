// Package pipeline runs one frame's worth of handler code in a fixed phase
// order: pre-filter, ingestion, stabilization-to-fixpoint, reaction,
// maintenance. Each phase's output feeds the next, and events emitted by
// reaction/maintenance handlers recurse back in as new frames, bounded by a
// per-trigger frame budget.
package pipeline

import (
	"fmt"
	"sync"

	"github.com/hupe1980/worldmesh/core"
	"github.com/hupe1980/worldmesh/logging"
	"github.com/hupe1980/worldmesh/sequencer"
)

const (
	// DefaultMaxStabilizationPasses bounds the phase-2 fixpoint loop.
	DefaultMaxStabilizationPasses = 16
	// DefaultMaxFramesPerTrigger bounds the frames one external event may spawn.
	DefaultMaxFramesPerTrigger = 32
)

// Options holds tuning parameters and dependency overrides passed to New().
type Options struct {
	// MaxStabilizationPasses is the phase-2 iteration ceiling. Exceeding it
	// is a fatal pipeline error, never a silent truncation.
	MaxStabilizationPasses int
	// MaxFramesPerTrigger bounds total frames processed per external trigger,
	// including reaction/maintenance recursion. Exceeding it is fatal.
	MaxFramesPerTrigger int
	// Logger receives phase diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// Executor dispatches events through the phase pipeline against a sequencer.
// Handler registration is safe for concurrent use; event processing follows
// the single-writer space model.
type Executor struct {
	seq *sequencer.Sequencer

	mu            sync.RWMutex
	prefilters    []core.PreFilter
	ingestion     []core.IngestionHandler
	stabilization []core.StabilizationHandler
	reaction      []core.ReactionHandler
	maintenance   []core.MaintenanceHandler

	maxPasses int
	maxFrames int
	logger    logging.Logger
}

// New constructs an Executor over the given sequencer.
func New(seq *sequencer.Sequencer, optFns ...func(o *Options)) *Executor {
	opts := Options{
		MaxStabilizationPasses: DefaultMaxStabilizationPasses,
		MaxFramesPerTrigger:    DefaultMaxFramesPerTrigger,
		Logger:                 logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{
		seq:       seq,
		maxPasses: opts.MaxStabilizationPasses,
		maxFrames: opts.MaxFramesPerTrigger,
		logger:    opts.Logger,
	}
}

// RegisterPreFilter appends a phase-0 filter; registration order is chain order.
func (e *Executor) RegisterPreFilter(f core.PreFilter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prefilters = append(e.prefilters, f)
}

// RegisterIngestion appends a phase-1 handler; registration order is dispatch order.
func (e *Executor) RegisterIngestion(h core.IngestionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ingestion = append(e.ingestion, h)
}

// RegisterStabilization appends a phase-2 handler.
func (e *Executor) RegisterStabilization(h core.StabilizationHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stabilization = append(e.stabilization, h)
}

// RegisterReaction appends a phase-3 handler.
func (e *Executor) RegisterReaction(h core.ReactionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reaction = append(e.reaction, h)
}

// RegisterMaintenance appends a phase-4 handler.
func (e *Executor) RegisterMaintenance(h core.MaintenanceHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maintenance = append(e.maintenance, h)
}

// ProcessEvent drains one external trigger: the event itself plus every
// follow-up event emitted by reaction/maintenance handlers, one frame at a
// time, until the queue is empty or the frame budget trips.
func (e *Executor) ProcessEvent(ev core.Event) error {
	return e.drain([]core.Event{ev}, 0, ev.ID)
}

// ProcessCommitted runs phases 3–4 over a frame already committed through the
// sequencer: an agent's outgoing frame. Reaction handlers see the frame's
// facet changes the same way they would for an incoming frame, and their
// follow-up events recurse into new frames under the per-trigger budget, with
// the committed frame itself counted against it.
func (e *Executor) ProcessCommitted(frame core.Frame) error {
	if frame.Direction != core.Outgoing {
		return fmt.Errorf("processCommitted: frame %d has direction %q", frame.Sequence, frame.Direction)
	}

	e.mu.RLock()
	reaction := append([]core.ReactionHandler(nil), e.reaction...)
	maintenance := append([]core.MaintenanceHandler(nil), e.maintenance...)
	e.mu.RUnlock()

	post := e.seq.Snapshot()
	changes := outgoingChanges(frame, post)

	var followUps []core.Event
	for _, h := range reaction {
		matched := filterChanges(changes, h.Kinds())
		if len(matched) == 0 {
			continue
		}
		followUps = append(followUps, e.safeReact(h, matched, post)...)
	}
	for _, h := range maintenance {
		followUps = append(followUps, e.safeMaintain(h, post)...)
	}

	return e.drain(followUps, 1, fmt.Sprintf("frame-%d", frame.Sequence))
}

// drain processes the queued events one frame at a time, appending follow-up
// events as they arrive, until the queue empties or the budget trips. frames
// counts commits already attributed to this trigger.
func (e *Executor) drain(queue []core.Event, frames int, trigger string) error {
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		filtered, ok := e.prefilter(next)
		if !ok {
			continue
		}

		if frames >= e.maxFrames {
			return fmt.Errorf("trigger %s spawned more than %d frames: %w", trigger, e.maxFrames, core.ErrFrameBudget)
		}

		followUps, committed, err := e.runFrame(filtered)
		if err != nil {
			return err
		}
		if committed {
			frames++
		}
		queue = append(queue, followUps...)
	}
	return nil
}

func (e *Executor) prefilter(ev core.Event) (core.Event, bool) {
	e.mu.RLock()
	filters := append([]core.PreFilter(nil), e.prefilters...)
	e.mu.RUnlock()

	for _, f := range filters {
		var ok bool
		ev, ok = f.Filter(ev)
		if !ok {
			eventsDropped.WithLabelValues(f.Name()).Inc()
			e.logger.Debug("event dropped by pre-filter", "filter", f.Name(), "topic", ev.Topic, "source", ev.Source)
			return core.Event{}, false
		}
	}
	return ev, true
}

// runFrame executes phases 1–4 for one event. It returns the follow-up events
// collected from reaction and maintenance handlers and whether a frame was
// actually committed (an event no handler turns into deltas commits nothing).
func (e *Executor) runFrame(ev core.Event) ([]core.Event, bool, error) {
	e.mu.RLock()
	ingestion := append([]core.IngestionHandler(nil), e.ingestion...)
	stabilization := append([]core.StabilizationHandler(nil), e.stabilization...)
	reaction := append([]core.ReactionHandler(nil), e.reaction...)
	maintenance := append([]core.MaintenanceHandler(nil), e.maintenance...)
	e.mu.RUnlock()

	base := e.seq.Snapshot()
	scratch := core.NewWorldStateFromSnapshot(base, func(o *core.StateOptions) { o.Logger = e.logger })
	tracker := newChangeTracker(base)

	// Phase 1: every matching handler sees the raw event plus the pre-frame
	// snapshot; deltas are concatenated in registration order.
	var ops []core.Delta
	for _, h := range ingestion {
		if !topicMatches(h.Topics(), ev.Topic) {
			continue
		}
		ds, err := h.OnEvent(ev, base)
		if err != nil {
			return nil, false, fmt.Errorf("ingestion handler %s: %w", h.Name(), err)
		}
		ops = append(ops, ds...)
	}
	for _, d := range ops {
		if err := scratch.Apply(d); err != nil {
			return nil, false, fmt.Errorf("apply ingestion delta: %w", err)
		}
		tracker.record(d, scratch)
	}

	// Phase 2: loop the full handler set until a pass produces no deltas.
	// Deltas apply immediately so later handlers in the same pass observe them.
	passes := 0
	for len(stabilization) > 0 {
		produced := false
		for _, h := range stabilization {
			ds, err := h.Stabilize(scratch.Snapshot())
			if err != nil {
				return nil, false, fmt.Errorf("stabilization handler %s: %w", h.Name(), err)
			}
			for _, d := range ds {
				if err := scratch.Apply(d); err != nil {
					return nil, false, fmt.Errorf("apply stabilization delta: %w", err)
				}
				tracker.record(d, scratch)
				ops = append(ops, d)
			}
			if len(ds) > 0 {
				produced = true
			}
		}
		if !produced {
			break
		}
		passes++
		if passes >= e.maxPasses {
			return nil, false, fmt.Errorf("stabilization did not converge after %d passes: %w", passes, core.ErrFixpointCeiling)
		}
	}
	stabilizationPasses.Observe(float64(passes))

	if len(ops) == 0 {
		return nil, false, nil
	}

	frame := core.NewIncomingFrame(e.seq.NextSequence(), ev.StreamID, ops)
	if err := e.seq.ApplyIncoming(frame); err != nil {
		return nil, false, err
	}
	post := e.seq.Snapshot()

	// Phase 3: reaction handlers see the concrete change list and may only
	// answer with new events, which recurse into new frames.
	changes := tracker.list(scratch)
	var followUps []core.Event
	for _, h := range reaction {
		matched := filterChanges(changes, h.Kinds())
		if len(matched) == 0 {
			continue
		}
		followUps = append(followUps, e.safeReact(h, matched, post)...)
	}

	// Phase 4: maintenance failures are caught; the frame has already
	// committed and stays committed.
	for _, h := range maintenance {
		followUps = append(followUps, e.safeMaintain(h, post)...)
	}

	return followUps, true, nil
}

func (e *Executor) safeReact(h core.ReactionHandler, changes []core.FacetChange, snap core.Snapshot) (events []core.Event) {
	defer func() {
		if r := recover(); r != nil {
			handlerFailures.WithLabelValues("reaction").Inc()
			e.logger.Error("reaction handler panicked", "handler", h.Name(), "panic", r)
			events = nil
		}
	}()
	events, err := h.OnChanges(changes, snap)
	if err != nil {
		handlerFailures.WithLabelValues("reaction").Inc()
		e.logger.Error("reaction handler failed", "handler", h.Name(), "error", err)
		return nil
	}
	return events
}

func (e *Executor) safeMaintain(h core.MaintenanceHandler, snap core.Snapshot) (events []core.Event) {
	defer func() {
		if r := recover(); r != nil {
			handlerFailures.WithLabelValues("maintenance").Inc()
			e.logger.Error("maintenance handler panicked", "handler", h.Name(), "panic", r)
			events = nil
		}
	}()
	events, err := h.Maintain(snap)
	if err != nil {
		handlerFailures.WithLabelValues("maintenance").Inc()
		e.logger.Error("maintenance handler failed", "handler", h.Name(), "error", err)
		return nil
	}
	return events
}

// outgoingChanges derives the reaction-phase change list from a committed
// outgoing frame. Intent deltas surface through the facet ids the sequencer
// expanded them into. Facets resolve against the post-commit snapshot; a
// facet swept at frame end still surfaces with the content the frame carried.
func outgoingChanges(frame core.Frame, post core.Snapshot) []core.FacetChange {
	var order []string
	kinds := make(map[string]core.ChangeKind)
	facets := make(map[string]core.Facet)

	mark := func(id string, kind core.ChangeKind, fallback *core.Facet) {
		if id == "" {
			return
		}
		if f, ok := post.Facet(id); ok {
			facets[id] = f
		} else if fallback != nil {
			facets[id] = fallback.Clone()
		} else {
			return
		}
		if existing, ok := kinds[id]; ok {
			// An add followed by a change stays "added".
			if existing != core.ChangeAdded {
				kinds[id] = kind
			}
			return
		}
		order = append(order, id)
		kinds[id] = kind
	}

	for i, d := range frame.Operations {
		switch {
		case d.IsIntent():
			for _, f := range sequencer.ExpandIntent(frame, i, d) {
				f := f
				mark(f.ID, core.ChangeAdded, &f)
			}
		case d.Op == core.OpAddFacet:
			if d.Facet != nil && core.KnownKind(d.Facet.Kind) {
				mark(d.Facet.ID, core.ChangeAdded, d.Facet)
			}
		case d.Op == core.OpChangeState:
			mark(d.FacetID, core.ChangeUpdated, nil)
		}
	}

	out := make([]core.FacetChange, 0, len(order))
	for _, id := range order {
		out = append(out, core.FacetChange{Kind: kinds[id], Facet: facets[id]})
	}
	return out
}

func topicMatches(topics []string, topic string) bool {
	for _, t := range topics {
		if t == core.TopicWildcard || t == topic {
			return true
		}
	}
	return false
}

func filterChanges(changes []core.FacetChange, kinds []core.Kind) []core.FacetChange {
	if len(kinds) == 0 {
		return changes
	}
	var out []core.FacetChange
	for _, c := range changes {
		for _, k := range kinds {
			if c.Facet.Kind == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// changeTracker accumulates which facets were added or changed since the
// frame began, preserving first-touch order. Final facet content is resolved
// against the scratch state at list() time, so a facet added and then mutated
// in the same frame surfaces once with its final content.
type changeTracker struct {
	base  core.Snapshot
	order []string
	kinds map[string]core.ChangeKind
}

func newChangeTracker(base core.Snapshot) *changeTracker {
	return &changeTracker{base: base, kinds: make(map[string]core.ChangeKind)}
}

func (t *changeTracker) record(d core.Delta, scratch *core.WorldState) {
	switch d.Op {
	case core.OpAddFacet:
		if d.Facet == nil {
			return
		}
		if _, ok := scratch.Facet(d.Facet.ID); !ok {
			// The store rejected it (unknown kind); not a change.
			return
		}
		t.mark(d.Facet.ID, core.ChangeAdded)
	case core.OpChangeState:
		f, ok := scratch.Facet(d.FacetID)
		if !ok || f.Kind != core.KindState {
			return
		}
		t.mark(d.FacetID, core.ChangeUpdated)
	}
}

func (t *changeTracker) mark(id string, kind core.ChangeKind) {
	if existing, ok := t.kinds[id]; ok {
		// An add followed by a change stays "added".
		if existing == core.ChangeAdded {
			return
		}
		t.kinds[id] = kind
		return
	}
	if _, inBase := t.base.Facet(id); inBase && kind == core.ChangeAdded {
		// Re-adding a facet that predates the frame reads as a change.
		kind = core.ChangeUpdated
	}
	t.order = append(t.order, id)
	t.kinds[id] = kind
}

// list resolves the tracked ids against the scratch state (pre-sweep, so
// ephemeral facets still surface to reaction handlers).
func (t *changeTracker) list(scratch *core.WorldState) []core.FacetChange {
	out := make([]core.FacetChange, 0, len(t.order))
	for _, id := range t.order {
		f, ok := scratch.Facet(id)
		if !ok {
			continue
		}
		out = append(out, core.FacetChange{Kind: t.kinds[id], Facet: f})
	}
	return out
}
