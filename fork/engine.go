package fork

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/worldmesh/core"
	"github.com/hupe1980/worldmesh/logging"
	"github.com/hupe1980/worldmesh/sequencer"
)

// Options holds dependency overrides passed to New().
type Options struct {
	// Logger receives rollback diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// Result reports what a rollback touched: the facet ids affected by the
// discarded frames, advisory warnings for operations that were un-done, and
// the persistent state captured from torn-down units keyed by unit id.
type Result struct {
	AffectedFacets []string
	Warnings       []string
	Captured       map[string]map[string]any
}

// Engine deletes recent frames and rebuilds state by replay. Tear down plus
// replay from empty, rather than in-place patching of history, is what makes
// post-rollback state bit-for-bit what it would have been had the deleted
// frames never happened.
type Engine struct {
	seq      *sequencer.Sequencer
	registry *Registry
	logger   logging.Logger
}

// New constructs a fork engine over a sequencer and unit registry.
func New(seq *sequencer.Sequencer, registry *Registry, optFns ...func(o *Options)) *Engine {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{seq: seq, registry: registry, logger: opts.Logger}
}

// DeleteRecentFrames removes exactly the n most recent committed frames.
// Fork-invariant units are notified of the discarded sequence range and
// survive untouched; every other unit is snapshotted (if it declares
// persistent fields), torn down and deregistered. If replay of the surviving
// prefix fails, the pre-rollback state is restored wholesale.
func (e *Engine) DeleteRecentFrames(ctx context.Context, n int) (Result, error) {
	start := time.Now()
	res := Result{Captured: make(map[string]map[string]any)}

	if n <= 0 {
		return res, fmt.Errorf("rollback depth must be positive, got %d", n)
	}
	history := e.seq.History()
	if n > len(history) {
		return res, fmt.Errorf("cannot delete %d of %d frames: %w", n, len(history), core.ErrRollbackDepth)
	}

	cut := len(history) - n
	surviving, discarded := history[:cut], history[cut:]
	fr := core.ForkRange{From: discarded[0].Sequence, To: discarded[len(discarded)-1].Sequence}

	res.AffectedFacets, res.Warnings = inspectDiscarded(discarded)

	for _, u := range e.registry.Units() {
		if u.ForkInvariant() {
			u.OnFork(fr)
			continue
		}
		if st := u.PersistentState(); st != nil {
			res.Captured[u.UnitID()] = st
		}
		if err := u.Shutdown(ctx); err != nil {
			// Units cannot all be trusted to clean up correctly; teardown
			// continues regardless.
			res.Warnings = append(res.Warnings, fmt.Sprintf("unit %q shutdown failed: %v", u.UnitID(), err))
			e.logger.Warn("unit shutdown failed during fork", "unit", u.UnitID(), "error", err)
		}
		e.registry.Deregister(u.UnitID())
	}

	before := e.seq.Snapshot()
	e.seq.SetState(core.Snapshot{})

	if err := e.replay(surviving); err != nil {
		e.seq.SetState(before)
		rollbacksTotal.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("replay failed, pre-rollback state restored: %w", err)
	}

	rollbacksTotal.WithLabelValues("ok").Inc()
	framesDiscarded.Add(float64(n))
	e.logger.Info("rollback completed",
		"depth", n, "replayed", len(surviving), "affected_facets", len(res.AffectedFacets),
		"duration", time.Since(start))
	return res, nil
}

// replay pushes the surviving frames through the ordinary commit path,
// renumbering them to stay contiguous from 1 and restoring the original
// numbers afterward. History is always contiguous so the numbering round
// trip is normally the identity; it is kept explicit so a partially restored
// snapshot can never desynchronize replay.
func (e *Engine) replay(surviving []core.Frame) error {
	originals := make([]uint64, len(surviving))
	for i, f := range surviving {
		originals[i] = f.Sequence
		rf := f.Clone()
		rf.Sequence = uint64(i + 1)
		switch f.Direction {
		case core.Incoming:
			if err := e.seq.ApplyIncoming(rf); err != nil {
				return fmt.Errorf("frame %d: %w", originals[i], err)
			}
		case core.Outgoing:
			if err := e.seq.RecordOutgoing(rf); err != nil {
				return fmt.Errorf("frame %d: %w", originals[i], err)
			}
		default:
			return fmt.Errorf("frame %d has unknown direction %q", originals[i], f.Direction)
		}
	}

	// Restore original numbering on the rebuilt history.
	snap := e.seq.Snapshot()
	for i := range snap.History {
		snap.History[i].Sequence = originals[i]
	}
	if len(originals) > 0 {
		snap.Sequence = originals[len(originals)-1]
	}
	e.seq.SetState(snap)
	return nil
}

// inspectDiscarded collects the facet ids the discarded frames touched and
// advisory warnings for operations whose effects the rollback un-does.
func inspectDiscarded(discarded []core.Frame) ([]string, []string) {
	var warnings []string
	seen := make(map[string]struct{})
	var affected []string
	touch := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		affected = append(affected, id)
	}

	for _, f := range discarded {
		for i, d := range f.Operations {
			switch d.Op {
			case core.OpAddFacet:
				if d.Facet != nil {
					touch(d.Facet.ID)
					for _, cid := range d.Facet.DescendantIDs() {
						touch(cid)
					}
				}
			case core.OpChangeState:
				touch(d.FacetID)
			case core.OpRemoveFacet:
				touch(d.FacetID)
				warnings = append(warnings, fmt.Sprintf(
					"frame %d removed facet %q (%s); the removal will be un-done", f.Sequence, d.FacetID, d.Mode))
			case core.OpDeleteStream:
				if d.Stream != nil {
					warnings = append(warnings, fmt.Sprintf(
						"frame %d deleted stream %q; the deletion will be un-done", f.Sequence, d.Stream.ID))
				}
			case core.OpSpeak, core.OpThink, core.OpAct:
				for _, ef := range sequencer.ExpandIntent(f, i, d) {
					touch(ef.ID)
				}
			}
		}
	}
	return affected, warnings
}
