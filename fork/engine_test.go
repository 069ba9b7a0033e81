package fork

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/worldmesh/core"
	"github.com/hupe1980/worldmesh/sequencer"
)

func newEngine(t *testing.T) (*Engine, *sequencer.Sequencer, *Registry) {
	t.Helper()
	seq := sequencer.New(core.NewWorldState())
	reg := NewRegistry()
	return New(seq, reg), seq, reg
}

// recordingUnit tracks lifecycle calls for fork classification tests.
type recordingUnit struct {
	core.BaseUnit
	forked    []core.ForkRange
	shutdowns int
	state     map[string]any
	fail      error
}

func newRecordingUnit(id string, invariant bool) *recordingUnit {
	return &recordingUnit{BaseUnit: core.NewBaseUnit(id, invariant)}
}

func (u *recordingUnit) OnFork(fr core.ForkRange) { u.forked = append(u.forked, fr) }

func (u *recordingUnit) Shutdown(context.Context) error {
	u.shutdowns++
	return u.fail
}

func (u *recordingUnit) PersistentState() map[string]any { return u.state }

func commitFrames(t *testing.T, seq *sequencer.Sequencer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		next := seq.NextSequence()
		var frame core.Frame
		if i%3 == 2 {
			frame = core.NewOutgoingFrame(next, "a1", "st1", []core.Delta{
				core.Speak(fmt.Sprintf("turn %d", i)),
				core.Think("hmm"),
			})
		} else {
			frame = core.NewIncomingFrame(next, "st1", []core.Delta{
				core.AddFacet(core.Facet{
					ID:      fmt.Sprintf("f%d", i),
					Kind:    core.KindState,
					Payload: map[string]any{"i": i},
				}),
				core.ChangeState(fmt.Sprintf("f%d", i-1), nil, map[string]any{"touched": true}),
			})
		}
		if frame.Direction == core.Outgoing {
			require.NoError(t, seq.RecordOutgoing(frame))
		} else {
			require.NoError(t, seq.ApplyIncoming(frame))
		}
	}
}

func TestEngine_RollbackEquivalence(t *testing.T) {
	e, seq, _ := newEngine(t)
	require.NoError(t, seq.ApplyIncoming(core.NewIncomingFrame(1, "", []core.Delta{
		core.AddStream(core.Stream{ID: "st1"}),
		core.AddAgent(core.Agent{ID: "a1"}),
	})))
	commitFrames(t, seq, 9)
	require.Equal(t, uint64(10), seq.CurrentSequence())

	surviving := seq.History()[:7]

	_, err := e.DeleteRecentFrames(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, uint64(7), seq.CurrentSequence())

	// Replaying the surviving prefix manually from empty must produce
	// identical derived state.
	manual := sequencer.New(core.NewWorldState())
	for _, f := range surviving {
		if f.Direction == core.Outgoing {
			require.NoError(t, manual.RecordOutgoing(f))
		} else {
			require.NoError(t, manual.ApplyIncoming(f))
		}
	}

	if diff := cmp.Diff(manual.Snapshot(), seq.Snapshot()); diff != "" {
		t.Fatalf("post-rollback state diverges from manual replay (-manual +engine):\n%s", diff)
	}
}

func TestEngine_EndToEndBoxScenario(t *testing.T) {
	e, seq, _ := newEngine(t)

	require.NoError(t, seq.ApplyIncoming(core.NewIncomingFrame(1, "", []core.Delta{
		core.AddFacet(core.Facet{ID: "box1", Kind: core.KindState, Payload: map[string]any{"open": false}}),
	})))
	require.NoError(t, seq.ApplyIncoming(core.NewIncomingFrame(2, "", []core.Delta{
		core.ChangeState("box1", nil, map[string]any{"open": true}),
	})))

	box, ok := seq.Snapshot().ActiveFacet("box1")
	require.True(t, ok)
	require.Equal(t, true, box.Payload["open"])

	res, err := e.DeleteRecentFrames(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"box1"}, res.AffectedFacets)

	box, ok = seq.Snapshot().ActiveFacet("box1")
	require.True(t, ok)
	assert.Equal(t, false, box.Payload["open"], "undone change must roll back")
	assert.Equal(t, uint64(1), seq.CurrentSequence())
}

func TestEngine_DepthValidation(t *testing.T) {
	e, seq, _ := newEngine(t)
	require.NoError(t, seq.ApplyIncoming(core.NewIncomingFrame(1, "", nil)))

	_, err := e.DeleteRecentFrames(context.Background(), 2)
	require.ErrorIs(t, err, core.ErrRollbackDepth)

	_, err = e.DeleteRecentFrames(context.Background(), 0)
	require.Error(t, err)

	assert.Equal(t, uint64(1), seq.CurrentSequence(), "failed rollback must not mutate state")
}

func TestEngine_UnitClassification(t *testing.T) {
	e, seq, reg := newEngine(t)
	commitSimple(t, seq, 3)

	invariant := newRecordingUnit("conn", true)
	stateful := newRecordingUnit("worker", false)
	stateful.state = map[string]any{"cursor": 42}
	flaky := newRecordingUnit("flaky", false)
	flaky.fail = errors.New("socket already closed")
	require.NoError(t, reg.Register(invariant))
	require.NoError(t, reg.Register(stateful))
	require.NoError(t, reg.Register(flaky))

	res, err := e.DeleteRecentFrames(context.Background(), 2)
	require.NoError(t, err)

	// Fork-invariant unit survives, told which range was discarded.
	require.Len(t, invariant.forked, 1)
	assert.Equal(t, core.ForkRange{From: 2, To: 3}, invariant.forked[0])
	assert.Zero(t, invariant.shutdowns)

	// Stateful units are snapshotted, torn down and deregistered.
	assert.Equal(t, 1, stateful.shutdowns)
	assert.Equal(t, map[string]any{"cursor": 42}, res.Captured["worker"])
	_, hasFlaky := res.Captured["flaky"]
	assert.False(t, hasFlaky, "units without persistent fields are not captured")

	units := reg.Units()
	require.Len(t, units, 1)
	assert.Equal(t, "conn", units[0].UnitID())

	// A failed shutdown is a warning, not a rollback failure.
	found := false
	for _, w := range res.Warnings {
		if w == `unit "flaky" shutdown failed: socket already closed` {
			found = true
		}
	}
	assert.True(t, found, "warnings: %v", res.Warnings)
}

func TestEngine_RemoveWarnings(t *testing.T) {
	e, seq, _ := newEngine(t)
	require.NoError(t, seq.ApplyIncoming(core.NewIncomingFrame(1, "", []core.Delta{
		core.AddFacet(core.Facet{ID: "f1", Kind: core.KindEvent}),
	})))
	require.NoError(t, seq.ApplyIncoming(core.NewIncomingFrame(2, "", []core.Delta{
		core.RemoveFacet("f1", core.RemoveDelete),
	})))

	res, err := e.DeleteRecentFrames(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], `removed facet "f1"`)

	_, ok := seq.Snapshot().ActiveFacet("f1")
	assert.True(t, ok, "the un-done removal leaves the facet visible again")
}

func TestEngine_ReplayFailureRestoresState(t *testing.T) {
	e, seq, _ := newEngine(t)
	commitSimple(t, seq, 2)

	// Corrupt the restored history so replay of the surviving prefix fails.
	snap := seq.Snapshot()
	snap.History[0].Direction = core.Direction("sideways")
	seq.SetState(snap)
	before := seq.Snapshot()

	_, err := e.DeleteRecentFrames(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pre-rollback state restored")

	if diff := cmp.Diff(before, seq.Snapshot()); diff != "" {
		t.Fatalf("state not restored after replay failure (-before +after):\n%s", diff)
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newRecordingUnit("u1", false)))
	require.Error(t, reg.Register(newRecordingUnit("u1", true)))
	reg.Deregister("u1")
	require.NoError(t, reg.Register(newRecordingUnit("u1", true)))
}

func commitSimple(t *testing.T, seq *sequencer.Sequencer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, seq.ApplyIncoming(core.NewIncomingFrame(seq.NextSequence(), "", []core.Delta{
			core.AddFacet(core.Facet{ID: fmt.Sprintf("s%d", i), Kind: core.KindEvent}),
		})))
	}
}
