package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorldState_AddFacetCloneIsolation(t *testing.T) {
	s := NewWorldState()

	f := Facet{
		ID:      "f1",
		Kind:    KindState,
		Payload: map[string]any{"open": false, "tags": []any{"a"}},
		Children: []Facet{
			{ID: "c1", Kind: KindEvent, Content: "child"},
		},
	}
	require.NoError(t, s.Apply(AddFacet(f)))

	// Mutating the caller's original must not leak into the store.
	f.Payload["open"] = true
	f.Children[0].Content = "mutated"

	stored, ok := s.Facet("f1")
	require.True(t, ok)
	assert.Equal(t, false, stored.Payload["open"])
	assert.Equal(t, "child", stored.Children[0].Content)

	// And mutating what the store handed back must not leak either.
	stored.Payload["open"] = true
	again, _ := s.Facet("f1")
	assert.Equal(t, false, again.Payload["open"])
}

func TestWorldState_ChangeState(t *testing.T) {
	s := NewWorldState()
	require.NoError(t, s.Apply(AddFacet(Facet{ID: "box1", Kind: KindState, Payload: map[string]any{"open": false}})))

	require.NoError(t, s.Apply(ChangeState("box1", nil, map[string]any{"open": true})))
	f, ok := s.Facet("box1")
	require.True(t, ok)
	assert.Equal(t, true, f.Payload["open"])

	content := "a wooden box"
	require.NoError(t, s.Apply(ChangeState("box1", &content, nil)))
	f, _ = s.Facet("box1")
	assert.Equal(t, "a wooden box", f.Content)
	assert.Equal(t, true, f.Payload["open"], "nil payload must leave payload untouched")
}

func TestWorldState_ChangeStateDanglingIgnored(t *testing.T) {
	s := NewWorldState()
	// Handlers may race to mutate facets a sibling creates later in the same
	// iteration; a dangling change is tolerated, not an error.
	require.NoError(t, s.Apply(ChangeState("ghost", nil, map[string]any{"x": 1})))
	_, ok := s.Facet("ghost")
	assert.False(t, ok)
}

func TestWorldState_ChangeStateWrongKindSkipped(t *testing.T) {
	s := NewWorldState()
	require.NoError(t, s.Apply(AddFacet(Facet{ID: "ev1", Kind: KindEvent, Content: "hello"})))
	require.NoError(t, s.Apply(ChangeState("ev1", nil, map[string]any{"x": 1})))
	f, _ := s.Facet("ev1")
	assert.Nil(t, f.Payload, "non-state facets must not be mutated")
}

func TestWorldState_UnknownKindSkipped(t *testing.T) {
	s := NewWorldState()
	require.NoError(t, s.Apply(AddFacet(Facet{ID: "x", Kind: Kind("hologram")})))
	_, ok := s.Facet("x")
	assert.False(t, ok)
}

func TestWorldState_UnknownOpSkipped(t *testing.T) {
	s := NewWorldState()
	require.NoError(t, s.Apply(Delta{Op: Op("teleport")}))
}

func TestWorldState_ScopeGating(t *testing.T) {
	s := NewWorldState()
	require.NoError(t, s.Apply(AddFacet(Facet{ID: "secret", Kind: KindAmbient, Scopes: []string{"s1"}})))

	assert.Empty(t, s.ActiveFacets(), "scoped facet must be hidden until its scope is active")

	require.NoError(t, s.Apply(AddScope("s1")))
	require.Len(t, s.ActiveFacets(), 1)

	require.NoError(t, s.Apply(DeleteScope("s1")))
	assert.Empty(t, s.ActiveFacets(), "scoped facet must disappear when its scope deactivates")
}

func TestWorldState_RemovalModes(t *testing.T) {
	s := NewWorldState()
	require.NoError(t, s.Apply(AddFacet(Facet{ID: "h1", Kind: KindState, Payload: map[string]any{"n": 1}})))

	// Hide: excluded from active views but retained and still mutable.
	require.NoError(t, s.Apply(RemoveFacet("h1", RemoveHide)))
	assert.Empty(t, s.ActiveFacets())

	require.NoError(t, s.Apply(ChangeState("h1", nil, map[string]any{"n": 2})))
	f, ok := s.Facet("h1")
	require.True(t, ok, "hidden facet must remain reachable via direct lookup")
	assert.Equal(t, 2, f.Payload["n"])

	// Delete: excluded, immutable, and gone after the explicit purge pass.
	require.NoError(t, s.Apply(AddFacet(Facet{
		ID: "d1", Kind: KindState,
		Children: []Facet{{ID: "d1c", Kind: KindEvent}},
	})))
	require.NoError(t, s.Apply(RemoveFacet("d1", RemoveDelete)))
	for _, f := range s.ActiveFacets() {
		assert.NotEqual(t, "d1", f.ID)
	}

	require.NoError(t, s.Apply(ChangeState("d1", nil, map[string]any{"n": 9})))
	f, _ = s.Facet("d1")
	assert.Nil(t, f.Payload, "deleted facet must not be mutable")

	purged := s.Purge()
	assert.Equal(t, []string{"d1"}, purged)
	_, ok = s.Facet("d1")
	assert.False(t, ok, "purged facet must be gone from the raw map")

	// Hidden facet survives the purge.
	_, ok = s.Facet("h1")
	assert.True(t, ok)
}

func TestWorldState_ReAddSupersedesRemoval(t *testing.T) {
	s := NewWorldState()
	require.NoError(t, s.Apply(AddFacet(Facet{ID: "f1", Kind: KindEvent})))
	require.NoError(t, s.Apply(RemoveFacet("f1", RemoveDelete)))
	require.NoError(t, s.Apply(AddFacet(Facet{ID: "f1", Kind: KindEvent})))
	require.Len(t, s.ActiveFacets(), 1)
}

func TestWorldState_StreamLifecycle(t *testing.T) {
	s := NewWorldState()
	require.NoError(t, s.Apply(AddStream(Stream{ID: "st1", Name: "console"})))

	snap := s.Snapshot()
	assert.Equal(t, "st1", snap.CurrentStream, "first stream becomes current")

	// Deleting the current stream clears the active-stream pointer.
	require.NoError(t, s.Apply(DeleteStream("st1")))
	snap = s.Snapshot()
	assert.Empty(t, snap.CurrentStream)
	assert.Empty(t, snap.Streams)
}

func TestWorldState_AgentLifecycle(t *testing.T) {
	s := NewWorldState()
	require.NoError(t, s.Apply(AddAgent(Agent{ID: "a1", Name: "scribe"})))
	require.NoError(t, s.Apply(UpdateAgent(Agent{ID: "a1", Name: "archivist"})))

	snap := s.Snapshot()
	assert.Equal(t, "archivist", snap.Agents["a1"].Name)
	assert.Equal(t, "a1", snap.CurrentAgent)

	require.NoError(t, s.Apply(RemoveAgent("a1")))
	snap = s.Snapshot()
	assert.Empty(t, snap.Agents)
	assert.Empty(t, snap.CurrentAgent)
}

func TestWorldState_SweepEphemeral(t *testing.T) {
	s := NewWorldState()
	require.NoError(t, s.Apply(AddFacet(Facet{ID: "tmp", Kind: KindEvent, Ephemeral: true})))
	require.NoError(t, s.Apply(AddFacet(Facet{ID: "keep", Kind: KindEvent})))

	swept := s.SweepEphemeral()
	assert.Equal(t, []string{"tmp"}, swept)
	_, ok := s.Facet("tmp")
	assert.False(t, ok)
	_, ok = s.Facet("keep")
	assert.True(t, ok)
}

func TestWorldState_SweepEphemeralNested(t *testing.T) {
	s := NewWorldState()
	require.NoError(t, s.Apply(AddFacet(Facet{
		ID: "parent", Kind: KindState,
		Children: []Facet{
			{ID: "tmp-child", Kind: KindEvent, Ephemeral: true},
			{ID: "keep-child", Kind: KindEvent, Children: []Facet{
				{ID: "tmp-grandchild", Kind: KindEvent, Ephemeral: true},
			}},
		},
	})))

	swept := s.SweepEphemeral()
	assert.Equal(t, []string{"tmp-child", "tmp-grandchild"}, swept)

	parent, ok := s.Facet("parent")
	require.True(t, ok, "durable parent must survive the sweep")
	require.Len(t, parent.Children, 1)
	assert.Equal(t, "keep-child", parent.Children[0].ID)
	assert.Empty(t, parent.Children[0].Children)
}

func TestWorldState_PurgeInsertionOrder(t *testing.T) {
	s := NewWorldState()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Apply(AddFacet(Facet{ID: id, Kind: KindState})))
		require.NoError(t, s.Apply(RemoveFacet(id, RemoveDelete)))
	}

	assert.Equal(t, []string{"c", "a", "b"}, s.Purge(), "purged ids must follow insertion order")
}

func TestWorldState_SnapshotIsolation(t *testing.T) {
	s := NewWorldState()
	require.NoError(t, s.Apply(AddFacet(Facet{ID: "f1", Kind: KindState, Payload: map[string]any{"n": 1}})))

	snap := s.Snapshot()
	require.NoError(t, s.Apply(ChangeState("f1", nil, map[string]any{"n": 2})))

	assert.Equal(t, 1, snap.Facets["f1"].Payload["n"], "snapshot must not observe later mutations")
}

func TestWorldState_RestoreRoundTrip(t *testing.T) {
	s := NewWorldState()
	require.NoError(t, s.Apply(AddFacet(Facet{ID: "f1", Kind: KindState, Payload: map[string]any{"n": 1}})))
	require.NoError(t, s.Apply(AddScope("s1")))
	require.NoError(t, s.Apply(AddStream(Stream{ID: "st1"})))
	s.AppendFrame(NewIncomingFrame(1, "st1", []Delta{AddScope("s1")}))

	snap := s.Snapshot()

	other := NewWorldState()
	other.Restore(snap)
	assert.Equal(t, snap, other.Snapshot())
	assert.Equal(t, uint64(1), other.Sequence())
}
