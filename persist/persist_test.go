package persist

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/worldmesh/core"
)

func sampleSnapshot(t *testing.T) core.Snapshot {
	t.Helper()
	state := core.NewWorldState()
	require.NoError(t, state.Apply(core.AddStream(core.Stream{ID: "st1", Name: "main"})))
	require.NoError(t, state.Apply(core.AddAgent(core.Agent{ID: "a1", Name: "Ada"})))
	require.NoError(t, state.Apply(core.AddScope("daylight")))
	require.NoError(t, state.Apply(core.AddFacet(core.Facet{
		ID: "box1", Kind: core.KindState, Content: "a wooden box",
		Payload:  map[string]any{"open": false},
		Children: []core.Facet{{ID: "coin", Kind: core.KindState, Content: "a coin"}},
	})))
	state.AppendFrame(core.NewIncomingFrame(1, "st1", []core.Delta{
		core.AddFacet(core.Facet{ID: "box1", Kind: core.KindState}),
	}))
	return state.Snapshot()
}

func TestInMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, ok, err := store.Load(ctx, "sp1")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := sampleSnapshot(t)
	require.NoError(t, store.Save(ctx, "sp1", snap))

	got, ok, err := store.Load(ctx, "sp1")
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Fatalf("snapshot round trip (-saved +loaded):\n%s", diff)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "mesh", "snapshots.db"))
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Load(ctx, "sp1")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := sampleSnapshot(t)
	require.NoError(t, store.Save(ctx, "sp1", snap))

	got, ok, err := store.Load(ctx, "sp1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.Sequence, got.Sequence)
	require.Contains(t, got.Facets, "box1")
	assert.Equal(t, "a wooden box", got.Facets["box1"].Content)
	require.Len(t, got.Facets["box1"].Children, 1)
	assert.Len(t, got.History, 1)
	assert.Equal(t, []string{"daylight"}, got.Scopes)
}

func TestSQLiteStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	defer store.Close()

	first := sampleSnapshot(t)
	require.NoError(t, store.Save(ctx, "sp1", first))

	second := first
	second.Sequence = 99
	require.NoError(t, store.Save(ctx, "sp1", second))

	got, ok, err := store.Load(ctx, "sp1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(99), got.Sequence)

	// Spaces are isolated by id.
	_, ok, err = store.Load(ctx, "sp2")
	require.NoError(t, err)
	assert.False(t, ok)
}
