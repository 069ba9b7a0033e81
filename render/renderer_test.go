package render

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/worldmesh/core"
	"github.com/hupe1980/worldmesh/model"
)

func snapshotWith(t *testing.T, deltas ...core.Delta) core.Snapshot {
	t.Helper()
	state := core.NewWorldState()
	for _, d := range deltas {
		require.NoError(t, state.Apply(d))
	}
	return state.Snapshot()
}

func TestPromptRenderer_AmbientFirstThenFrameOrder(t *testing.T) {
	snap := snapshotWith(t,
		core.AddAgent(core.Agent{ID: "a1", Name: "Ada"}),
		core.AddFacet(core.Facet{ID: "note", Kind: core.KindState, Content: "the door is locked"}),
		core.AddFacet(core.Facet{ID: "mood", Kind: core.KindAmbient, Content: "It is raining."}),
		core.AddFacet(core.Facet{ID: "sp1", Kind: core.KindSpeech, Content: "hello", AgentID: "a2"}),
	)

	req, err := New().Render(snap, "a1")
	require.NoError(t, err)

	assert.Contains(t, req.System, "You are Ada")
	assert.Contains(t, req.System, "It is raining.", "ambient facets join the system prompt")

	require.Len(t, req.Messages, 1)
	assert.Equal(t, model.RoleUser, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Text, "the door is locked")
	assert.True(t, strings.Index(req.Messages[0].Text, "the door is locked") <
		strings.Index(req.Messages[0].Text, "a2: hello"), "frame order preserved")
}

func TestPromptRenderer_RolesAndPrivacy(t *testing.T) {
	snap := snapshotWith(t,
		core.AddAgent(core.Agent{ID: "a1", Name: "Ada"}),
		core.AddAgent(core.Agent{ID: "a2", Name: "Bob"}),
		core.AddFacet(core.Facet{ID: "s1", Kind: core.KindSpeech, Content: "hi Ada", AgentID: "a2"}),
		core.AddFacet(core.Facet{ID: "t1", Kind: core.KindThought, Content: "secret", AgentID: "a2"}),
		core.AddFacet(core.Facet{ID: "s2", Kind: core.KindSpeech, Content: "hi Bob", AgentID: "a1"}),
		core.AddFacet(core.Facet{ID: "t2", Kind: core.KindThought, Content: "I like Bob", AgentID: "a1"}),
	)

	req, err := New().Render(snap, "a1")
	require.NoError(t, err)

	require.Len(t, req.Messages, 2)
	assert.Equal(t, model.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "Bob: hi Ada", req.Messages[0].Text)
	assert.NotContains(t, req.Messages[0].Text, "secret", "other agents' thoughts stay private")

	assert.Equal(t, model.RoleAssistant, req.Messages[1].Role)
	assert.Contains(t, req.Messages[1].Text, "hi Bob")
	assert.Contains(t, req.Messages[1].Text, "<think>I like Bob</think>")
}

func TestPromptRenderer_ToolFacets(t *testing.T) {
	type openArgs struct {
		Target string `json:"target" description:"what to open"`
		Force  *bool  `json:"force,omitempty"`
	}
	snap := snapshotWith(t,
		core.AddAgent(core.Agent{ID: "a1"}),
		core.AddFacet(NewToolFacet("open_box", "Open a container.", openArgs{})),
	)

	req, err := New().Render(snap, "a1")
	require.NoError(t, err)
	require.Len(t, req.Tools, 1)

	tool := req.Tools[0]
	assert.Equal(t, "open_box", tool.Name)
	assert.Equal(t, "Open a container.", tool.Description)
	props, ok := tool.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "target")
	assert.Equal(t, []string{"target"}, tool.Parameters["required"])
	assert.Empty(t, req.Messages, "tool facets do not enter the transcript")
}

func TestPromptRenderer_ChildrenNested(t *testing.T) {
	snap := snapshotWith(t,
		core.AddAgent(core.Agent{ID: "a1"}),
		core.AddFacet(core.Facet{
			ID: "inv", Kind: core.KindState, Content: "inventory",
			Children: []core.Facet{{ID: "sword", Kind: core.KindState, Content: "a sword"}},
		}),
	)

	req, err := New().Render(snap, "a1")
	require.NoError(t, err)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Text, "inventory\n  a sword")
}

func TestPromptRenderer_UnknownAgent(t *testing.T) {
	snap := snapshotWith(t)
	_, err := New().Render(snap, "ghost")
	require.Error(t, err)
}

func TestPlanRanges(t *testing.T) {
	frames := []core.Frame{{Sequence: 1}, {Sequence: 2}, {Sequence: 3}, {Sequence: 4}}

	assert.Nil(t, PlanRanges(frames, []int{10, 10, 10, 10}, 50), "within budget")

	got := PlanRanges(frames, []int{30, 30, 10, 10}, 40)
	require.Len(t, got, 1)
	assert.Equal(t, Range{From: 1, To: 2}, got[0])

	assert.Nil(t, PlanRanges(frames, []int{1, 1}, 10), "mismatched lengths")
}

func TestSummaryCompressor(t *testing.T) {
	m := model.NewMockModel(model.Response{Text: "  Ada opened the box.  "})
	c := NewSummaryCompressor(m)

	frames := []core.Frame{
		core.NewOutgoingFrame(1, "a1", "st1", []core.Delta{core.Speak("let me open it")}),
		core.NewIncomingFrame(2, "st1", []core.Delta{
			core.ChangeState("box1", nil, map[string]any{"open": true}),
		}),
	}

	summary, err := c.Compress(context.Background(), frames)
	require.NoError(t, err)
	assert.Equal(t, "Ada opened the box.", summary)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Messages[0].Text, "frame 1: said: let me open it")
	assert.Contains(t, reqs[0].Messages[0].Text, `frame 2: changed "box1" (open=true)`)

	empty, err := c.Compress(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
