// Package turn drives a single agent turn: render the world for the agent,
// call the model, parse the reply into intents, and record the outgoing
// frame.
package turn

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hupe1980/worldmesh/core"
	"github.com/hupe1980/worldmesh/internal/util"
	"github.com/hupe1980/worldmesh/logging"
	"github.com/hupe1980/worldmesh/model"
	"github.com/hupe1980/worldmesh/render"
	"github.com/hupe1980/worldmesh/sequencer"
)

// Options holds dependency overrides passed to New().
type Options struct {
	// Renderer flattens snapshots into model requests. Defaults to the
	// render package's PromptRenderer.
	Renderer render.Renderer

	// Logger receives turn diagnostics. Defaults to NoOp.
	Logger logging.Logger

	// ValidateToolArgs rejects model tool calls whose arguments fail the tool
	// facet's parameter schema. Enabled by default.
	ValidateToolArgs bool

	// Temperature and MaxTokens are forwarded on every request.
	Temperature float64
	MaxTokens   int
}

// Driver takes turns for agents against a sequencer.
type Driver struct {
	seq   *sequencer.Sequencer
	model model.Model
	opts  Options
}

// New creates a turn driver over a sequencer and a model.
func New(seq *sequencer.Sequencer, m model.Model, optFns ...func(o *Options)) *Driver {
	opts := Options{
		Renderer:         render.New(),
		Logger:           logging.NoOpLogger{},
		ValidateToolArgs: true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Driver{seq: seq, model: m, opts: opts}
}

// TakeTurn runs one agent turn on the given stream. An empty streamID targets
// the snapshot's current stream. The committed outgoing frame is returned; a
// reply that parses to no intents commits nothing and returns a zero frame.
func (d *Driver) TakeTurn(ctx context.Context, agentID, streamID string) (core.Frame, error) {
	snap := d.seq.Snapshot()
	if streamID == "" {
		streamID = snap.CurrentStream
	}

	req, err := d.opts.Renderer.Render(snap, agentID)
	if err != nil {
		return core.Frame{}, fmt.Errorf("turn: %w", err)
	}
	if d.opts.Temperature > 0 {
		req.Temperature = d.opts.Temperature
	}
	if d.opts.MaxTokens > 0 {
		req.MaxTokens = d.opts.MaxTokens
	}

	start := time.Now()
	res, err := d.model.Generate(ctx, req)
	if err != nil {
		return core.Frame{}, fmt.Errorf("turn: model: %w", err)
	}
	d.opts.Logger.Debug("model call completed",
		"agent", agentID, "finish_reason", res.FinishReason, "duration", time.Since(start))

	deltas, err := d.parseReply(snap, res)
	if err != nil {
		return core.Frame{}, fmt.Errorf("turn: %w", err)
	}
	if len(deltas) == 0 {
		d.opts.Logger.Debug("reply carried no intents, no frame committed", "agent", agentID)
		return core.Frame{}, nil
	}

	frame := core.NewOutgoingFrame(d.seq.NextSequence(), agentID, streamID, deltas)
	if err := d.seq.RecordOutgoing(frame); err != nil {
		return core.Frame{}, fmt.Errorf("turn: %w", err)
	}
	return frame, nil
}

var thinkRe = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// parseReply maps the reply onto intents: <think> blocks become think deltas,
// remaining text becomes one speak delta, tool calls become act deltas.
func (d *Driver) parseReply(snap core.Snapshot, res model.Response) ([]core.Delta, error) {
	var deltas []core.Delta

	text := res.Text
	for _, m := range thinkRe.FindAllStringSubmatch(text, -1) {
		if thought := strings.TrimSpace(m[1]); thought != "" {
			deltas = append(deltas, core.Think(thought))
		}
	}
	if speech := strings.TrimSpace(thinkRe.ReplaceAllString(text, "")); speech != "" {
		deltas = append(deltas, core.Speak(speech))
	}

	for _, tc := range res.ToolCalls {
		if d.opts.ValidateToolArgs {
			if err := d.validateToolCall(snap, tc); err != nil {
				return nil, err
			}
		}
		deltas = append(deltas, core.Act(tc.Name, tc.Arguments))
	}
	return deltas, nil
}

func (d *Driver) validateToolCall(snap core.Snapshot, tc model.ToolCall) error {
	facet, ok := snap.ActiveFacet(tc.Name)
	if !ok || facet.Kind != core.KindTool {
		return fmt.Errorf("tool call %q does not match an active tool facet", tc.Name)
	}
	schema, ok := facet.Payload["parameters"].(map[string]any)
	if !ok {
		return nil // tool declared no parameters
	}
	args := tc.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if err := util.ValidateParameters(args, schema); err != nil {
		return fmt.Errorf("tool call %q: %w", tc.Name, err)
	}
	return nil
}
