package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/worldmesh/core"
	"github.com/hupe1980/worldmesh/model"
)

// Range marks a contiguous run of committed frames by sequence number,
// inclusive on both ends.
type Range struct {
	From uint64
	To   uint64
}

// Compressor summarizes a run of frames into replacement text. Frames are
// immutable; the summary is delivered back to the space as an ambient facet,
// never by editing history.
type Compressor interface {
	Compress(ctx context.Context, frames []core.Frame) (string, error)
}

// PlanRanges selects the oldest frames for compression given per-frame token
// counts and a total budget. It returns at most one range: the shortest
// oldest prefix whose removal brings the total within budget. A nil result
// means the transcript already fits.
func PlanRanges(frames []core.Frame, tokenCounts []int, budget int) []Range {
	if len(frames) != len(tokenCounts) || budget <= 0 {
		return nil
	}
	total := 0
	for _, c := range tokenCounts {
		total += c
	}
	if total <= budget {
		return nil
	}

	cut := 0
	for i := 0; i < len(frames) && total > budget; i++ {
		total -= tokenCounts[i]
		cut = i + 1
	}
	if cut == 0 {
		return nil
	}
	return []Range{{From: frames[0].Sequence, To: frames[cut-1].Sequence}}
}

// SummaryCompressor compresses frames by asking a language model to summarize
// the transcript they produced.
type SummaryCompressor struct {
	model model.Model
}

var _ Compressor = (*SummaryCompressor)(nil)

// NewSummaryCompressor creates a model-backed compressor.
func NewSummaryCompressor(m model.Model) *SummaryCompressor {
	return &SummaryCompressor{model: m}
}

// Compress implements Compressor.
func (c *SummaryCompressor) Compress(ctx context.Context, frames []core.Frame) (string, error) {
	if len(frames) == 0 {
		return "", nil
	}

	transcript := frameTranscript(frames)
	if transcript == "" {
		return "", nil
	}

	prompt := fmt.Sprintf(`Summarize the following world history into a concise context string.
Retain key facts, decisions, state changes, and anything an agent would need to
continue acting coherently. Discard small talk and redundant detail.

History:
%s

Summary:`, transcript)

	res, err := c.model.Generate(ctx, model.Request{
		System:   "You are a context compressor. You summarize world history so an agent can retain memory within a bounded context window.",
		Messages: []model.Message{{Role: model.RoleUser, Text: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("summary compression failed: %w", err)
	}

	return strings.TrimSpace(res.Text), nil
}

// frameTranscript flattens frame operations into readable history lines.
func frameTranscript(frames []core.Frame) string {
	var sb strings.Builder
	for _, f := range frames {
		for _, d := range f.Operations {
			line := deltaLine(d)
			if line == "" {
				continue
			}
			fmt.Fprintf(&sb, "frame %d: %s\n", f.Sequence, line)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func deltaLine(d core.Delta) string {
	switch d.Op {
	case core.OpSpeak:
		return fmt.Sprintf("said: %s", d.Text)
	case core.OpThink:
		return fmt.Sprintf("thought: %s", d.Text)
	case core.OpAct:
		if d.Action != nil {
			return fmt.Sprintf("acted: %s", d.Action.Name)
		}
	case core.OpAddFacet:
		if d.Facet != nil {
			return fmt.Sprintf("added %s %q %s", d.Facet.Kind, d.Facet.ID, facetText(*d.Facet, 0))
		}
	case core.OpChangeState:
		if len(d.Payload) > 0 {
			return fmt.Sprintf("changed %q %s", d.FacetID, payloadText(d.Payload))
		}
		return fmt.Sprintf("changed %q", d.FacetID)
	case core.OpRemoveFacet:
		return fmt.Sprintf("removed %q (%s)", d.FacetID, d.Mode)
	}
	return ""
}
