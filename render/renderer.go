// Package render turns derived world state into model requests. The default
// PromptRenderer flattens the active view into a system prompt plus a
// role-tagged transcript; the Compressor boundary summarizes old frame ranges
// when the transcript outgrows its token budget.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/worldmesh/core"
	"github.com/hupe1980/worldmesh/internal/util"
	"github.com/hupe1980/worldmesh/model"
)

// Renderer produces the model request for an agent's turn from a state
// snapshot.
type Renderer interface {
	Render(snap core.Snapshot, agentID string) (model.Request, error)
}

// DefaultSystemTemplate is the system prompt used when none is configured.
// It is expanded with {{.AgentName}} and {{.AgentID}}.
const DefaultSystemTemplate = `You are {{.AgentName}}, an agent acting in a shared world.
Reply with what you want to say. Wrap private reasoning in <think>...</think>.
Use the provided tools to act on the world.`

// Options configures a PromptRenderer.
type Options struct {
	// SystemTemplate overrides DefaultSystemTemplate.
	SystemTemplate string

	// MaxMessages caps the transcript length; zero means unlimited. When the
	// cap is exceeded the oldest messages are dropped.
	MaxMessages int
}

// PromptRenderer is the default Renderer. Ambient facets always render first,
// into the system prompt; everything else renders in frame order, so the
// transcript the model sees is exactly the order the world evolved in.
type PromptRenderer struct {
	opts Options
}

var _ Renderer = (*PromptRenderer)(nil)

// New creates a PromptRenderer.
func New(optFns ...func(o *Options)) *PromptRenderer {
	opts := Options{SystemTemplate: DefaultSystemTemplate}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &PromptRenderer{opts: opts}
}

// Render implements Renderer.
func (r *PromptRenderer) Render(snap core.Snapshot, agentID string) (model.Request, error) {
	agent, ok := snap.Agents[agentID]
	if !ok {
		return model.Request{}, fmt.Errorf("render: unknown agent %q", agentID)
	}
	name := agent.Name
	if name == "" {
		name = agent.ID
	}

	system, err := util.RenderTemplate(r.opts.SystemTemplate, map[string]any{
		"AgentName": name,
		"AgentID":   agent.ID,
	})
	if err != nil {
		return model.Request{}, fmt.Errorf("render: system template: %w", err)
	}

	var req model.Request
	var ambient []string
	for _, f := range snap.ActiveFacets() {
		switch f.Kind {
		case core.KindAmbient:
			ambient = append(ambient, facetText(f, 0))
		case core.KindTool:
			req.Tools = append(req.Tools, toolDefinition(f))
		case core.KindActivation:
			// Activation facets drive dispatch, not prompts.
		default:
			role := model.RoleUser
			if f.AgentID == agentID && (f.Kind == core.KindSpeech || f.Kind == core.KindThought || f.Kind == core.KindAction) {
				role = model.RoleAssistant
			}
			req.Messages = appendMessage(req.Messages, role, renderFacet(f, agentID, snap))
		}
	}

	if len(ambient) > 0 {
		system += "\n\n" + strings.Join(ambient, "\n")
	}
	req.System = system

	if r.opts.MaxMessages > 0 && len(req.Messages) > r.opts.MaxMessages {
		req.Messages = req.Messages[len(req.Messages)-r.opts.MaxMessages:]
	}
	return req, nil
}

// appendMessage merges consecutive same-role messages so the transcript stays
// well-formed for providers that reject back-to-back turns of one role.
func appendMessage(msgs []model.Message, role model.Role, text string) []model.Message {
	if text == "" {
		return msgs
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == role {
		msgs[n-1].Text += "\n" + text
		return msgs
	}
	return append(msgs, model.Message{Role: role, Text: text})
}

// renderFacet produces the transcript line for one facet. Speech and thought
// by the acting agent render bare (the model said them); everything else is
// labeled so the model can tell world changes from conversation.
func renderFacet(f core.Facet, agentID string, snap core.Snapshot) string {
	var line string
	switch f.Kind {
	case core.KindSpeech:
		if f.AgentID == agentID {
			line = f.Content
		} else {
			line = fmt.Sprintf("%s: %s", speakerName(f.AgentID, snap), f.Content)
		}
	case core.KindThought:
		if f.AgentID != agentID {
			return "" // other agents' thoughts are private
		}
		line = fmt.Sprintf("<think>%s</think>", f.Content)
	case core.KindAction:
		line = fmt.Sprintf("[%s acted: %s]", speakerName(f.AgentID, snap), f.Content)
	case core.KindEvent:
		line = fmt.Sprintf("[event] %s", facetText(f, 0))
	default:
		line = facetText(f, 0)
	}
	return line
}

// facetText renders a facet's content plus payload, with children indented
// beneath it.
func facetText(f core.Facet, depth int) string {
	indent := strings.Repeat("  ", depth)
	var sb strings.Builder
	sb.WriteString(indent)
	if f.Content != "" {
		sb.WriteString(f.Content)
	} else {
		sb.WriteString(f.ID)
	}
	if len(f.Payload) > 0 {
		sb.WriteString(" ")
		sb.WriteString(payloadText(f.Payload))
	}
	for _, child := range f.Children {
		sb.WriteString("\n")
		sb.WriteString(facetText(child, depth+1))
	}
	return sb.String()
}

func payloadText(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func speakerName(agentID string, snap core.Snapshot) string {
	if a, ok := snap.Agents[agentID]; ok && a.Name != "" {
		return a.Name
	}
	if agentID == "" {
		return "unknown"
	}
	return agentID
}

// toolDefinition reads a tool facet's payload: "description" and "parameters"
// keys, with the facet id as the tool name.
func toolDefinition(f core.Facet) model.ToolDefinition {
	td := model.ToolDefinition{Name: f.ID, Description: f.Content}
	if desc, ok := f.Payload["description"].(string); ok && desc != "" {
		td.Description = desc
	}
	if params, ok := f.Payload["parameters"].(map[string]any); ok {
		td.Parameters = params
	}
	return td
}

// NewToolFacet builds a tool facet whose parameter schema is derived from a
// Go struct's fields via reflection.
func NewToolFacet(name, description string, paramsStruct any) core.Facet {
	return core.Facet{
		ID:      name,
		Kind:    core.KindTool,
		Content: description,
		Payload: map[string]any{
			"description": description,
			"parameters":  util.CreateSchema(paramsStruct),
		},
	}
}
