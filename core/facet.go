package core

// Kind tags a facet with its role in the world model. The vocabulary is
// closed: the store rejects facets with kinds it does not know.
type Kind string

const (
	// KindEvent is a transient record of something that happened.
	KindEvent Kind = "event"
	// KindState is durable state, the only kind mutable via changeState.
	KindState Kind = "state"
	// KindAmbient is always-visible context (system instructions, norms).
	KindAmbient Kind = "ambient"
	// KindTool declares a callable tool to agents.
	KindTool Kind = "tool"
	// KindSpeech is an agent utterance addressed to a stream.
	KindSpeech Kind = "speech"
	// KindThought is an agent's private reasoning trace.
	KindThought Kind = "thought"
	// KindAction is an agent's tool/world action.
	KindAction Kind = "action"
	// KindActivation requests that an agent take a turn.
	KindActivation Kind = "activation"
	// KindComponent is internal component state surfaced into the world model.
	KindComponent Kind = "component"
)

var knownKinds = map[Kind]struct{}{
	KindEvent:      {},
	KindState:      {},
	KindAmbient:    {},
	KindTool:       {},
	KindSpeech:     {},
	KindThought:    {},
	KindAction:     {},
	KindActivation: {},
	KindComponent:  {},
}

// KnownKind reports whether k belongs to the closed kind vocabulary.
func KnownKind(k Kind) bool {
	_, ok := knownKinds[k]
	return ok
}

// Facet is the atomic unit of shared world state.
//
// Children are nested presentation, not a separate ownership graph: they are
// cloned in with the parent and never shared between facets.
type Facet struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Content   string         `json:"content,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Scopes    []string       `json:"scopes,omitempty"`
	Ephemeral bool           `json:"ephemeral,omitempty"`
	AgentID   string         `json:"agentId,omitempty"`
	StreamID  string         `json:"streamId,omitempty"`
	Children  []Facet        `json:"children,omitempty"`
}

// Clone returns a deep copy of the facet including payload and children.
func (f Facet) Clone() Facet {
	cp := f
	cp.Payload = clonePayload(f.Payload)
	if f.Scopes != nil {
		cp.Scopes = append([]string(nil), f.Scopes...)
	}
	if f.Children != nil {
		cp.Children = make([]Facet, len(f.Children))
		for i, c := range f.Children {
			cp.Children[i] = c.Clone()
		}
	}
	return cp
}

// DescendantIDs returns the ids of all nested children, depth first.
func (f Facet) DescendantIDs() []string {
	var ids []string
	for _, c := range f.Children {
		ids = append(ids, c.ID)
		ids = append(ids, c.DescendantIDs()...)
	}
	return ids
}

// clonePayload deep-copies a JSON-shaped payload (maps, slices, scalars).
func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	cp := make(map[string]any, len(p))
	for k, v := range p {
		cp[k] = cloneValue(v)
	}
	return cp
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clonePayload(t)
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = cloneValue(e)
		}
		return cp
	default:
		return v
	}
}
