package core

// Op discriminates the delta union. Each operation carries only the fields
// relevant to its tag; all other fields stay zero and are omitted from JSON.
type Op string

const (
	// OpAddFacet inserts (or replaces) a facet.
	OpAddFacet Op = "addFacet"
	// OpChangeState mutates a durable-state facet's content/payload in place.
	OpChangeState Op = "changeState"
	// OpRemoveFacet hides or deletes a facet (see RemoveMode).
	OpRemoveFacet Op = "removeFacet"
	// OpAddScope activates a visibility scope.
	OpAddScope Op = "addScope"
	// OpDeleteScope deactivates a visibility scope.
	OpDeleteScope Op = "deleteScope"
	// OpAddStream registers a communication stream.
	OpAddStream Op = "addStream"
	// OpUpdateStream replaces a stream descriptor.
	OpUpdateStream Op = "updateStream"
	// OpDeleteStream removes a stream; clears the active-stream pointer if it
	// pointed at the deleted stream.
	OpDeleteStream Op = "deleteStream"
	// OpAddAgent registers an agent descriptor.
	OpAddAgent Op = "addAgent"
	// OpUpdateAgent replaces an agent descriptor.
	OpUpdateAgent Op = "updateAgent"
	// OpRemoveAgent removes an agent descriptor.
	OpRemoveAgent Op = "removeAgent"

	// Agent intents. Legal only inside outgoing frames; the sequencer expands
	// them into speech/thought/action facets before they reach the store.

	// OpSpeak emits an utterance to the destination stream.
	OpSpeak Op = "speak"
	// OpThink records private reasoning.
	OpThink Op = "think"
	// OpAct invokes a tool or world action.
	OpAct Op = "act"
)

// RemoveMode selects between the two facet retirement modes.
type RemoveMode string

const (
	// RemoveHide excludes the facet from active views but keeps it in the
	// store and mutable via changeState.
	RemoveHide RemoveMode = "hide"
	// RemoveDelete excludes the facet and marks it (with its children) for
	// the next purge pass.
	RemoveDelete RemoveMode = "delete"
)

// ActionCall names a tool action and its arguments inside an act intent.
type ActionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Delta is a single state-mutating instruction within a frame. It is a tagged
// union over Op; use the constructor functions rather than filling fields by
// hand so only tag-relevant fields are populated.
type Delta struct {
	Op      Op             `json:"op"`
	Facet   *Facet         `json:"facet,omitempty"`
	FacetID string         `json:"facetId,omitempty"`
	Content *string        `json:"content,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Mode    RemoveMode     `json:"mode,omitempty"`
	Scope   string         `json:"scope,omitempty"`
	Stream  *Stream        `json:"stream,omitempty"`
	Agent   *Agent         `json:"agent,omitempty"`
	Text    string         `json:"text,omitempty"`
	Action  *ActionCall    `json:"action,omitempty"`
}

// AddFacet creates an addFacet delta. The facet is cloned on application, not
// here, so callers may still adjust it before the frame is committed.
func AddFacet(f Facet) Delta { return Delta{Op: OpAddFacet, Facet: &f} }

// ChangeState creates a changeState delta. A nil content leaves the stored
// content untouched; a non-nil payload replaces the stored payload wholesale.
func ChangeState(facetID string, content *string, payload map[string]any) Delta {
	return Delta{Op: OpChangeState, FacetID: facetID, Content: content, Payload: payload}
}

// RemoveFacet creates a removeFacet delta with the given mode.
func RemoveFacet(facetID string, mode RemoveMode) Delta {
	return Delta{Op: OpRemoveFacet, FacetID: facetID, Mode: mode}
}

// AddScope activates the named visibility scope.
func AddScope(scope string) Delta { return Delta{Op: OpAddScope, Scope: scope} }

// DeleteScope deactivates the named visibility scope.
func DeleteScope(scope string) Delta { return Delta{Op: OpDeleteScope, Scope: scope} }

// AddStream registers a stream descriptor.
func AddStream(s Stream) Delta { return Delta{Op: OpAddStream, Stream: &s} }

// UpdateStream replaces a stream descriptor.
func UpdateStream(s Stream) Delta { return Delta{Op: OpUpdateStream, Stream: &s} }

// DeleteStream removes the stream with the given id.
func DeleteStream(streamID string) Delta { return Delta{Op: OpDeleteStream, Stream: &Stream{ID: streamID}} }

// AddAgent registers an agent descriptor.
func AddAgent(a Agent) Delta { return Delta{Op: OpAddAgent, Agent: &a} }

// UpdateAgent replaces an agent descriptor.
func UpdateAgent(a Agent) Delta { return Delta{Op: OpUpdateAgent, Agent: &a} }

// RemoveAgent removes the agent with the given id.
func RemoveAgent(agentID string) Delta { return Delta{Op: OpRemoveAgent, Agent: &Agent{ID: agentID}} }

// Speak creates a speak intent.
func Speak(text string) Delta { return Delta{Op: OpSpeak, Text: text} }

// Think creates a think intent.
func Think(text string) Delta { return Delta{Op: OpThink, Text: text} }

// Act creates an act intent.
func Act(name string, arguments map[string]any) Delta {
	return Delta{Op: OpAct, Action: &ActionCall{Name: name, Arguments: arguments}}
}

// IsIntent reports whether the delta is an agent intent (speak/think/act).
func (d Delta) IsIntent() bool {
	return d.Op == OpSpeak || d.Op == OpThink || d.Op == OpAct
}

// Clone returns a deep copy of the delta.
func (d Delta) Clone() Delta {
	cp := d
	if d.Facet != nil {
		f := d.Facet.Clone()
		cp.Facet = &f
	}
	if d.Content != nil {
		c := *d.Content
		cp.Content = &c
	}
	cp.Payload = clonePayload(d.Payload)
	if d.Stream != nil {
		s := d.Stream.Clone()
		cp.Stream = &s
	}
	if d.Agent != nil {
		a := d.Agent.Clone()
		cp.Agent = &a
	}
	if d.Action != nil {
		a := *d.Action
		a.Arguments = clonePayload(d.Action.Arguments)
		cp.Action = &a
	}
	return cp
}
