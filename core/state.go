package core

import (
	"sort"

	"github.com/hupe1980/worldmesh/logging"
)

// StateOptions configures a WorldState.
type StateOptions struct {
	// Logger receives warning-level diagnostics for skipped deltas.
	Logger logging.Logger
}

// WorldState owns the derived view of a space: the keyed facet collection,
// the active visibility scopes, the stream/agent registries, the removal
// ledger, the immutable frame history and the current sequence number.
//
// WorldState is not safe for concurrent use. The space model is single-writer:
// exactly one frame commit is in flight at a time, and the sequencer owns the
// lock around it. Handlers only ever see Snapshot copies.
type WorldState struct {
	facets        map[string]*Facet
	order         []string // facet insertion order, drives active-view ordering
	scopes        map[string]struct{}
	streams       map[string]Stream
	agents        map[string]Agent
	currentStream string
	currentAgent  string
	removed       map[string]RemoveMode
	history       []Frame
	sequence      uint64
	logger        logging.Logger
}

// NewWorldState constructs an empty store.
func NewWorldState(optFns ...func(o *StateOptions)) *WorldState {
	opts := StateOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &WorldState{
		facets:  make(map[string]*Facet),
		scopes:  make(map[string]struct{}),
		streams: make(map[string]Stream),
		agents:  make(map[string]Agent),
		removed: make(map[string]RemoveMode),
		logger:  opts.Logger,
	}
}

// NewWorldStateFromSnapshot constructs a store pre-populated from a snapshot.
// The pipeline uses this for its scratch state during phases 1–2 and the fork
// engine for its restore path.
func NewWorldStateFromSnapshot(snap Snapshot, optFns ...func(o *StateOptions)) *WorldState {
	s := NewWorldState(optFns...)
	s.Restore(snap)
	return s
}

// Sequence returns the sequence number of the most recently applied frame.
func (s *WorldState) Sequence() uint64 { return s.sequence }

// Apply mutates the store by one delta. Unknown operations and facet kinds
// are logged at warning level and skipped; they never abort the frame.
// ChangeState against an unknown facet id is silently ignored, tolerating
// handlers that race to mutate facets a sibling handler creates later in the
// same phase iteration.
func (s *WorldState) Apply(d Delta) error {
	switch d.Op {
	case OpAddFacet:
		s.applyAddFacet(d)
	case OpChangeState:
		s.applyChangeState(d)
	case OpRemoveFacet:
		s.applyRemoveFacet(d)
	case OpAddScope:
		s.scopes[d.Scope] = struct{}{}
	case OpDeleteScope:
		delete(s.scopes, d.Scope)
	case OpAddStream, OpUpdateStream:
		if d.Stream == nil {
			s.logger.Warn("stream delta without stream descriptor, skipping", "op", d.Op)
			return nil
		}
		s.streams[d.Stream.ID] = d.Stream.Clone()
		if s.currentStream == "" && d.Op == OpAddStream {
			s.currentStream = d.Stream.ID
		}
	case OpDeleteStream:
		if d.Stream == nil {
			s.logger.Warn("deleteStream without stream descriptor, skipping")
			return nil
		}
		delete(s.streams, d.Stream.ID)
		if s.currentStream == d.Stream.ID {
			s.currentStream = ""
		}
	case OpAddAgent, OpUpdateAgent:
		if d.Agent == nil {
			s.logger.Warn("agent delta without agent descriptor, skipping", "op", d.Op)
			return nil
		}
		s.agents[d.Agent.ID] = d.Agent.Clone()
		if s.currentAgent == "" && d.Op == OpAddAgent {
			s.currentAgent = d.Agent.ID
		}
	case OpRemoveAgent:
		if d.Agent == nil {
			s.logger.Warn("removeAgent without agent descriptor, skipping")
			return nil
		}
		delete(s.agents, d.Agent.ID)
		if s.currentAgent == d.Agent.ID {
			s.currentAgent = ""
		}
	case OpSpeak, OpThink, OpAct:
		// Intents are expanded by the sequencer before application; one
		// reaching the store means a handler emitted it into an incoming frame.
		s.logger.Warn("agent intent outside outgoing frame, skipping", "op", d.Op)
	default:
		s.logger.Warn("unknown operation, skipping", "op", d.Op)
	}
	return nil
}

func (s *WorldState) applyAddFacet(d Delta) {
	if d.Facet == nil {
		s.logger.Warn("addFacet without facet, skipping")
		return
	}
	if !KnownKind(d.Facet.Kind) {
		s.logger.Warn("unknown facet kind, skipping", "kind", d.Facet.Kind, "facet_id", d.Facet.ID)
		return
	}
	f := d.Facet.Clone()
	if _, exists := s.facets[f.ID]; !exists {
		s.order = append(s.order, f.ID)
	}
	s.facets[f.ID] = &f
	// Re-adding a facet supersedes a prior removal.
	delete(s.removed, f.ID)
}

func (s *WorldState) applyChangeState(d Delta) {
	f, ok := s.facets[d.FacetID]
	if !ok {
		// Deliberate tolerance: a handler may change a facet that a sibling
		// handler creates later in the same iteration.
		return
	}
	if f.Kind != KindState {
		s.logger.Warn("changeState against non-state facet, skipping", "facet_id", d.FacetID, "kind", f.Kind)
		return
	}
	if s.removed[d.FacetID] == RemoveDelete {
		// Deleted facets are retired; hidden ones stay mutable.
		return
	}
	if d.Content != nil {
		f.Content = *d.Content
	}
	if d.Payload != nil {
		f.Payload = clonePayload(d.Payload)
	}
}

func (s *WorldState) applyRemoveFacet(d Delta) {
	if _, ok := s.facets[d.FacetID]; !ok {
		return
	}
	mode := d.Mode
	if mode != RemoveHide && mode != RemoveDelete {
		s.logger.Warn("removeFacet with unknown mode, defaulting to hide", "facet_id", d.FacetID, "mode", d.Mode)
		mode = RemoveHide
	}
	s.removed[d.FacetID] = mode
}

// Facet returns a clone of the facet with the given id, if present. Hidden
// and delete-marked facets are still reachable here until purged; only
// active-view queries exclude them.
func (s *WorldState) Facet(id string) (Facet, bool) {
	f, ok := s.facets[id]
	if !ok {
		return Facet{}, false
	}
	return f.Clone(), true
}

// ActiveFacets returns clones of the facets in the active view, in insertion
// order: removed (hidden or deleted) facets are excluded, as are facets gated
// by a scope that is not currently active.
func (s *WorldState) ActiveFacets() []Facet {
	active := make([]Facet, 0, len(s.order))
	for _, id := range s.order {
		f, ok := s.facets[id]
		if !ok {
			continue
		}
		if _, gone := s.removed[id]; gone {
			continue
		}
		if !s.scopesActive(f.Scopes) {
			continue
		}
		active = append(active, f.Clone())
	}
	return active
}

// scopesActive reports whether every scope naming the facet is active. A
// facet with no scopes is always visible.
func (s *WorldState) scopesActive(scopes []string) bool {
	for _, sc := range scopes {
		if _, ok := s.scopes[sc]; !ok {
			return false
		}
	}
	return true
}

// Purge physically deletes every facet marked for deletion from the facet
// map and returns their ids in insertion order. Nothing purges implicitly;
// this is the explicit cleanup pass.
func (s *WorldState) Purge() []string {
	var purged []string
	for _, id := range s.order {
		if s.removed[id] != RemoveDelete {
			continue
		}
		delete(s.facets, id)
		delete(s.removed, id)
		purged = append(purged, id)
	}
	if len(purged) > 0 {
		s.compactOrder()
	}
	return purged
}

// SweepEphemeral removes ephemeral facets at frame end, including ephemeral
// children nested under durable parents, and returns the swept ids in
// insertion order.
func (s *WorldState) SweepEphemeral() []string {
	var swept []string
	for _, id := range s.order {
		f, ok := s.facets[id]
		if !ok {
			continue
		}
		if f.Ephemeral {
			delete(s.facets, id)
			delete(s.removed, id)
			swept = append(swept, id)
			continue
		}
		f.Children = sweepChildren(f.Children, &swept)
	}
	if len(swept) > 0 {
		s.compactOrder()
	}
	return swept
}

func sweepChildren(children []Facet, swept *[]string) []Facet {
	kept := children[:0]
	for _, c := range children {
		if c.Ephemeral {
			*swept = append(*swept, c.ID)
			continue
		}
		c.Children = sweepChildren(c.Children, swept)
		kept = append(kept, c)
	}
	return kept
}

func (s *WorldState) compactOrder() {
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.facets[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
}

// AppendFrame appends an immutable clone of the frame to history and advances
// the sequence number. The sequencer is responsible for the ordering check
// and for applying the frame's deltas first.
func (s *WorldState) AppendFrame(f Frame) {
	s.history = append(s.history, f.Clone())
	s.sequence = f.Sequence
}

// History returns a deep copy of the committed frame log.
func (s *WorldState) History() []Frame {
	hist := make([]Frame, len(s.history))
	for i, f := range s.history {
		hist[i] = f.Clone()
	}
	return hist
}

// Snapshot returns a read-only, deep-copied view of the full derived state
// plus frame history, safe for handlers and the persistence boundary.
func (s *WorldState) Snapshot() Snapshot {
	snap := Snapshot{
		Facets:        make(map[string]Facet, len(s.facets)),
		Order:         append([]string(nil), s.order...),
		Scopes:        make([]string, 0, len(s.scopes)),
		Streams:       make(map[string]Stream, len(s.streams)),
		Agents:        make(map[string]Agent, len(s.agents)),
		CurrentStream: s.currentStream,
		CurrentAgent:  s.currentAgent,
		Removed:       make(map[string]RemoveMode, len(s.removed)),
		History:       s.History(),
		Sequence:      s.sequence,
	}
	for id, f := range s.facets {
		snap.Facets[id] = f.Clone()
	}
	for sc := range s.scopes {
		snap.Scopes = append(snap.Scopes, sc)
	}
	sort.Strings(snap.Scopes)
	for id, st := range s.streams {
		snap.Streams[id] = st.Clone()
	}
	for id, a := range s.agents {
		snap.Agents[id] = a.Clone()
	}
	for id, m := range s.removed {
		snap.Removed[id] = m
	}
	return snap
}

// Restore replaces the live state wholesale from a snapshot. The snapshot's
// collections are cloned in, so the caller's copy stays independent.
func (s *WorldState) Restore(snap Snapshot) {
	s.facets = make(map[string]*Facet, len(snap.Facets))
	for id, f := range snap.Facets {
		cp := f.Clone()
		s.facets[id] = &cp
	}
	s.order = append([]string(nil), snap.Order...)
	s.scopes = make(map[string]struct{}, len(snap.Scopes))
	for _, sc := range snap.Scopes {
		s.scopes[sc] = struct{}{}
	}
	s.streams = make(map[string]Stream, len(snap.Streams))
	for id, st := range snap.Streams {
		s.streams[id] = st.Clone()
	}
	s.agents = make(map[string]Agent, len(snap.Agents))
	for id, a := range snap.Agents {
		s.agents[id] = a.Clone()
	}
	s.currentStream = snap.CurrentStream
	s.currentAgent = snap.CurrentAgent
	s.removed = make(map[string]RemoveMode, len(snap.Removed))
	for id, m := range snap.Removed {
		s.removed[id] = m
	}
	s.history = make([]Frame, len(snap.History))
	for i, f := range snap.History {
		s.history[i] = f.Clone()
	}
	s.sequence = snap.Sequence
}

// Reset clears the store back to empty. Used by the fork engine before replay.
func (s *WorldState) Reset() {
	s.Restore(Snapshot{})
}
