package core

// Snapshot is a read-only, deep-copied view of a WorldState: the full derived
// state plus the frame history. It is what handlers inspect and what the
// persistence boundary serializes; it never aliases the live store.
type Snapshot struct {
	Facets        map[string]Facet      `json:"facets"`
	Order         []string              `json:"order"`
	Scopes        []string              `json:"scopes"`
	Streams       map[string]Stream     `json:"streams"`
	Agents        map[string]Agent      `json:"agents"`
	CurrentStream string                `json:"currentStream,omitempty"`
	CurrentAgent  string                `json:"currentAgent,omitempty"`
	Removed       map[string]RemoveMode `json:"removed,omitempty"`
	History       []Frame               `json:"history"`
	Sequence      uint64                `json:"sequence"`
}

// Facet returns the facet with the given id, if present (removed facets
// included until purged).
func (s Snapshot) Facet(id string) (Facet, bool) {
	f, ok := s.Facets[id]
	return f, ok
}

// ActiveFacets returns the facets of the active view in insertion order,
// mirroring WorldState.ActiveFacets.
func (s Snapshot) ActiveFacets() []Facet {
	scopeSet := make(map[string]struct{}, len(s.Scopes))
	for _, sc := range s.Scopes {
		scopeSet[sc] = struct{}{}
	}
	active := make([]Facet, 0, len(s.Order))
	for _, id := range s.Order {
		f, ok := s.Facets[id]
		if !ok {
			continue
		}
		if _, gone := s.Removed[id]; gone {
			continue
		}
		visible := true
		for _, sc := range f.Scopes {
			if _, ok := scopeSet[sc]; !ok {
				visible = false
				break
			}
		}
		if visible {
			active = append(active, f)
		}
	}
	return active
}

// ActiveFacet returns the facet with the given id only if it is part of the
// active view.
func (s Snapshot) ActiveFacet(id string) (Facet, bool) {
	for _, f := range s.ActiveFacets() {
		if f.ID == id {
			return f, true
		}
	}
	return Facet{}, false
}

// FacetsOfKind returns the active facets of the given kind, in view order.
func (s Snapshot) FacetsOfKind(k Kind) []Facet {
	var out []Facet
	for _, f := range s.ActiveFacets() {
		if f.Kind == k {
			out = append(out, f)
		}
	}
	return out
}

// HasScope reports whether the named scope is active.
func (s Snapshot) HasScope(scope string) bool {
	for _, sc := range s.Scopes {
		if sc == scope {
			return true
		}
	}
	return false
}
