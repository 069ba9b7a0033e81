package core

// Stream is a named communication channel that frames and agent output can
// target (a chat room, a console, a timer feed).
type Stream struct {
	ID       string            `json:"id"`
	Name     string            `json:"name,omitempty"`
	Kind     string            `json:"kind,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone returns a copy with its metadata map duplicated.
func (s Stream) Clone() Stream {
	cp := s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// Agent describes a registered agent identity within a space.
type Agent struct {
	ID       string            `json:"id"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone returns a copy with its metadata map duplicated.
func (a Agent) Clone() Agent {
	cp := a
	if a.Metadata != nil {
		cp.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}
