package core

import "time"

// Direction distinguishes frames that originate outside the agent from frames
// produced by an agent's own turn.
type Direction string

const (
	// Incoming frames carry deltas derived from external events.
	Incoming Direction = "incoming"
	// Outgoing frames carry agent intents (speak/think/act).
	Outgoing Direction = "outgoing"
)

// Frame is the unit of atomic state transition: a strictly sequential
// sequence number, a timestamp, an optional active-stream pointer and an
// ordered list of deltas. Once committed to history a frame is never mutated
// again.
type Frame struct {
	Sequence     uint64    `json:"sequence"`
	Timestamp    time.Time `json:"timestamp"`
	ActiveStream string    `json:"activeStream,omitempty"`
	Direction    Direction `json:"direction"`
	AgentID      string    `json:"agentId,omitempty"`
	Operations   []Delta   `json:"operations"`
}

// NewIncomingFrame builds an incoming frame for the given sequence number.
func NewIncomingFrame(sequence uint64, activeStream string, ops []Delta) Frame {
	return Frame{
		Sequence:     sequence,
		Timestamp:    time.Now().UTC(),
		ActiveStream: activeStream,
		Direction:    Incoming,
		Operations:   ops,
	}
}

// NewOutgoingFrame builds an outgoing frame for an agent turn.
func NewOutgoingFrame(sequence uint64, agentID, activeStream string, ops []Delta) Frame {
	return Frame{
		Sequence:     sequence,
		Timestamp:    time.Now().UTC(),
		ActiveStream: activeStream,
		Direction:    Outgoing,
		AgentID:      agentID,
		Operations:   ops,
	}
}

// Clone returns a deep copy of the frame and its deltas.
func (f Frame) Clone() Frame {
	cp := f
	if f.Operations != nil {
		cp.Operations = make([]Delta, len(f.Operations))
		for i, d := range f.Operations {
			cp.Operations[i] = d.Clone()
		}
	}
	return cp
}
