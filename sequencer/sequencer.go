// Package sequencer wraps delta application in a frame transaction: it
// validates strict monotonic frame numbering, applies every delta of a frame
// atomically, appends the frame to the immutable history log and publishes
// the new snapshot to subscribers.
//
// ApplyIncoming and RecordOutgoing are the only two state-mutating entry
// points in a space. The space model is single-writer; the sequencer's lock
// makes a concurrent commit self-detecting (the second commit would fail the
// sequence check) rather than silently corrupting order.
package sequencer

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/worldmesh/core"
	"github.com/hupe1980/worldmesh/logging"
)

// Options holds dependency overrides passed to New().
type Options struct {
	// Logger receives commit diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// Sequencer owns frame commits against a WorldState.
type Sequencer struct {
	mu      sync.Mutex
	state   *core.WorldState
	subs    map[uint64]func(core.Snapshot)
	nextSub uint64
	logger  logging.Logger
}

// New constructs a Sequencer over the given store.
func New(state *core.WorldState, optFns ...func(o *Options)) *Sequencer {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Sequencer{
		state:  state,
		subs:   make(map[uint64]func(core.Snapshot)),
		logger: opts.Logger,
	}
}

// ApplyIncoming commits a frame that originated outside the agent. The frame
// must carry sequence currentSequence+1 exactly; anything else fails without
// mutating state.
func (s *Sequencer) ApplyIncoming(frame core.Frame) error {
	if frame.Direction != core.Incoming {
		return fmt.Errorf("applyIncoming: frame %d has direction %q", frame.Sequence, frame.Direction)
	}
	return s.commit(frame)
}

// RecordOutgoing commits a frame produced by an agent's own turn. Agent
// intents (speak/think/act) are expanded into speech/thought/action facets
// tagged with the acting agent and destination stream, so downstream phases
// see agent output through the same facet vocabulary as everything else.
func (s *Sequencer) RecordOutgoing(frame core.Frame) error {
	if frame.Direction != core.Outgoing {
		return fmt.Errorf("recordOutgoing: frame %d has direction %q", frame.Sequence, frame.Direction)
	}
	return s.commit(frame)
}

func (s *Sequencer) commit(frame core.Frame) error {
	start := time.Now()

	s.mu.Lock()
	want := s.state.Sequence() + 1
	if frame.Sequence != want {
		s.mu.Unlock()
		return fmt.Errorf("frame %d does not follow current sequence %d: %w",
			frame.Sequence, want-1, core.ErrSequenceGap)
	}

	for i, d := range frame.Operations {
		if d.IsIntent() {
			if frame.Direction != core.Outgoing {
				s.logger.Warn("agent intent in incoming frame, skipping", "op", d.Op, "sequence", frame.Sequence)
				continue
			}
			for _, f := range ExpandIntent(frame, i, d) {
				if err := s.state.Apply(core.AddFacet(f)); err != nil {
					s.mu.Unlock()
					return fmt.Errorf("apply expanded intent %d of frame %d: %w", i, frame.Sequence, err)
				}
			}
			continue
		}
		if err := s.state.Apply(d); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("apply delta %d of frame %d: %w", i, frame.Sequence, err)
		}
	}

	s.state.AppendFrame(frame)
	s.state.SweepEphemeral()

	snap := s.state.Snapshot()
	fns := make([]func(core.Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	observeCommit(frame, time.Since(start))
	s.logger.Debug("frame committed", "sequence", frame.Sequence, "direction", frame.Direction, "deltas", len(frame.Operations))

	for _, fn := range fns {
		fn(snap)
	}
	return nil
}

// Subscribe registers fn to receive the snapshot after every commit and
// returns an independently revocable handle.
func (s *Sequencer) Subscribe(fn func(core.Snapshot)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return &Subscription{cancel: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}}
}

// Snapshot returns a read-only view of the current state plus history.
func (s *Sequencer) Snapshot() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}

// SetState atomically replaces the live state (persistence restore path) and
// publishes the resulting snapshot.
func (s *Sequencer) SetState(snap core.Snapshot) {
	s.mu.Lock()
	s.state.Restore(snap)
	out := s.state.Snapshot()
	fns := make([]func(core.Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	currentSequence.Set(float64(snap.Sequence))
	for _, fn := range fns {
		fn(out)
	}
}

// CurrentSequence returns the sequence number of the last committed frame.
func (s *Sequencer) CurrentSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Sequence()
}

// NextSequence returns the sequence number the next frame must carry.
func (s *Sequencer) NextSequence() uint64 { return s.CurrentSequence() + 1 }

// History returns a deep copy of the committed frame log.
func (s *Sequencer) History() []core.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.History()
}

// Purge runs the explicit cleanup pass for delete-marked facets and returns
// the purged ids.
func (s *Sequencer) Purge() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Purge()
}

// Subscription is a revocable handle for a snapshot subscriber.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel revokes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() { s.once.Do(s.cancel) }

// ExpandIntent translates one agent intent into the facets the store will
// carry for it. Facet ids derive from the frame sequence and the delta's
// position so replaying the frame reproduces identical state.
func ExpandIntent(frame core.Frame, idx int, d core.Delta) []core.Facet {
	base := core.Facet{
		AgentID:  frame.AgentID,
		StreamID: frame.ActiveStream,
	}
	switch d.Op {
	case core.OpSpeak:
		base.ID = fmt.Sprintf("speech-%d-%d", frame.Sequence, idx)
		base.Kind = core.KindSpeech
		base.Content = d.Text
	case core.OpThink:
		base.ID = fmt.Sprintf("thought-%d-%d", frame.Sequence, idx)
		base.Kind = core.KindThought
		base.Content = d.Text
	case core.OpAct:
		base.ID = fmt.Sprintf("action-%d-%d", frame.Sequence, idx)
		base.Kind = core.KindAction
		if d.Action != nil {
			base.Content = d.Action.Name
			base.Payload = map[string]any{"name": d.Action.Name, "arguments": d.Action.Arguments}
		}
	default:
		return nil
	}
	return []core.Facet{base}
}
