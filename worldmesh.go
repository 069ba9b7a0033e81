// Package worldmesh provides a high-level façade over the frame-sequenced
// world engine: one Space aggregates the state store, frame sequencer, phase
// pipeline, rollback engine, turn driver and snapshot persistence. Most
// applications interact with this package by:
//  1. Creating a Space via New() (optionally from a config.Config)
//  2. Registering phase handlers and afferent bridges
//  3. Feeding events in through Emit/ProcessEvent and letting activation
//     facets drive agent turns
//
// The façade delegates all semantics to the underlying packages while keeping
// setup ergonomics concise. Defaults are safe for local development; durable
// deployments supply a SQLite store and a structured logger.
package worldmesh

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/worldmesh/config"
	"github.com/hupe1980/worldmesh/core"
	"github.com/hupe1980/worldmesh/fork"
	"github.com/hupe1980/worldmesh/logging"
	"github.com/hupe1980/worldmesh/model"
	"github.com/hupe1980/worldmesh/model/anthropic"
	"github.com/hupe1980/worldmesh/model/openai"
	"github.com/hupe1980/worldmesh/persist"
	"github.com/hupe1980/worldmesh/pipeline"
	"github.com/hupe1980/worldmesh/render"
	"github.com/hupe1980/worldmesh/sequencer"
	"github.com/hupe1980/worldmesh/turn"
)

// Options configures a Space.
type Options struct {
	// SpaceID names the space; it is the persistence key and log context.
	SpaceID string

	// MaxStabilizationPasses and MaxFramesPerTrigger tune the pipeline
	// ceilings; zero keeps the pipeline defaults.
	MaxStabilizationPasses int
	MaxFramesPerTrigger    int

	// RateLimit enables the per-source pre-filter when EventsPerSecond > 0.
	RateLimit config.RateLimitConfig

	// Model drives agent turns. Nil disables turn dispatch.
	Model model.Model

	// Temperature is forwarded to the model on every turn when > 0.
	Temperature float64

	// Renderer overrides the default prompt renderer for turns.
	Renderer render.Renderer

	// Store persists snapshots (defaults to in-memory).
	Store persist.Store

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// EventBufferSize sets the Run loop's event channel buffer.
	EventBufferSize int
}

// Space is the high-level façade: a single shared world with one logical
// writer, fed by afferent bridges and acted on by agents.
type Space struct {
	id       string
	state    *core.WorldState
	seq      *sequencer.Sequencer
	exec     *pipeline.Executor
	registry *fork.Registry
	engine   *fork.Engine
	driver   *turn.Driver
	store    persist.Store
	logger   logging.Logger
	events   chan core.Event
}

// New creates a Space with optional overrides. Any unset collaborator is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Space {
	opts := Options{
		SpaceID:         "default",
		Store:           persist.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
		EventBufferSize: 64,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	state := core.NewWorldState(func(o *core.StateOptions) { o.Logger = opts.Logger })
	seq := sequencer.New(state, func(o *sequencer.Options) { o.Logger = opts.Logger })
	exec := pipeline.New(seq, func(o *pipeline.Options) {
		if opts.MaxStabilizationPasses > 0 {
			o.MaxStabilizationPasses = opts.MaxStabilizationPasses
		}
		if opts.MaxFramesPerTrigger > 0 {
			o.MaxFramesPerTrigger = opts.MaxFramesPerTrigger
		}
		o.Logger = opts.Logger
	})
	if f := pipeline.NewRateLimitFilter(opts.RateLimit.EventsPerSecond, opts.RateLimit.Burst, func(o *pipeline.RateLimitOptions) {
		if opts.RateLimit.IdleTTL > 0 {
			o.IdleTTL = opts.RateLimit.IdleTTL
		}
	}); f != nil {
		exec.RegisterPreFilter(f)
	}

	registry := fork.NewRegistry()
	engine := fork.New(seq, registry, func(o *fork.Options) { o.Logger = opts.Logger })

	var driver *turn.Driver
	if opts.Model != nil {
		driver = turn.New(seq, opts.Model, func(o *turn.Options) {
			if opts.Renderer != nil {
				o.Renderer = opts.Renderer
			}
			o.Temperature = opts.Temperature
			o.Logger = opts.Logger
		})
	}

	return &Space{
		id:       opts.SpaceID,
		state:    state,
		seq:      seq,
		exec:     exec,
		registry: registry,
		engine:   engine,
		driver:   driver,
		store:    opts.Store,
		logger:   opts.Logger,
		events:   make(chan core.Event, opts.EventBufferSize),
	}
}

// NewFromConfig builds a Space from a loaded configuration: snapshot store,
// model provider, ceilings and rate limits all come from cfg.
func NewFromConfig(cfg config.Config, optFns ...func(o *Options)) (*Space, error) {
	var store persist.Store = persist.NewInMemoryStore()
	if cfg.SnapshotPath != "" {
		s, err := persist.OpenSQLite(cfg.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("worldmesh: %w", err)
		}
		store = s
	}

	var m model.Model
	switch cfg.Model.Provider {
	case "anthropic":
		m = anthropic.New(cfg.Model.Name, func(o *anthropic.Options) { o.MaxTokens = cfg.Model.MaxTokens })
	case "openai":
		m = openai.New(cfg.Model.Name, func(o *openai.Options) { o.MaxTokens = cfg.Model.MaxTokens })
	case "", "mock":
		m = model.NewMockModel()
	default:
		return nil, fmt.Errorf("worldmesh: unknown model provider %q", cfg.Model.Provider)
	}

	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.LogLevel), "", false).WithSpace(cfg.SpaceID)

	space := New(func(o *Options) {
		o.SpaceID = cfg.SpaceID
		o.MaxStabilizationPasses = cfg.StabilizationCeiling
		o.MaxFramesPerTrigger = cfg.FrameBudget
		o.RateLimit = cfg.RateLimit
		o.Model = m
		o.Temperature = cfg.Model.Temperature
		o.Store = store
		o.Logger = logger
		for _, fn := range optFns {
			fn(o)
		}
	})
	return space, nil
}

// ID returns the space identifier.
func (s *Space) ID() string { return s.id }

// Emit implements afferent.Sink: it queues an event for the Run loop.
func (s *Space) Emit(ev core.Event) {
	s.events <- ev
}

// EmitError implements afferent.Sink.
func (s *Space) EmitError(err error) {
	s.logger.Error("afferent bridge failed", "space", s.id, "error", err)
}

// Run drains the event queue until ctx is done, dispatching agent turns after
// every processed event. Fatal pipeline errors (sequence gap, fixpoint
// ceiling, frame budget) abort the offending trigger, are logged, and the
// loop keeps serving subsequent events.
func (s *Space) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			if err := s.exec.ProcessEvent(ev); err != nil {
				s.logger.Error("event processing failed", "space", s.id, "topic", ev.Topic, "error", err)
				continue
			}
			s.dispatchTurns(ctx)
		}
	}
}

// ProcessEvent pushes one event through the pipeline synchronously and then
// dispatches any agent turns it activated.
func (s *Space) ProcessEvent(ctx context.Context, ev core.Event) error {
	if err := s.exec.ProcessEvent(ev); err != nil {
		return err
	}
	s.dispatchTurns(ctx)
	return nil
}

// dispatchTurns consumes active activation facets one at a time, taking a
// turn for each. The activation is deleted before the turn so a failing model
// call cannot re-trigger forever.
func (s *Space) dispatchTurns(ctx context.Context) {
	if s.driver == nil {
		return
	}
	for {
		snap := s.seq.Snapshot()
		activations := snap.FacetsOfKind(core.KindActivation)
		if len(activations) == 0 {
			return
		}
		act := activations[0]

		agentID := act.AgentID
		if id, ok := act.Payload["agent"].(string); ok && id != "" {
			agentID = id
		}
		streamID := act.StreamID

		if err := s.Commit(core.RemoveFacet(act.ID, core.RemoveDelete)); err != nil {
			s.logger.Error("failed to consume activation", "space", s.id, "facet", act.ID, "error", err)
			return
		}
		if agentID == "" {
			s.logger.Warn("activation names no agent, skipped", "space", s.id, "facet", act.ID)
			continue
		}
		frame, err := s.driver.TakeTurn(ctx, agentID, streamID)
		if err != nil {
			s.logger.Error("turn failed", "space", s.id, "agent", agentID, "error", err)
			continue
		}
		if frame.Sequence == 0 {
			continue
		}
		if err := s.exec.ProcessCommitted(frame); err != nil {
			s.logger.Error("turn follow-up processing failed", "space", s.id, "agent", agentID, "sequence", frame.Sequence, "error", err)
		}
	}
}

// TakeTurn runs one agent turn directly, outside activation dispatch. The
// committed outgoing frame still flows through the reaction and maintenance
// phases, so handlers observe agent output the same way they observe events.
func (s *Space) TakeTurn(ctx context.Context, agentID, streamID string) (core.Frame, error) {
	if s.driver == nil {
		return core.Frame{}, fmt.Errorf("worldmesh: space has no model configured")
	}
	frame, err := s.driver.TakeTurn(ctx, agentID, streamID)
	if err != nil {
		return core.Frame{}, err
	}
	if frame.Sequence == 0 {
		return frame, nil
	}
	if err := s.exec.ProcessCommitted(frame); err != nil {
		return frame, err
	}
	return frame, nil
}

// Commit applies the given deltas as one incoming frame. It is the seeding
// and administration entry point; pipeline traffic goes through ProcessEvent.
func (s *Space) Commit(ops ...core.Delta) error {
	snap := s.seq.Snapshot()
	return s.seq.ApplyIncoming(core.NewIncomingFrame(s.seq.NextSequence(), snap.CurrentStream, ops))
}

// Rollback deletes the n most recent frames and rebuilds state by replay.
func (s *Space) Rollback(ctx context.Context, n int) (fork.Result, error) {
	return s.engine.DeleteRecentFrames(ctx, n)
}

// RegisterUnit adds a stateful unit to the fork registry.
func (s *Space) RegisterUnit(u core.Unit) error { return s.registry.Register(u) }

// DeregisterUnit removes a stateful unit by id.
func (s *Space) DeregisterUnit(id string) { s.registry.Deregister(id) }

// RegisterPreFilter adds a phase-0 filter.
func (s *Space) RegisterPreFilter(f core.PreFilter) { s.exec.RegisterPreFilter(f) }

// RegisterIngestion adds a phase-1 handler.
func (s *Space) RegisterIngestion(h core.IngestionHandler) { s.exec.RegisterIngestion(h) }

// RegisterStabilization adds a phase-2 handler.
func (s *Space) RegisterStabilization(h core.StabilizationHandler) { s.exec.RegisterStabilization(h) }

// RegisterReaction adds a phase-3 handler.
func (s *Space) RegisterReaction(h core.ReactionHandler) { s.exec.RegisterReaction(h) }

// RegisterMaintenance adds a phase-4 handler.
func (s *Space) RegisterMaintenance(h core.MaintenanceHandler) { s.exec.RegisterMaintenance(h) }

// Subscribe registers a snapshot listener invoked after every commit.
func (s *Space) Subscribe(fn func(core.Snapshot)) *sequencer.Subscription {
	return s.seq.Subscribe(fn)
}

// Snapshot returns the current derived state plus frame history.
func (s *Space) Snapshot() core.Snapshot { return s.seq.Snapshot() }

// CurrentSequence returns the sequence of the last committed frame.
func (s *Space) CurrentSequence() uint64 { return s.seq.CurrentSequence() }

// History returns a copy of the committed frame log.
func (s *Space) History() []core.Frame { return s.seq.History() }

// Purge physically drops delete-marked facets from the store, returning the
// purged facet ids.
func (s *Space) Purge() []string { return s.seq.Purge() }

// Save persists the current snapshot through the configured store.
func (s *Space) Save(ctx context.Context) error {
	start := time.Now()
	if err := s.store.Save(ctx, s.id, s.seq.Snapshot()); err != nil {
		return fmt.Errorf("worldmesh: save: %w", err)
	}
	s.logger.Debug("snapshot saved", "space", s.id, "duration", time.Since(start))
	return nil
}

// Load replaces the live state with the stored snapshot, if one exists.
func (s *Space) Load(ctx context.Context) (bool, error) {
	snap, ok, err := s.store.Load(ctx, s.id)
	if err != nil {
		return false, fmt.Errorf("worldmesh: load: %w", err)
	}
	if !ok {
		return false, nil
	}
	s.seq.SetState(snap)
	s.logger.Info("snapshot loaded", "space", s.id, "sequence", snap.Sequence)
	return true, nil
}
