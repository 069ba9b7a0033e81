package afferent

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/worldmesh/core"
	"github.com/hupe1980/worldmesh/logging"
)

// TimerTopic is the topic timer ticks are emitted under.
const TimerTopic = "timer.tick"

// TimerOptions configures a Timer bridge.
type TimerOptions struct {
	// StreamID tags emitted events with a destination stream.
	StreamID string

	// Logger receives bridge diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// Timer emits a timer.tick event on a fixed interval. It is a stateful unit:
// rollbacks tear it down (releasing the ticker) unless it is re-registered,
// and a fork drops whatever tick was pending so replayed history cannot
// interleave with stale ticks.
type Timer struct {
	core.BaseUnit

	interval time.Duration
	sink     Sink
	opts     TimerOptions

	mu      sync.Mutex
	ticker  *time.Ticker
	stop    chan struct{}
	stopped bool
	ticks   uint64
}

var _ core.Unit = (*Timer)(nil)

// NewTimer creates a timer bridge with the given unit id and interval.
func NewTimer(id string, interval time.Duration, sink Sink, optFns ...func(o *TimerOptions)) *Timer {
	opts := TimerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Timer{
		BaseUnit: core.NewBaseUnit(id, false),
		interval: interval,
		sink:     sink,
		opts:     opts,
	}
}

// Start begins ticking. Starting an already started or shut down timer is a
// no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker != nil || t.stopped {
		return
	}
	t.ticker = time.NewTicker(t.interval)
	t.stop = make(chan struct{})
	go t.run(t.ticker, t.stop)
}

func (t *Timer) run(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case tm := <-ticker.C:
			t.mu.Lock()
			t.ticks++
			n := t.ticks
			t.mu.Unlock()
			ev := core.NewEvent(TimerTopic, t.UnitID()).
				WithStream(t.opts.StreamID).
				WithPayload(map[string]any{"tick": n, "at": tm.UTC()})
			t.sink.Emit(ev)
		}
	}
}

// OnFork drops the pending tick by resetting the ticker, so a tick scheduled
// against discarded history never fires into the replayed world.
func (t *Timer) OnFork(core.ForkRange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker != nil {
		t.ticker.Reset(t.interval)
	}
}

// Shutdown stops the ticker and releases its goroutine.
func (t *Timer) Shutdown(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	t.stopped = true
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.stop)
		t.ticker = nil
	}
	t.opts.Logger.Debug("timer shut down", "unit", t.UnitID(), "ticks", t.ticks)
	return nil
}

// PersistentState reports the tick counter so a rollback can carry it across
// teardown.
func (t *Timer) PersistentState() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return map[string]any{"ticks": t.ticks}
}
