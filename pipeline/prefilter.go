package pipeline

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/worldmesh/core"
)

// RateLimitFilter is a phase-0 pre-filter that applies a token bucket per
// event source and drops events that exceed it. Purely a shaping stage for
// noisy input sources; correctness never depends on it.
type RateLimitFilter struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	bySource map[string]*limiterEntry
	idleTTL  time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitOptions holds tuning parameters passed to NewRateLimitFilter.
type RateLimitOptions struct {
	// IdleTTL is how long a per-source limiter survives without traffic before
	// it is evicted. Defaults to 10 minutes.
	IdleTTL time.Duration
}

// NewRateLimitFilter creates a per-source limiter; returns nil if args are invalid.
func NewRateLimitFilter(rps float64, burst int, optFns ...func(o *RateLimitOptions)) *RateLimitFilter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	opts := RateLimitOptions{IdleTTL: 10 * time.Minute}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	return &RateLimitFilter{
		limit:    rate.Limit(rps),
		burst:    burst,
		bySource: make(map[string]*limiterEntry),
		idleTTL:  opts.IdleTTL,
	}
}

// Name implements core.PreFilter.
func (f *RateLimitFilter) Name() string { return "rate_limit" }

// Filter consumes one token for the event's source; drop when exhausted.
// Sourceless events always pass.
func (f *RateLimitFilter) Filter(ev core.Event) (core.Event, bool) {
	if f == nil || ev.Source == "" {
		return ev, true
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	e, ok := f.bySource[ev.Source]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(f.limit, f.burst)}
		f.bySource[ev.Source] = e
	}
	e.lastSeen = now
	f.evictIdle(now)

	return ev, e.limiter.Allow()
}

// evictIdle drops limiters not seen within idleTTL; caller holds the lock.
func (f *RateLimitFilter) evictIdle(now time.Time) {
	for src, e := range f.bySource {
		if now.Sub(e.lastSeen) > f.idleTTL {
			delete(f.bySource, src)
		}
	}
}
