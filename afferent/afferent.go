// Package afferent contains the input boundary of a space: bridges that turn
// the outside world (terminals, clocks, sockets) into events. Bridges only
// ever talk to a Sink; they never touch the store or the sequencer directly.
package afferent

import "github.com/hupe1980/worldmesh/core"

// Sink receives events from afferent bridges. The space implements it.
type Sink interface {
	// Emit hands an event to the space's pipeline.
	Emit(ev core.Event)

	// EmitError reports a bridge failure that produced no event.
	EmitError(err error)
}
