// Package core contains the shared vocabulary and the derived-state store of
// WorldMesh: facets, deltas, frames, events, streams and agents, plus the
// WorldState store that applies deltas one at a time, the read-only Snapshot
// view handed to handlers, the phase-handler contracts consumed by the
// pipeline, and the Unit capability interface implemented by every stateful
// component that participates in rollback.
//
// Everything in this package is value-oriented: facets are cloned on every
// write path and snapshots deep-copy their collections, so handlers can never
// hold references into the live store.
package core
