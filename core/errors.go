package core

import "errors"

var (
	// ErrSequenceGap signals that a frame's sequence number is not exactly
	// currentSequence+1. This is fatal for the commit: it means the pipeline
	// has lost ordering, not that the frame can be retried.
	ErrSequenceGap = errors.New("frame sequence gap")

	// ErrFixpointCeiling signals that the stabilization phase did not
	// converge within the configured iteration ceiling.
	ErrFixpointCeiling = errors.New("stabilization fixpoint ceiling exceeded")

	// ErrFrameBudget signals that a single external trigger produced more
	// follow-up frames than the configured budget allows.
	ErrFrameBudget = errors.New("frame budget exceeded")

	// ErrRollbackDepth signals a rollback request deeper than the committed
	// frame history.
	ErrRollbackDepth = errors.New("rollback depth exceeds history")
)
