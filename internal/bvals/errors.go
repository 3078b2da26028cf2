package bvals

import "errors"

var (
	// ErrAllocStatusMismatch signals that the allocation-status vector
	// observed while walking the fixed enumeration order disagrees with
	// the one just computed. That means two call sites enumerated
	// (block, field, neighbor) tuples differently, which is a framework
	// invariant break, never a user error, and never tolerated silently.
	ErrAllocStatusMismatch = errors.New("bvals: allocation status mismatch")

	// ErrReceiveTimeout signals that Receive stayed incomplete past the
	// configured bound. It aborts the run; a lost message must not hang
	// the step loop forever.
	ErrReceiveTimeout = errors.New("bvals: receive timed out")

	// ErrUnknownArrival signals a delivered message addressing a block,
	// field, or slot this rank does not have. Sender and receiver have
	// diverged on topology or enumeration order.
	ErrUnknownArrival = errors.New("bvals: arrival for unknown slot")

	// ErrNoTransport signals a cross-rank neighbor in a dataset built
	// without a transport.
	ErrNoTransport = errors.New("bvals: cross-rank neighbor without transport")
)
