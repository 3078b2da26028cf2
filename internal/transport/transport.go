// Package transport carries packed halo buffers between ranks. The engine
// only relies on two primitives: an asynchronous post of one message and a
// non-blocking drain of arrivals. There is no blocking receive; completion is
// discovered by polling.
package transport

import "errors"

var (
	// ErrUnknownPeer marks a send addressed to a rank the transport has no
	// route for.
	ErrUnknownPeer = errors.New("transport: unknown peer rank")

	// ErrClosed marks use after Close.
	ErrClosed = errors.New("transport: closed")
)

// SlotKey addresses one receive buffer slot on the destination rank for one
// exchange step.
type SlotKey struct {
	// Step is the sender's exchange step counter. Ranks step independently,
	// so a fast sender's next-step payload can sit in the inbox next to the
	// slow receiver's current-step payload; the step disambiguates them.
	Step uint64
	// GID is the destination block's global id.
	GID int
	// FieldIndex is the position of the field in the destination block's
	// ghost-field enumeration order. Sender and receiver must enumerate
	// fields identically for this to be meaningful.
	FieldIndex int
	// Slot is the destination-side buffer slot id.
	Slot int
}

// Message is one packed buffer in flight, sentinel value included.
type Message struct {
	DestRank   int
	SourceRank int
	Key        SlotKey
	Payload    []float64
}

// Transport posts sends asynchronously and surfaces arrivals on demand.
type Transport interface {
	// PostSend queues msg for delivery and returns once it is posted, not
	// once it is delivered.
	PostSend(msg Message) error
	// Poll drains and returns every message that has arrived so far. It
	// never blocks.
	Poll() []Message
	Close() error
}
