package transport

import (
	"fmt"
	"sync"
	"time"
)

// Loopback is an in-process transport endpoint. A network of endpoints shares
// one registry, so multi-rank protocols can be exercised in a single process.
type Loopback struct {
	rank int
	net  *LoopbackNetwork

	mu     sync.Mutex
	inbox  []Message
	closed bool

	// Delay holds back delivery of posted messages until the deadline has
	// passed; DropAll silently discards them. Test knobs.
	Delay   time.Duration
	DropAll bool
}

type delayed struct {
	msg Message
	due time.Time
}

// LoopbackNetwork connects loopback endpoints by rank.
type LoopbackNetwork struct {
	mu        sync.Mutex
	endpoints map[int]*Loopback
}

func NewLoopbackNetwork() *LoopbackNetwork {
	return &LoopbackNetwork{endpoints: make(map[int]*Loopback)}
}

// Endpoint returns (creating if needed) the endpoint for rank.
func (n *LoopbackNetwork) Endpoint(rank int) *Loopback {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ep, ok := n.endpoints[rank]; ok {
		return ep
	}
	ep := &Loopback{rank: rank, net: n}
	n.endpoints[rank] = ep
	return ep
}

func (n *LoopbackNetwork) lookup(rank int) (*Loopback, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ep, ok := n.endpoints[rank]
	return ep, ok
}

var _ Transport = (*Loopback)(nil)

func (l *Loopback) PostSend(msg Message) error {
	l.mu.Lock()
	closed := l.closed
	drop := l.DropAll
	delay := l.Delay
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if drop {
		return nil
	}

	dest, ok := l.net.lookup(msg.DestRank)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, msg.DestRank)
	}

	// posted buffers may be reused by the sender next step
	out := msg
	out.SourceRank = l.rank
	out.Payload = append([]float64(nil), msg.Payload...)

	deliver := func() {
		dest.mu.Lock()
		defer dest.mu.Unlock()
		if !dest.closed {
			dest.inbox = append(dest.inbox, out)
		}
	}
	if delay > 0 {
		time.AfterFunc(delay, deliver)
		return nil
	}
	deliver()
	return nil
}

func (l *Loopback) Poll() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := l.inbox
	l.inbox = nil
	return msgs
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.inbox = nil
	return nil
}
