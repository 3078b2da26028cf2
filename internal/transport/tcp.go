package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/danmuck/haloctl/internal/protocol/frame"
)

// TCP is a rank endpoint speaking the halo frame protocol over per-peer TCP
// connections. Sends are posted to a per-peer writer goroutine and return
// without waiting for delivery, blocking only when the peer's queue is full;
// a reader goroutine per inbound connection appends arrivals to the inbox
// drained by Poll.
type TCP struct {
	rank   int
	limits frame.Limits
	log    zerolog.Logger

	listener net.Listener
	done     chan struct{}

	mu      sync.Mutex
	inbox   []Message
	writers map[int]*peerWriter
	addrs   map[int]string
	closed  bool

	wg sync.WaitGroup
}

type peerWriter struct {
	rank  int
	queue chan Message
	conn  net.Conn
}

const sendQueueDepth = 256

// NewTCP starts listening on listenAddr and records the peer address book.
// Connections to peers are dialed lazily on first send.
func NewTCP(rank int, listenAddr string, peers map[int]string, logger zerolog.Logger) (*TCP, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", listenAddr, err)
	}
	t := &TCP{
		rank:     rank,
		limits:   frame.DefaultLimits(),
		log:      logger.With().Str("component", "transport").Int("rank", rank).Logger(),
		listener: ln,
		done:     make(chan struct{}),
		writers:  make(map[int]*peerWriter),
		addrs:    make(map[int]string, len(peers)),
	}
	for r, addr := range peers {
		t.addrs[r] = addr
	}
	t.wg.Add(1)
	go t.acceptLoop()
	return t, nil
}

// Addr returns the bound listen address.
func (t *TCP) Addr() string {
	return t.listener.Addr().String()
}

var _ Transport = (*TCP)(nil)

func (t *TCP) PostSend(msg Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	w, ok := t.writers[msg.DestRank]
	if !ok {
		addr, known := t.addrs[msg.DestRank]
		if !known {
			t.mu.Unlock()
			return fmt.Errorf("%w: %d", ErrUnknownPeer, msg.DestRank)
		}
		w = &peerWriter{rank: msg.DestRank, queue: make(chan Message, sendQueueDepth)}
		t.writers[msg.DestRank] = w
		t.wg.Add(1)
		go t.writeLoop(w, addr)
	}
	t.mu.Unlock()

	out := msg
	out.SourceRank = t.rank
	out.Payload = append([]float64(nil), msg.Payload...)
	// the queue is never closed; the done channel breaks the enqueue when
	// Close races with a post, and bounds the wait when the peer's writer
	// falls behind
	select {
	case w.queue <- out:
		return nil
	case <-t.done:
		return ErrClosed
	}
}

func (t *TCP) Poll() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := t.inbox
	t.inbox = nil
	return msgs
}

func (t *TCP) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.writers = make(map[int]*peerWriter)
	t.mu.Unlock()

	close(t.done)
	err := t.listener.Close()
	t.wg.Wait()
	return err
}

func (t *TCP) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			return
		}
		t.wg.Add(1)
		go t.readLoop(conn)
	}
}

func (t *TCP) readLoop(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		f, err := frame.ReadFrame(r, t.limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, frame.ErrShortHeader) && !errors.Is(err, net.ErrClosed) {
				t.log.Warn().Err(err).Msg("frame decode failed, dropping connection")
			}
			return
		}
		if f.Header.MessageType != frame.MsgHaloData {
			t.log.Warn().Uint32("type", f.Header.MessageType).Msg("unknown message type, dropping connection")
			return
		}
		msg := Message{
			DestRank:   t.rank,
			SourceRank: int(f.Header.SourceRank),
			Key: SlotKey{
				Step:       f.Header.Step,
				GID:        int(f.Header.DestGID),
				FieldIndex: int(f.Header.FieldIndex),
				Slot:       int(f.Header.TargetSlot),
			},
			Payload: f.Payload,
		}
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		t.inbox = append(t.inbox, msg)
		t.mu.Unlock()
	}
}

func (t *TCP) writeLoop(w *peerWriter, addr string) {
	defer t.wg.Done()
	var conn net.Conn
	var bw *bufio.Writer
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		var msg Message
		select {
		case msg = <-w.queue:
		case <-t.done:
			return
		}
		if conn == nil {
			c, err := net.Dial("tcp", addr)
			if err != nil {
				t.log.Error().Err(err).Int("peer", w.rank).Msg("dial failed, message dropped")
				continue
			}
			conn = c
			bw = bufio.NewWriter(conn)
		}
		f := frame.Frame{
			Header: frame.Header{
				MessageType: frame.MsgHaloData,
				SourceRank:  uint32(msg.SourceRank),
				DestGID:     uint32(msg.Key.GID),
				FieldIndex:  uint32(msg.Key.FieldIndex),
				TargetSlot:  uint32(msg.Key.Slot),
				Step:        msg.Key.Step,
			},
			Payload: msg.Payload,
		}
		if err := frame.WriteFrame(bw, f, t.limits); err != nil {
			t.log.Error().Err(err).Int("peer", w.rank).Msg("frame write failed, reconnecting")
			conn.Close()
			conn = nil
			continue
		}
		// flush eagerly when the queue is drained, otherwise batch
		if len(w.queue) == 0 {
			if err := bw.Flush(); err != nil {
				t.log.Error().Err(err).Int("peer", w.rank).Msg("flush failed, reconnecting")
				conn.Close()
				conn = nil
			}
		}
	}
}
