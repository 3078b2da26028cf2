package bvals

import (
	"fmt"
	"time"

	"github.com/danmuck/haloctl/internal/field"
	"github.com/danmuck/haloctl/internal/observability"
	"github.com/danmuck/haloctl/internal/tasks"
)

// StartReceive opens a new exchange step: the step counter advances, every
// receive slot goes back to waiting and the timeout clock starts. It must
// run before Send so that the same-rank short circuit lands on freshly reset
// flags.
func StartReceive(ds *BlockSet) (tasks.Status, error) {
	ds.step++
	for _, blk := range ds.Blocks {
		for _, f := range blk.GhostFields() {
			for _, nb := range blk.Neighbors {
				f.Boundary.SetRecvFlag(nb.BufID, field.StatusWaiting)
			}
		}
	}
	ds.recvStart = time.Now()
	return tasks.Complete, nil
}

// Receive drains transport arrivals and reports whether every slot of every
// block has arrived. It never blocks: incompleteness is a normal state and
// the scheduler re-invokes until complete. Exceeding the configured timeout
// bound while still incomplete is fatal; a lost message must not be waited
// on forever.
func Receive(ds *BlockSet) (tasks.Status, error) {
	if err := drainArrivals(ds); err != nil {
		return tasks.Incomplete, err
	}

	complete := true
	for _, blk := range ds.Blocks {
		for _, f := range blk.GhostFields() {
			for _, nb := range blk.Neighbors {
				if f.Boundary.RecvFlagAt(nb.BufID) == field.StatusWaiting {
					complete = false
				}
			}
		}
	}
	observability.RecordReceivePoll(complete)
	if complete {
		return tasks.Complete, nil
	}

	if bound := ds.Config.ReceiveTimeout; bound > 0 {
		if elapsed := time.Since(ds.recvStart); elapsed > bound {
			return tasks.Incomplete, fmt.Errorf("%w: incomplete after %v (bound %v)",
				ErrReceiveTimeout, elapsed.Round(time.Millisecond), bound)
		}
	}
	return tasks.Incomplete, nil
}

// drainArrivals moves delivered messages into the matching receive buffers.
// Ranks step independently, so a single poll can surface payloads from more
// than one of the sender's steps; only current-step payloads land, future
// ones are held back until this rank's step counter reaches them, and a
// payload from an already finished step is fatal. A nonzero sentinel
// arriving for a field the receiver has not materialized triggers allocation
// before the payload is consumed. This is the cross-rank half of the sparse
// handshake.
func drainArrivals(ds *BlockSet) error {
	if ds.Transport == nil {
		return nil
	}
	arrivals := append(ds.early, ds.Transport.Poll()...)
	ds.early = nil
	for _, msg := range arrivals {
		if msg.Key.Step > ds.step {
			ds.early = append(ds.early, msg)
			continue
		}
		if msg.Key.Step < ds.step {
			return fmt.Errorf("%w: step %d payload at step %d", ErrUnknownArrival, msg.Key.Step, ds.step)
		}
		blk, ok := ds.Mesh.FindBlock(msg.Key.GID)
		if !ok {
			return fmt.Errorf("%w: gid %d", ErrUnknownArrival, msg.Key.GID)
		}
		ghost := blk.GhostFields()
		if msg.Key.FieldIndex < 0 || msg.Key.FieldIndex >= len(ghost) {
			return fmt.Errorf("%w: field index %d on gid %d", ErrUnknownArrival, msg.Key.FieldIndex, msg.Key.GID)
		}
		f := ghost[msg.Key.FieldIndex]
		if len(msg.Payload) == 0 {
			return fmt.Errorf("%w: empty payload for field %q", ErrUnknownArrival, f.Name)
		}

		sentinel := msg.Payload[len(msg.Payload)-1] != 0
		if ds.Config.Sparse.Enabled && sentinel && !f.Allocated() {
			if err := blk.AllocateSparse(f.Name); err != nil {
				return err
			}
			observability.RecordAllocationHandshake()
			ds.log.Debug().
				Str("field", f.Name).
				Int("gid", blk.GID).
				Int("from_rank", msg.SourceRank).
				Msg("allocated sparse field on arrival")
		}

		recv := f.Boundary.EnsureRecv(msg.Key.Slot, len(msg.Payload))
		copy(recv, msg.Payload)
		f.Boundary.SetRecvFlag(msg.Key.Slot, field.StatusArrived)
	}
	return nil
}
