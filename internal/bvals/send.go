package bvals

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/danmuck/haloctl/internal/field"
	"github.com/danmuck/haloctl/internal/observability"
	"github.com/danmuck/haloctl/internal/parallel"
	"github.com/danmuck/haloctl/internal/tasks"
	"github.com/danmuck/haloctl/internal/transport"
)

// Send fills and dispatches every boundary buffer of the set. It returns
// complete once all same-rank copies are finished and all cross-rank sends
// are posted; posted sends may still be in flight.
func Send(ctx context.Context, ds *BlockSet) (tasks.Status, error) {
	for _, blk := range ds.Blocks {
		ds.Mesh.RefreshLocalNeighborAllocated(blk)
	}
	resetSendFlags(ds)

	status := sendAllocStatus(ds)
	if err := ds.ensureSendDescriptors(ctx, status); err != nil {
		return tasks.Incomplete, err
	}

	start := time.Now()
	if err := packBuffers(ctx, ds); err != nil {
		return tasks.Incomplete, err
	}
	observability.RecordKernelDuration("pack", time.Since(start))

	if err := sendAndNotify(ds); err != nil {
		return tasks.Incomplete, err
	}
	return tasks.Complete, nil
}

func resetSendFlags(ds *BlockSet) {
	for _, blk := range ds.Blocks {
		for _, f := range blk.GhostFields() {
			for _, nb := range blk.Neighbors {
				f.Boundary.SetSendFlag(nb.BufID, field.StatusWaiting)
			}
		}
	}
}

// packBuffers fills each descriptor's buffer from its source view, or with
// literal zero when the field is unallocated, and records in the trailing
// sentinel slot whether any packed magnitude exceeds the nonzero threshold.
// Descriptors own disjoint buffers, so the outer loop is free to run on any
// number of workers.
func packBuffers(ctx context.Context, ds *BlockSet) error {
	descs := ds.send.descriptors
	threshold := ds.Config.Sparse.AllocationThreshold

	return parallel.TeamFor(ctx, len(descs), func(b int) error {
		d := &descs[b]
		if d.Allocated != d.fld.Allocated() {
			return fmt.Errorf("%w: field %q changed allocation mid-step", ErrAllocStatusMismatch, d.fld.Name)
		}
		ni, nj, nk, values := d.Counts()
		nkj := nk * nj

		nonzero := false
		if d.Allocated {
			parallel.FlatRange(d.NV*nkj, func(idx int) {
				v := idx / nkj
				k := (idx - v*nkj) / nj
				j := idx - v*nkj - k*nj
				base := ni * (j + nj*(k+nk*v))
				k += d.K.S
				j += d.J.S
				for i := 0; i < ni; i++ {
					val := d.Var.At(v, k, j, d.I.S+i)
					d.Buf[base+i] = val
					if math.Abs(val) > threshold {
						nonzero = true
					}
				}
			})
		} else {
			for n := 0; n < values; n++ {
				d.Buf[n] = 0
			}
		}

		d.Buf[values] = 0
		if nonzero {
			d.Buf[values] = 1
		}
		ds.sendingNonzero[b] = nonzero
		observability.RecordBufferPacked(d.Allocated)
		return nil
	})
}

// sendAndNotify walks the packed descriptors in enumeration order: same-rank
// targets are notified synchronously (allocating the receiver's field first
// when the sparse handshake demands it), cross-rank buffers are posted to the
// transport regardless of allocation state; the remote side is waiting for a
// message either way.
func sendAndNotify(ds *BlockSet) error {
	descs := ds.send.descriptors
	sparse := ds.Config.Sparse.Enabled

	for b := range descs {
		d := &descs[b]
		nb := d.neighbor()
		f := d.fld
		if f.Boundary.SendFlagAt(nb.BufID) == field.StatusCompleted {
			continue
		}

		if nb.Rank == ds.Mesh.Rank {
			target, ok := ds.Mesh.FindBlock(nb.GID)
			if !ok {
				return fmt.Errorf("%w: local neighbor gid %d missing", ErrAllocStatusMismatch, nb.GID)
			}
			tf, ok := target.Field(f.Name)
			if !ok {
				return fmt.Errorf("%w: field %q missing on block %d", ErrAllocStatusMismatch, f.Name, nb.GID)
			}

			// the sentinel says we are sending nonzero values into a
			// field the neighbor has never materialized
			if sparse && !tf.Allocated() && ds.sendingNonzero[b] {
				if err := target.AllocateSparse(f.Name); err != nil {
					return err
				}
				observability.RecordAllocationHandshake()
				ds.log.Debug().
					Str("field", f.Name).
					Int("gid", nb.GID).
					Msg("allocated sparse field on local neighbor")
			}

			// a descriptor built before the neighbor held storage packs
			// into our own buffer; hand the data over now
			if !d.Direct {
				recv := tf.Boundary.EnsureRecv(nb.TargetID, len(d.Buf))
				copy(recv, d.Buf)
			}

			tf.Boundary.SetRecvFlag(nb.TargetID, field.StatusArrived)
			observability.RecordLocalCopy()
		} else {
			if ds.Transport == nil {
				return fmt.Errorf("%w: neighbor rank %d", ErrNoTransport, nb.Rank)
			}
			msg := transport.Message{
				DestRank: nb.Rank,
				Key: transport.SlotKey{
					Step:       ds.step,
					GID:        nb.GID,
					FieldIndex: d.fidx,
					Slot:       nb.TargetID,
				},
				Payload: d.Buf,
			}
			// PostSend queues and returns; delivery stays in flight
			if err := ds.Transport.PostSend(msg); err != nil {
				return err
			}
			observability.RecordSendPosted()
		}

		f.Boundary.SetSendFlag(nb.BufID, field.StatusCompleted)
	}
	return nil
}
