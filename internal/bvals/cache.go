package bvals

import (
	"context"
	"fmt"

	"github.com/danmuck/haloctl/internal/field"
	"github.com/danmuck/haloctl/internal/mesh"
	"github.com/danmuck/haloctl/internal/observability"
)

// BufferDescriptor is the cached geometry and views for one
// (block, field, neighbor) tuple. The descriptor arrays are mutated only
// while a cache is being rebuilt at the start of a task and are read-only
// for the rest of the step.
type BufferDescriptor struct {
	// I, J, K bound the cell box read (send side) or written (set side).
	I, J, K mesh.IndexRange
	// NV is the number of components per cell.
	NV int
	// Allocated is the field's allocation state at cache-build time.
	Allocated bool
	// Restriction marks a send descriptor targeting a coarser neighbor:
	// Fine is averaged into Var (the coarse view) before packing.
	Restriction bool

	// Var is the view packed from or unpacked into; nil while the field
	// is unallocated. Fine is the fine-resolution source of restriction.
	Var  *field.Array4
	Fine *field.Array4
	// Buf is the raw communication buffer, sentinel slot included. Direct
	// marks a same-rank buffer aimed straight at the target's receive
	// slot, so no copy is needed at notify time.
	Buf    []float64
	Direct bool

	block *mesh.MeshBlock
	fld   *field.Field
	// fidx is the field's position in the block's ghost-field order (the
	// wire field id); nbIdx indexes block.Neighbors.
	fidx  int
	nbIdx int
}

// Counts returns the per-axis extents and the packed cell-value count.
func (d *BufferDescriptor) Counts() (ni, nj, nk, values int) {
	ni = d.I.N()
	nj = d.J.N()
	nk = d.K.N()
	return ni, nj, nk, d.NV * nk * nj * ni
}

// neighbor returns the adjacency this descriptor serves.
func (d *BufferDescriptor) neighbor() mesh.NeighborBlock {
	return d.block.Neighbors[d.nbIdx]
}

// sendAllocStatus computes the send-side AllocationStatusVector: one entry
// per active slot, in the fixed enumeration order (blocks, then ghost fields
// in registration order, then neighbors in order). Slots already completed
// this step are skipped. Every enumeration of send slots must walk this exact
// order or buffers misalign silently.
func sendAllocStatus(ds *BlockSet) []bool {
	var status []bool
	for _, blk := range ds.Blocks {
		for _, f := range blk.GhostFields() {
			for _, nb := range blk.Neighbors {
				if f.Boundary.SendFlagAt(nb.BufID) == field.StatusCompleted {
					continue
				}
				status = append(status, f.Allocated())
			}
		}
	}
	return status
}

// setAllocStatus computes the set-side AllocationStatusVector. The set side
// never skips slots.
func setAllocStatus(ds *BlockSet) []bool {
	var status []bool
	for _, blk := range ds.Blocks {
		for _, f := range blk.GhostFields() {
			for range blk.Neighbors {
				status = append(status, f.Allocated())
			}
		}
	}
	return status
}

// ensureSendDescriptors returns a valid send-side descriptor array, rebuilding
// it only when the allocation-status vector changed. On the fast path nothing
// is recomputed except restriction, which must run every step because field
// data changed under the cached coarse views.
func (ds *BlockSet) ensureSendDescriptors(ctx context.Context, status []bool) error {
	if ds.send.valid && equalBools(status, ds.send.allocStatus) {
		return restrictDescriptors(ctx, ds.send.descriptors)
	}
	if err := ds.rebuildSendDescriptors(status); err != nil {
		return err
	}
	observability.RecordCacheRebuild("send")
	ds.log.Debug().Int("descriptors", len(ds.send.descriptors)).Msg("send descriptor cache rebuilt")
	return restrictDescriptors(ctx, ds.send.descriptors)
}

func (ds *BlockSet) rebuildSendDescriptors(status []bool) error {
	descs := make([]BufferDescriptor, 0, len(status))
	b := 0
	for _, blk := range ds.Blocks {
		myLevel := blk.Loc.Level
		for fidx, f := range blk.GhostFields() {
			for n, nb := range blk.Neighbors {
				if f.Boundary.SendFlagAt(nb.BufID) == field.StatusCompleted {
					continue
				}
				if b >= len(status) || status[b] != f.Allocated() {
					return fmt.Errorf("%w: send slot %d (block %d field %q)",
						ErrAllocStatusMismatch, b, blk.GID, f.Name)
				}

				d := BufferDescriptor{
					NV:        f.NV,
					Allocated: f.Allocated(),
					block:     blk,
					fld:       f,
					fidx:      fidx,
					nbIdx:     n,
				}

				switch {
				case nb.Level == myLevel:
					d.I = loadSame(nb.OX1, blk.Nghost, blk.CellBounds.Interior(mesh.X1))
					d.J = loadSame(nb.OX2, blk.Nghost, blk.CellBounds.Interior(mesh.X2))
					d.K = loadSame(nb.OX3, blk.Nghost, blk.CellBounds.Interior(mesh.X3))
					d.Var = f.Data
				case nb.Level < myLevel:
					// same formula over the coarse bounds; the pack
					// source is the freshly restricted coarse view
					d.I = loadSame(nb.OX1, blk.Nghost, blk.CoarseCellBounds.Interior(mesh.X1))
					d.J = loadSame(nb.OX2, blk.Nghost, blk.CoarseCellBounds.Interior(mesh.X2))
					d.K = loadSame(nb.OX3, blk.Nghost, blk.CoarseCellBounds.Interior(mesh.X3))
					d.Var = f.Coarse
					d.Fine = f.Data
					d.Restriction = true
				default:
					d.I, d.J, d.K = loadToFiner(nb, blk)
					d.Var = f.Data
				}

				_, _, _, values := d.Counts()
				bufLen := values + 1 // trailing sentinel slot

				// same rank with the neighbor's field allocated:
				// pack straight into the target's receive buffer
				if nb.Rank == ds.Mesh.Rank && f.LocalNeighborAllocated[n] {
					target, ok := ds.Mesh.FindBlock(nb.GID)
					if !ok {
						return fmt.Errorf("%w: local neighbor gid %d missing", ErrAllocStatusMismatch, nb.GID)
					}
					tf, ok := target.Field(f.Name)
					if !ok {
						return fmt.Errorf("%w: field %q missing on block %d", ErrAllocStatusMismatch, f.Name, nb.GID)
					}
					d.Buf = tf.Boundary.EnsureRecv(nb.TargetID, bufLen)
					d.Direct = true
				} else {
					d.Buf = f.Boundary.EnsureSend(nb.BufID, bufLen)
				}

				descs = append(descs, d)
				b++
			}
		}
	}
	if b != len(status) {
		return fmt.Errorf("%w: enumerated %d send slots, expected %d", ErrAllocStatusMismatch, b, len(status))
	}

	ds.send.descriptors = descs
	ds.send.allocStatus = status
	ds.send.valid = true
	ds.send.rebuilds++
	ds.sendingNonzero = make([]bool, len(descs))
	return nil
}

// ensureSetDescriptors is the receive-side EnsureValid. It is keyed only on
// allocation status: set geometry does not depend on restriction.
func (ds *BlockSet) ensureSetDescriptors(status []bool) error {
	if ds.set.valid && equalBools(status, ds.set.allocStatus) {
		return nil
	}
	if err := ds.rebuildSetDescriptors(status); err != nil {
		return err
	}
	observability.RecordCacheRebuild("set")
	ds.log.Debug().Int("descriptors", len(ds.set.descriptors)).Msg("set descriptor cache rebuilt")
	return nil
}

func (ds *BlockSet) rebuildSetDescriptors(status []bool) error {
	descs := make([]BufferDescriptor, 0, len(status))
	b := 0
	for _, blk := range ds.Blocks {
		myLevel := blk.Loc.Level
		for fidx, f := range blk.GhostFields() {
			for n, nb := range blk.Neighbors {
				if b >= len(status) || status[b] != f.Allocated() {
					return fmt.Errorf("%w: set slot %d (block %d field %q)",
						ErrAllocStatusMismatch, b, blk.GID, f.Name)
				}

				d := BufferDescriptor{
					NV:        f.NV,
					Allocated: f.Allocated(),
					block:     blk,
					fld:       f,
					fidx:      fidx,
					nbIdx:     n,
				}

				switch {
				case nb.Level == myLevel:
					d.I = setSame(nb.OX1, blk.Nghost, blk.CellBounds.Interior(mesh.X1))
					d.J = setSame(nb.OX2, blk.Nghost, blk.CellBounds.Interior(mesh.X2))
					d.K = setSame(nb.OX3, blk.Nghost, blk.CellBounds.Interior(mesh.X3))
					d.Var = f.Data
				case nb.Level < myLevel:
					// data from a coarser neighbor lands in the
					// coarse view; prolongation reads it later
					cg := blk.CoarseNghost
					d.I = setFromCoarser(nb.OX1, cg, blk.CoarseCellBounds.Interior(mesh.X1), blk.Loc.LX1, true)
					d.J = setFromCoarser(nb.OX2, cg, blk.CoarseCellBounds.Interior(mesh.X2), blk.Loc.LX2, blk.Size.NX2 > 1)
					d.K = setFromCoarser(nb.OX3, cg, blk.CoarseCellBounds.Interior(mesh.X3), blk.Loc.LX3, blk.Size.NX3 > 1)
					d.Var = f.Coarse
				default:
					d.I, d.J, d.K = setFromFiner(nb, blk)
					d.Var = f.Data
				}

				_, _, _, values := d.Counts()
				d.Buf = f.Boundary.EnsureRecv(nb.BufID, values+1)

				descs = append(descs, d)
				b++
			}
		}
	}
	if b != len(status) {
		return fmt.Errorf("%w: enumerated %d set slots, expected %d", ErrAllocStatusMismatch, b, len(status))
	}

	ds.set.descriptors = descs
	ds.set.allocStatus = status
	ds.set.valid = true
	ds.set.rebuilds++
	return nil
}
