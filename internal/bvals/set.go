package bvals

import (
	"context"
	"time"

	"github.com/danmuck/haloctl/internal/field"
	"github.com/danmuck/haloctl/internal/observability"
	"github.com/danmuck/haloctl/internal/parallel"
	"github.com/danmuck/haloctl/internal/tasks"
)

// Set unpacks every arrived buffer into the destination ghost regions. With
// sparse mode on, a false sentinel materializes "absence" as explicit zeros
// rather than leaving the ghost memory untouched: downstream stencils read
// ghost cells unconditionally. Unallocated destination fields are skipped
// outright: no read, no write.
func Set(ctx context.Context, ds *BlockSet) (tasks.Status, error) {
	status := setAllocStatus(ds)
	if err := ds.ensureSetDescriptors(status); err != nil {
		return tasks.Incomplete, err
	}

	descs := ds.set.descriptors
	sparse := ds.Config.Sparse.Enabled

	start := time.Now()
	err := parallel.TeamFor(ctx, len(descs), func(b int) error {
		d := &descs[b]
		if !d.Allocated {
			return nil
		}

		ni, nj, nk, values := d.Counts()
		nkj := nk * nj
		readBuffer := !sparse || d.Buf[values] != 0

		parallel.FlatRange(d.NV*nkj, func(idx int) {
			v := idx / nkj
			k := (idx - v*nkj) / nj
			j := idx - v*nkj - k*nj
			base := ni * (j + nj*(k+nk*v))
			k += d.K.S
			j += d.J.S
			for i := 0; i < ni; i++ {
				val := 0.0
				if readBuffer {
					val = d.Buf[base+i]
				}
				d.Var.Set(v, k, j, d.I.S+i, val)
			}
		})
		observability.RecordBufferUnpacked()
		return nil
	})
	if err != nil {
		return tasks.Incomplete, err
	}
	observability.RecordKernelDuration("unpack", time.Since(start))

	// slots are consumed for this step once the kernel has run
	for b := range descs {
		d := &descs[b]
		d.fld.Boundary.SetRecvFlag(d.neighbor().BufID, field.StatusCompleted)
	}
	return tasks.Complete, nil
}
