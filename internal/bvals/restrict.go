package bvals

import (
	"context"

	"github.com/danmuck/haloctl/internal/field"
	"github.com/danmuck/haloctl/internal/mesh"
	"github.com/danmuck/haloctl/internal/parallel"
)

// restrictDescriptors conservatively averages fine data into the coarse view
// of every restriction descriptor, over exactly the coarse cells the
// descriptor will pack. No unrestricted fine data crosses a level boundary:
// this runs on every Send, cached descriptors or not, because the fine data
// changes every step.
//
// Two descriptors of the same field can cover overlapping coarse cells (a
// face box and the adjoining corner box toward distinct coarser neighbors),
// so descriptors sharing a destination array run serially on one worker;
// only distinct arrays restrict concurrently.
func restrictDescriptors(ctx context.Context, descs []BufferDescriptor) error {
	groups := make(map[*field.Array4][]int)
	var order []*field.Array4
	for b := range descs {
		d := &descs[b]
		if !d.Restriction || !d.Allocated {
			continue
		}
		if _, seen := groups[d.Var]; !seen {
			order = append(order, d.Var)
		}
		groups[d.Var] = append(groups[d.Var], b)
	}
	return parallel.TeamFor(ctx, len(order), func(g int) error {
		for _, b := range groups[order[g]] {
			restrictOne(&descs[b])
		}
		return nil
	})
}

func restrictOne(d *BufferDescriptor) {
	blk := d.block
	fis := blk.CellBounds.Interior(mesh.X1).S
	fjs := blk.CellBounds.Interior(mesh.X2).S
	fks := blk.CellBounds.Interior(mesh.X3).S
	cis := blk.CoarseCellBounds.Interior(mesh.X1).S
	cjs := blk.CoarseCellBounds.Interior(mesh.X2).S
	cks := blk.CoarseCellBounds.Interior(mesh.X3).S

	ndim := blk.Size.NDim()
	ni, nj, nk, _ := d.Counts()
	nkj := nk * nj

	parallel.FlatRange(d.NV*nkj, func(idx int) {
		v := idx / nkj
		k := (idx - v*nkj) / nj
		j := idx - v*nkj - k*nj
		ck := k + d.K.S
		cj := j + d.J.S

		for i := 0; i < ni; i++ {
			ci := i + d.I.S
			fi := fis + 2*(ci-cis)

			var sum float64
			switch ndim {
			case 3:
				fj := fjs + 2*(cj-cjs)
				fk := fks + 2*(ck-cks)
				sum = d.Fine.At(v, fk, fj, fi) + d.Fine.At(v, fk, fj, fi+1) +
					d.Fine.At(v, fk, fj+1, fi) + d.Fine.At(v, fk, fj+1, fi+1) +
					d.Fine.At(v, fk+1, fj, fi) + d.Fine.At(v, fk+1, fj, fi+1) +
					d.Fine.At(v, fk+1, fj+1, fi) + d.Fine.At(v, fk+1, fj+1, fi+1)
				sum /= 8
			case 2:
				fj := fjs + 2*(cj-cjs)
				sum = d.Fine.At(v, ck, fj, fi) + d.Fine.At(v, ck, fj, fi+1) +
					d.Fine.At(v, ck, fj+1, fi) + d.Fine.At(v, ck, fj+1, fi+1)
				sum /= 4
			default:
				sum = (d.Fine.At(v, ck, cj, fi) + d.Fine.At(v, ck, cj, fi+1)) / 2
			}
			d.Var.Set(v, ck, cj, ci, sum)
		}
	})
}
