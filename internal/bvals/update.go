package bvals

import (
	"context"
	"fmt"

	"github.com/danmuck/haloctl/internal/field"
	"github.com/danmuck/haloctl/internal/mesh"
	"github.com/danmuck/haloctl/internal/parallel"
	"github.com/danmuck/haloctl/internal/tasks"
)

// fieldTriple resolves three fields on one block, reporting which name was
// missing. Inputs left unallocated read as zero; an unallocated output means
// the block is skipped for the update.
func fieldTriple(blk *mesh.MeshBlock, a, b, out string) (*field.Field, *field.Field, *field.Field, error) {
	fa, ok := blk.Field(a)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %q on block %d", mesh.ErrUnknownField, a, blk.GID)
	}
	fb, ok := blk.Field(b)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %q on block %d", mesh.ErrUnknownField, b, blk.GID)
	}
	fo, ok := blk.Field(out)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %q on block %d", mesh.ErrUnknownField, out, blk.GID)
	}
	return fa, fb, fo, nil
}

// UpdateData computes out = in + dt*dudt over the entire index space of every
// block in the set. Unallocated inputs contribute zero; blocks whose output
// field is unallocated are skipped.
func UpdateData(ctx context.Context, ds *BlockSet, inName, dudtName, outName string, dt float64) (tasks.Status, error) {
	err := parallel.TeamFor(ctx, len(ds.Blocks), func(b int) error {
		blk := ds.Blocks[b]
		fin, fdu, fout, err := fieldTriple(blk, inName, dudtName, outName)
		if err != nil {
			return err
		}
		if !fout.Allocated() {
			return nil
		}

		out := fout.Data.Raw()
		var in, du []float64
		if fin.Allocated() {
			in = fin.Data.Raw()
		}
		if fdu.Allocated() {
			du = fdu.Data.Raw()
		}
		for i := range out {
			var u, d float64
			if in != nil {
				u = in[i]
			}
			if du != nil {
				d = du[i]
			}
			out[i] = u + dt*d
		}
		return nil
	})
	if err != nil {
		return tasks.Incomplete, err
	}
	return tasks.Complete, nil
}

// AverageData blends c1 = wgt1*c1 + (1-wgt1)*c2 in place over the entire
// index space, the convex combination used between integrator stages.
// Unallocated c2 contributes zero; blocks with unallocated c1 are skipped.
func AverageData(ctx context.Context, ds *BlockSet, c1Name, c2Name string, wgt1 float64) (tasks.Status, error) {
	err := parallel.TeamFor(ctx, len(ds.Blocks), func(b int) error {
		blk := ds.Blocks[b]
		f1, ok := blk.Field(c1Name)
		if !ok {
			return fmt.Errorf("%w: %q on block %d", mesh.ErrUnknownField, c1Name, blk.GID)
		}
		f2, ok := blk.Field(c2Name)
		if !ok {
			return fmt.Errorf("%w: %q on block %d", mesh.ErrUnknownField, c2Name, blk.GID)
		}
		if !f1.Allocated() {
			return nil
		}

		c1 := f1.Data.Raw()
		var c2 []float64
		if f2.Allocated() {
			c2 = f2.Data.Raw()
		}
		for i := range c1 {
			var v2 float64
			if c2 != nil {
				v2 = c2[i]
			}
			c1[i] = wgt1*c1[i] + (1.0-wgt1)*v2
		}
		return nil
	})
	if err != nil {
		return tasks.Incomplete, err
	}
	return tasks.Complete, nil
}
