package bvals

import "github.com/danmuck/haloctl/internal/mesh"

// Index-range arithmetic for packing and unpacking ghost data. These are pure
// functions of the neighbor offset, the ghost widths, and (across level
// boundaries) the orientation flags and block parity; inputs are assumed
// well-formed by the topology layer.

// setSame computes the ghost range filled from a same-level neighbor with
// offset ox along one axis.
func setSame(ox, g int, b mesh.IndexRange) mesh.IndexRange {
	if ox == 0 {
		return b
	}
	if ox > 0 {
		return mesh.IndexRange{S: b.E + 1, E: b.E + g}
	}
	return mesh.IndexRange{S: b.S - g, E: b.S - 1}
}

// setFromCoarser computes the coarse-view range filled from a coarser
// neighbor. For ox == 0 the range is widened by cg on the side selected by
// the block's parity along the axis: only half of the coarse neighbor's ghost
// footprint overlaps a given fine block at a level-boundary face.
func setFromCoarser(ox, cg int, b mesh.IndexRange, lx int64, includeDim bool) mesh.IndexRange {
	if ox == 0 {
		r := b
		if includeDim {
			if lx&1 == 0 {
				r.E += cg
			} else {
				r.S -= cg
			}
		}
		return r
	}
	if ox > 0 {
		return mesh.IndexRange{S: b.E + 1, E: b.E + cg}
	}
	return mesh.IndexRange{S: b.S - cg, E: b.S - 1}
}

// setFromFiner computes the fine-view ranges filled from a finer neighbor. A
// finer neighbor only supplies one sibling's worth of data, so ox == 0 axes
// select the interior half matching the orientation flags.
func setFromFiner(nb mesh.NeighborBlock, blk *mesh.MeshBlock) (ri, rj, rk mesh.IndexRange) {
	g := blk.Nghost
	cb := blk.CellBounds

	ri = cb.Interior(mesh.X1)
	if nb.OX1 == 0 {
		if nb.FI1 == 1 {
			ri.S += blk.Size.NX1 / 2
		} else {
			ri.E -= blk.Size.NX1 / 2
		}
	} else if nb.OX1 > 0 {
		ri = mesh.IndexRange{S: cb.Interior(mesh.X1).E + 1, E: cb.Interior(mesh.X1).E + g}
	} else {
		ri = mesh.IndexRange{S: cb.Interior(mesh.X1).S - g, E: cb.Interior(mesh.X1).S - 1}
	}

	rj = cb.Interior(mesh.X2)
	if nb.OX2 == 0 {
		if blk.Size.NX2 > 1 {
			fi := nb.FI2
			if nb.OX1 != 0 {
				fi = nb.FI1
			}
			if fi == 1 {
				rj.S += blk.Size.NX2 / 2
			} else {
				rj.E -= blk.Size.NX2 / 2
			}
		}
	} else if nb.OX2 > 0 {
		rj = mesh.IndexRange{S: cb.Interior(mesh.X2).E + 1, E: cb.Interior(mesh.X2).E + g}
	} else {
		rj = mesh.IndexRange{S: cb.Interior(mesh.X2).S - g, E: cb.Interior(mesh.X2).S - 1}
	}

	rk = cb.Interior(mesh.X3)
	if nb.OX3 == 0 {
		if blk.Size.NX3 > 1 {
			fi := nb.FI2
			if nb.OX1 != 0 && nb.OX2 != 0 {
				fi = nb.FI1
			}
			if fi == 1 {
				rk.S += blk.Size.NX3 / 2
			} else {
				rk.E -= blk.Size.NX3 / 2
			}
		}
	} else if nb.OX3 > 0 {
		rk = mesh.IndexRange{S: cb.Interior(mesh.X3).E + 1, E: cb.Interior(mesh.X3).E + g}
	} else {
		rk = mesh.IndexRange{S: cb.Interior(mesh.X3).S - g, E: cb.Interior(mesh.X3).S - 1}
	}

	return ri, rj, rk
}

// loadSame computes the interior range packed for a same-level neighbor (or,
// over coarse bounds, for a coarser neighbor): the g interior cells nearest
// the shared face.
func loadSame(ox, g int, b mesh.IndexRange) mesh.IndexRange {
	if ox == 0 {
		return b
	}
	if ox > 0 {
		return mesh.IndexRange{S: b.E - g + 1, E: b.E}
	}
	return mesh.IndexRange{S: b.S, E: b.S + g - 1}
}

// loadToFiner computes the interior ranges packed for a finer neighbor: the
// quadrant/octant matching the requested sibling, widened by the coarse-ghost
// margin so the target can prolong from the sent region.
func loadToFiner(nb mesh.NeighborBlock, blk *mesh.MeshBlock) (ri, rj, rk mesh.IndexRange) {
	cn := blk.CoarseNghost - 1
	cb := blk.CellBounds

	ri = cb.Interior(mesh.X1)
	if nb.OX1 > 0 {
		ri.S = ri.E - cn
	} else if nb.OX1 < 0 {
		ri.E = ri.S + cn
	}
	rj = cb.Interior(mesh.X2)
	if nb.OX2 > 0 {
		rj.S = rj.E - cn
	} else if nb.OX2 < 0 {
		rj.E = rj.S + cn
	}
	rk = cb.Interior(mesh.X3)
	if nb.OX3 > 0 {
		rk.S = rk.E - cn
	} else if nb.OX3 < 0 {
		rk.E = rk.S + cn
	}

	// data is sent wide and prolongated on the target block: faces carry
	// their edges, edges carry their corners
	if nb.OX1 == 0 {
		if nb.FI1 == 1 {
			ri.S += blk.Size.NX1/2 - blk.CoarseNghost
		} else {
			ri.E -= blk.Size.NX1/2 - blk.CoarseNghost
		}
	}
	if nb.OX2 == 0 && blk.Size.NX2 > 1 {
		fi := nb.FI2
		if nb.OX1 != 0 {
			fi = nb.FI1
		}
		if fi == 1 {
			rj.S += blk.Size.NX2/2 - blk.CoarseNghost
		} else {
			rj.E -= blk.Size.NX2/2 - blk.CoarseNghost
		}
	}
	if nb.OX3 == 0 && blk.Size.NX3 > 1 {
		fi := nb.FI2
		if nb.OX1 != 0 && nb.OX2 != 0 {
			fi = nb.FI1
		}
		if fi == 1 {
			rk.S += blk.Size.NX3/2 - blk.CoarseNghost
		} else {
			rk.E -= blk.Size.NX3/2 - blk.CoarseNghost
		}
	}

	return ri, rj, rk
}
