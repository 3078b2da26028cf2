package mesh

// NeighborIndices describes where a neighbor sits relative to a block: a
// per-axis offset in {-1, 0, 1} plus the orientation flags selecting which
// half of a coarser or finer neighbor participates along the ox==0 axes.
type NeighborIndices struct {
	OX1 int
	OX2 int
	OX3 int
	FI1 int
	FI2 int
}

// OX returns the offset along ax.
func (n NeighborIndices) OX(ax Axis) int {
	switch ax {
	case X1:
		return n.OX1
	case X2:
		return n.OX2
	default:
		return n.OX3
	}
}

// NeighborBlock describes one adjacency of a block. It is immutable for the
// lifetime of the current mesh topology.
type NeighborBlock struct {
	NeighborIndices

	// Level is the neighbor's refinement level.
	Level int
	// Rank is the execution rank owning the neighbor.
	Rank int
	// GID is the neighbor's global block id.
	GID int
	// BufID is the local buffer slot used when exchanging with this
	// neighbor; TargetID is the matching slot on the neighbor's side.
	BufID    int
	TargetID int
}
