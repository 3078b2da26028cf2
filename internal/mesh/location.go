package mesh

// LogicalLocation places a block in the refinement hierarchy: a level and an
// integer coordinate along each axis, in units of blocks at that level.
type LogicalLocation struct {
	Level int
	LX1   int64
	LX2   int64
	LX3   int64
}

// LX returns the logical coordinate along ax.
func (l LogicalLocation) LX(ax Axis) int64 {
	switch ax {
	case X1:
		return l.LX1
	case X2:
		return l.LX2
	default:
		return l.LX3
	}
}

// BlockSize is the interior cell count of a block along each axis. Trivial
// axes have extent 1.
type BlockSize struct {
	NX1 int
	NX2 int
	NX3 int
}

// NX returns the extent along ax.
func (b BlockSize) NX(ax Axis) int {
	switch ax {
	case X1:
		return b.NX1
	case X2:
		return b.NX2
	default:
		return b.NX3
	}
}

// NDim returns the dimensionality implied by the extents.
func (b BlockSize) NDim() int {
	switch {
	case b.NX3 > 1:
		return 3
	case b.NX2 > 1:
		return 2
	default:
		return 1
	}
}
