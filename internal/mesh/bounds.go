package mesh

// IndexRange is an inclusive 1-D index interval.
type IndexRange struct {
	S int
	E int
}

// N returns the number of indices in the range.
func (r IndexRange) N() int {
	return r.E - r.S + 1
}

// Axis identifies one logical mesh direction.
type Axis int

const (
	X1 Axis = iota
	X2
	X3
)

// IndexShape holds the interior and entire index bounds of a block along each
// axis. Trivial axes (extent 1) collapse to the single index 0 with no ghosts.
type IndexShape struct {
	interior [3]IndexRange
	entire   [3]IndexRange
}

// NewIndexShape computes bounds for a block of the given size with nghost
// ghost cells on every non-trivial axis.
func NewIndexShape(size BlockSize, nghost int) IndexShape {
	var s IndexShape
	nx := [3]int{size.NX1, size.NX2, size.NX3}
	for ax := 0; ax < 3; ax++ {
		if nx[ax] > 1 {
			s.interior[ax] = IndexRange{S: nghost, E: nghost + nx[ax] - 1}
			s.entire[ax] = IndexRange{S: 0, E: nx[ax] + 2*nghost - 1}
		} else {
			s.interior[ax] = IndexRange{S: 0, E: 0}
			s.entire[ax] = IndexRange{S: 0, E: 0}
		}
	}
	return s
}

// Interior returns the interior bounds along ax.
func (s IndexShape) Interior(ax Axis) IndexRange {
	return s.interior[ax]
}

// Entire returns the bounds including ghost cells along ax.
func (s IndexShape) Entire(ax Axis) IndexRange {
	return s.entire[ax]
}

// EntireCount returns the total cell count including ghosts.
func (s IndexShape) EntireCount() int {
	return s.entire[0].N() * s.entire[1].N() * s.entire[2].N()
}
