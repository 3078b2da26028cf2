// Package field holds per-block variable storage: the fine data view, the
// coarse restriction view, sparse allocation state, and the raw communication
// buffers used by the ghost exchange.
package field

// Spec declares a field to be attached to a block.
type Spec struct {
	// Name identifies the field; it must be unique per block and is part
	// of the cross-block addressing of exchange messages.
	Name string
	// NV is the number of components per cell.
	NV int
	// FillGhost marks the field as participating in ghost exchange.
	FillGhost bool
	// Sparse fields start unallocated: logically zero with no storage.
	Sparse bool
}

// Field is one named variable on one block.
type Field struct {
	Name      string
	NV        int
	FillGhost bool

	allocated  bool
	fineDims   [4]int
	coarseDims [4]int

	// Data is the fine-resolution view (nil while unallocated). Coarse is
	// the restriction target used when exchanging with coarser neighbors.
	Data   *Array4
	Coarse *Array4

	// Boundary holds raw exchange buffers and per-slot statuses.
	Boundary *BoundaryData

	// LocalNeighborAllocated mirrors, per neighbor index, whether the
	// same-rank neighbor currently has this field allocated. Refreshed at
	// the start of every send.
	LocalNeighborAllocated []bool
}

// New builds a field with the given entire-extent dims for the fine and
// coarse views. Non-sparse fields are allocated immediately.
func New(spec Spec, fineDims, coarseDims [4]int) *Field {
	f := &Field{
		Name:       spec.Name,
		NV:         spec.NV,
		FillGhost:  spec.FillGhost,
		fineDims:   fineDims,
		coarseDims: coarseDims,
		Boundary:   NewBoundaryData(),
	}
	if !spec.Sparse {
		f.Allocate()
	}
	return f
}

// Allocated reports whether the field currently has storage.
func (f *Field) Allocated() bool {
	return f.allocated
}

// Allocate materializes zeroed fine and coarse storage. It is idempotent.
func (f *Field) Allocate() {
	if f.allocated {
		return
	}
	f.Data = NewArray4(f.fineDims[0], f.fineDims[1], f.fineDims[2], f.fineDims[3])
	f.Coarse = NewArray4(f.coarseDims[0], f.coarseDims[1], f.coarseDims[2], f.coarseDims[3])
	f.allocated = true
}
