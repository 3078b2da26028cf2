// Package mesh holds the block-structured mesh model consumed by the ghost
// exchange: logical locations, index bounds, neighbor descriptors, and the
// per-rank block registry. Mesh construction policy (partitioning, neighbor
// discovery) is owned by the topology layer; this package only validates and
// stores what it is handed.
package mesh

import (
	"errors"
	"fmt"

	"github.com/danmuck/haloctl/internal/field"
)

var (
	// ErrPrecondition marks dimensionality or shape violations. These are
	// fatal: the topology layer handed us something malformed.
	ErrPrecondition = errors.New("mesh: precondition violation")

	// ErrUnknownField marks a lookup of a field name never registered on
	// the block.
	ErrUnknownField = errors.New("mesh: unknown field")
)

// MeshBlock is a rectangular grid of cells at one refinement level, owned by
// the mesh for one AMR topology epoch.
type MeshBlock struct {
	GID  int
	Loc  LogicalLocation
	Size BlockSize

	Nghost       int
	CoarseNghost int

	CellBounds       IndexShape
	CoarseCellBounds IndexShape
	CoarseSize       BlockSize

	Neighbors []NeighborBlock

	fields []*field.Field
	byName map[string]*field.Field
}

// NewBlock validates the block shape and computes its index bounds.
func NewBlock(gid int, loc LogicalLocation, size BlockSize, nghost, cnghost int) (*MeshBlock, error) {
	if nghost < 1 || cnghost < 1 {
		return nil, fmt.Errorf("%w: ghost widths must be >= 1 (got %d, %d)", ErrPrecondition, nghost, cnghost)
	}
	if size.NX1 < 1 || size.NX2 < 1 || size.NX3 < 1 {
		return nil, fmt.Errorf("%w: block size %+v", ErrPrecondition, size)
	}
	if size.NX3 > 1 && size.NX2 == 1 {
		return nil, fmt.Errorf("%w: 3-D extent with trivial second axis", ErrPrecondition)
	}
	coarse := BlockSize{NX1: 1, NX2: 1, NX3: 1}
	nx := [3]int{size.NX1, size.NX2, size.NX3}
	cx := [3]*int{&coarse.NX1, &coarse.NX2, &coarse.NX3}
	for ax := 0; ax < 3; ax++ {
		if nx[ax] == 1 {
			continue
		}
		if nx[ax]%2 != 0 || nx[ax] < 2*nghost {
			return nil, fmt.Errorf("%w: axis extent %d not divisible for refinement (nghost %d)",
				ErrPrecondition, nx[ax], nghost)
		}
		*cx[ax] = nx[ax] / 2
	}
	return &MeshBlock{
		GID:              gid,
		Loc:              loc,
		Size:             size,
		Nghost:           nghost,
		CoarseNghost:     cnghost,
		CellBounds:       NewIndexShape(size, nghost),
		CoarseCellBounds: NewIndexShape(coarse, cnghost),
		CoarseSize:       coarse,
		byName:           make(map[string]*field.Field),
	}, nil
}

// AddNeighbor appends one adjacency descriptor.
func (b *MeshBlock) AddNeighbor(nb NeighborBlock) {
	b.Neighbors = append(b.Neighbors, nb)
}

// NewField registers a field on the block in enumeration order. The order of
// NewField calls is the fixed field enumeration order used by the exchange;
// it must be identical on every rank.
func (b *MeshBlock) NewField(spec field.Spec) (*field.Field, error) {
	if spec.Name == "" || spec.NV < 1 {
		return nil, fmt.Errorf("%w: field spec %+v", ErrPrecondition, spec)
	}
	if _, dup := b.byName[spec.Name]; dup {
		return nil, fmt.Errorf("%w: duplicate field %q", ErrPrecondition, spec.Name)
	}
	fine := [4]int{
		spec.NV,
		b.CellBounds.Entire(X3).N(),
		b.CellBounds.Entire(X2).N(),
		b.CellBounds.Entire(X1).N(),
	}
	coarse := [4]int{
		spec.NV,
		b.CoarseCellBounds.Entire(X3).N(),
		b.CoarseCellBounds.Entire(X2).N(),
		b.CoarseCellBounds.Entire(X1).N(),
	}
	f := field.New(spec, fine, coarse)
	b.fields = append(b.fields, f)
	b.byName[spec.Name] = f
	return f, nil
}

// Fields returns all fields in registration order.
func (b *MeshBlock) Fields() []*field.Field {
	return b.fields
}

// Field looks a field up by name.
func (b *MeshBlock) Field(name string) (*field.Field, bool) {
	f, ok := b.byName[name]
	return f, ok
}

// GhostFields returns the fields participating in ghost exchange, in
// registration order. Index positions in this slice are the wire field ids.
func (b *MeshBlock) GhostFields() []*field.Field {
	out := make([]*field.Field, 0, len(b.fields))
	for _, f := range b.fields {
		if f.FillGhost {
			out = append(out, f)
		}
	}
	return out
}

// AllocateSparse materializes storage for the named sparse field.
func (b *MeshBlock) AllocateSparse(name string) error {
	f, ok := b.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	f.Allocate()
	return nil
}
