package mesh

import (
	"errors"
	"testing"

	"github.com/danmuck/haloctl/internal/field"
)

func TestNewIndexShape(t *testing.T) {
	s := NewIndexShape(BlockSize{NX1: 4, NX2: 4, NX3: 1}, 2)

	if got := s.Interior(X1); got != (IndexRange{S: 2, E: 5}) {
		t.Fatalf("interior x1 = %+v", got)
	}
	if got := s.Entire(X1); got != (IndexRange{S: 0, E: 7}) {
		t.Fatalf("entire x1 = %+v", got)
	}
	if got := s.Interior(X3); got != (IndexRange{S: 0, E: 0}) {
		t.Fatalf("trivial axis should collapse, got %+v", got)
	}
	if got := s.EntireCount(); got != 64 {
		t.Fatalf("entire count = %d, want 64", got)
	}
}

func TestNewBlockValidation(t *testing.T) {
	cases := []struct {
		name   string
		size   BlockSize
		nghost int
	}{
		{"zero ghost", BlockSize{NX1: 4, NX2: 1, NX3: 1}, 0},
		{"odd extent", BlockSize{NX1: 5, NX2: 1, NX3: 1}, 2},
		{"too small for ghosts", BlockSize{NX1: 2, NX2: 1, NX3: 1}, 2},
		{"3d without 2d", BlockSize{NX1: 4, NX2: 1, NX3: 4}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewBlock(0, LogicalLocation{}, tc.size, tc.nghost, 2); !errors.Is(err, ErrPrecondition) {
				t.Fatalf("want ErrPrecondition, got %v", err)
			}
		})
	}
}

func TestNewBlockCoarseBounds(t *testing.T) {
	blk, err := NewBlock(0, LogicalLocation{}, BlockSize{NX1: 8, NX2: 4, NX3: 1}, 2, 2)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	if blk.CoarseSize != (BlockSize{NX1: 4, NX2: 2, NX3: 1}) {
		t.Fatalf("coarse size = %+v", blk.CoarseSize)
	}
	if got := blk.CoarseCellBounds.Interior(X1); got != (IndexRange{S: 2, E: 5}) {
		t.Fatalf("coarse interior x1 = %+v", got)
	}
}

func TestGhostFieldOrder(t *testing.T) {
	blk, err := NewBlock(0, LogicalLocation{}, BlockSize{NX1: 4, NX2: 1, NX3: 1}, 2, 2)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	mustField := func(name string, fillGhost bool) {
		if _, err := blk.NewField(field.Spec{Name: name, NV: 1, FillGhost: fillGhost}); err != nil {
			t.Fatalf("NewField(%s): %v", name, err)
		}
	}
	mustField("a", true)
	mustField("aux", false)
	mustField("b", true)

	ghost := blk.GhostFields()
	if len(ghost) != 2 || ghost[0].Name != "a" || ghost[1].Name != "b" {
		t.Fatalf("ghost fields = %v", ghost)
	}
	if _, err := blk.NewField(field.Spec{Name: "a", NV: 1}); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("duplicate field registration: %v", err)
	}
}

func TestAllocateSparse(t *testing.T) {
	blk, err := NewBlock(0, LogicalLocation{}, BlockSize{NX1: 4, NX2: 1, NX3: 1}, 2, 2)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	f, err := blk.NewField(field.Spec{Name: "s", NV: 2, FillGhost: true, Sparse: true})
	if err != nil {
		t.Fatalf("NewField: %v", err)
	}
	if f.Allocated() {
		t.Fatal("sparse field should start unallocated")
	}
	if err := blk.AllocateSparse("s"); err != nil {
		t.Fatalf("AllocateSparse: %v", err)
	}
	if !f.Allocated() || f.Data == nil || f.Coarse == nil {
		t.Fatal("allocation did not materialize views")
	}
	if nv, _, _, ni := f.Data.Dims(); nv != 2 || ni != 8 {
		t.Fatalf("fine dims = (%d, ..., %d)", nv, ni)
	}
	if err := blk.AllocateSparse("nope"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("unknown field: %v", err)
	}
}

func TestMeshBlockOrder(t *testing.T) {
	m := NewMesh(0)
	for _, gid := range []int{3, 1, 2} {
		blk, err := NewBlock(gid, LogicalLocation{}, BlockSize{NX1: 4, NX2: 1, NX3: 1}, 2, 2)
		if err != nil {
			t.Fatalf("NewBlock(%d): %v", gid, err)
		}
		if err := m.AddBlock(blk); err != nil {
			t.Fatalf("AddBlock(%d): %v", gid, err)
		}
	}

	blocks := m.Blocks()
	for i, want := range []int{1, 2, 3} {
		if blocks[i].GID != want {
			t.Fatalf("blocks[%d].GID = %d, want %d", i, blocks[i].GID, want)
		}
	}

	dup, _ := NewBlock(2, LogicalLocation{}, BlockSize{NX1: 4, NX2: 1, NX3: 1}, 2, 2)
	if err := m.AddBlock(dup); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("duplicate gid: %v", err)
	}
}

func TestRefreshLocalNeighborAllocated(t *testing.T) {
	m := NewMesh(0)
	b0, _ := NewBlock(0, LogicalLocation{}, BlockSize{NX1: 4, NX2: 1, NX3: 1}, 2, 2)
	b1, _ := NewBlock(1, LogicalLocation{}, BlockSize{NX1: 4, NX2: 1, NX3: 1}, 2, 2)
	b0.AddNeighbor(NeighborBlock{NeighborIndices: NeighborIndices{OX1: 1}, Rank: 0, GID: 1})
	b0.AddNeighbor(NeighborBlock{NeighborIndices: NeighborIndices{OX1: -1}, Rank: 1, GID: 7})
	if err := m.AddBlock(b0); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if err := m.AddBlock(b1); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	f0, _ := b0.NewField(field.Spec{Name: "s", NV: 1, FillGhost: true, Sparse: true})
	if _, err := b1.NewField(field.Spec{Name: "s", NV: 1, FillGhost: true, Sparse: true}); err != nil {
		t.Fatalf("NewField: %v", err)
	}

	m.RefreshLocalNeighborAllocated(b0)
	if f0.LocalNeighborAllocated[0] || f0.LocalNeighborAllocated[1] {
		t.Fatalf("unallocated neighbor reported allocated: %v", f0.LocalNeighborAllocated)
	}

	if err := b1.AllocateSparse("s"); err != nil {
		t.Fatalf("AllocateSparse: %v", err)
	}
	m.RefreshLocalNeighborAllocated(b0)
	if !f0.LocalNeighborAllocated[0] {
		t.Fatal("same-rank allocation not observed")
	}
	// cross-rank allocation state never travels through the registry
	if f0.LocalNeighborAllocated[1] {
		t.Fatal("cross-rank neighbor must report false")
	}
}
