package mesh

import (
	"fmt"
	"sort"
)

// Mesh is the per-rank block registry. Blocks owned by other ranks are known
// only through NeighborBlock descriptors.
type Mesh struct {
	// Rank is this process's execution rank.
	Rank int
	// Multilevel is true when the mesh spans more than one refinement
	// level, enabling the coarse views and restriction path.
	Multilevel bool

	blocks map[int]*MeshBlock
	order  []int
}

// NewMesh returns an empty registry for rank.
func NewMesh(rank int) *Mesh {
	return &Mesh{
		Rank:   rank,
		blocks: make(map[int]*MeshBlock),
	}
}

// AddBlock registers a locally-owned block.
func (m *Mesh) AddBlock(b *MeshBlock) error {
	if _, dup := m.blocks[b.GID]; dup {
		return fmt.Errorf("%w: duplicate block gid %d", ErrPrecondition, b.GID)
	}
	m.blocks[b.GID] = b
	m.order = append(m.order, b.GID)
	sort.Ints(m.order)
	return nil
}

// FindBlock returns the locally-owned block with the given gid.
func (m *Mesh) FindBlock(gid int) (*MeshBlock, bool) {
	b, ok := m.blocks[gid]
	return b, ok
}

// Blocks returns locally-owned blocks in ascending gid order. This is the
// block enumeration order of the exchange.
func (m *Mesh) Blocks() []*MeshBlock {
	out := make([]*MeshBlock, 0, len(m.order))
	for _, gid := range m.order {
		out = append(out, m.blocks[gid])
	}
	return out
}

// RefreshLocalNeighborAllocated updates, for every ghost field of b, the
// per-neighbor record of whether the same-rank neighbor currently has the
// field allocated. Cross-rank neighbors are recorded as false; their
// allocation state travels with the message sentinel instead.
func (m *Mesh) RefreshLocalNeighborAllocated(b *MeshBlock) {
	for _, f := range b.GhostFields() {
		if len(f.LocalNeighborAllocated) != len(b.Neighbors) {
			f.LocalNeighborAllocated = make([]bool, len(b.Neighbors))
		}
		for n, nb := range b.Neighbors {
			f.LocalNeighborAllocated[n] = false
			if nb.Rank != m.Rank {
				continue
			}
			target, ok := m.blocks[nb.GID]
			if !ok {
				continue
			}
			if tf, ok := target.Field(f.Name); ok {
				f.LocalNeighborAllocated[n] = tf.Allocated()
			}
		}
	}
}
