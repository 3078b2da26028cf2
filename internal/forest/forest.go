// Package forest holds the coarse block-forest topology: nodes, edges, and
// faces of the 2-D macro-mesh that the block hierarchy is rooted in. Nodes
// and faces reference each other cyclically, so a single registry owns both
// and hands out dense integer ids; everything else stores ids.
package forest

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition marks dimensionality violations and references to
	// ids the registry never issued.
	ErrPrecondition = errors.New("forest: precondition violation")
)

// Direction is a logical axis of the forest.
type Direction int

const (
	DirI Direction = iota
	DirJ
	DirK
)

// EdgeLoc names one edge of a face by axis and side.
type EdgeLoc struct {
	Dir   Direction
	Lower bool
}

// The four edges of a 2-D face. South and North run along I, West and East
// along J.
var (
	South = EdgeLoc{Dir: DirI, Lower: true}
	North = EdgeLoc{Dir: DirI, Lower: false}
	West  = EdgeLoc{Dir: DirJ, Lower: true}
	East  = EdgeLoc{Dir: DirJ, Lower: false}
)

// EdgeLocs enumerates the edges in a fixed order.
var EdgeLocs = [4]EdgeLoc{South, North, West, East}

// FaceIdx2D maps the edge onto the 3x3x3 neighbor-offset encoding used by
// boundary ids, centered at 13. K-direction connectivity has no meaning on a
// 2-D forest.
func (l EdgeLoc) FaceIdx2D() (int, error) {
	if l.Dir == DirK {
		return 0, fmt.Errorf("%w: K-direction edge on a 2-D forest", ErrPrecondition)
	}
	sign := 1
	if l.Lower {
		sign = -1
	}
	stride := 1
	if (int(l.Dir)+1)%2 == 1 {
		stride = 3
	}
	return sign*stride + 1 + 3 + 9, nil
}

// NodeID and FaceID index the owning registry.
type NodeID int
type FaceID int

// Edge is a pair of node ids with an orientation given by their order.
type Edge struct {
	Nodes [2]NodeID
	Dir   Direction
}

// RelativeOrientation reports 1 when e2 traverses the same nodes in the same
// order, -1 when reversed, 0 when the edges differ.
func (e Edge) RelativeOrientation(e2 Edge) int {
	switch {
	case e.Nodes == e2.Nodes:
		return 1
	case e.Nodes[0] == e2.Nodes[1] && e.Nodes[1] == e2.Nodes[0]:
		return -1
	default:
		return 0
	}
}

type node struct {
	x     [2]float64
	faces []FaceID
}

type face struct {
	nodes [4]NodeID
	edges [4]Edge
}

// NeighborDesc describes one face found across an edge: which face, which of
// its edges is shared, and the relative traversal orientation.
type NeighborDesc struct {
	Face        FaceID
	Loc         EdgeLoc
	Orientation int
}

// Forest owns all nodes and faces of one topology.
type Forest struct {
	nodes []node
	faces []face
}

// New returns an empty forest.
func New() *Forest {
	return &Forest{}
}

// AddNode registers a node at (x, y) and returns its id.
func (f *Forest) AddNode(x, y float64) NodeID {
	f.nodes = append(f.nodes, node{x: [2]float64{x, y}})
	return NodeID(len(f.nodes) - 1)
}

// AddFace registers a face over four existing nodes, ordered
// (SW, SE, NW, NE), and links it back into each node.
func (f *Forest) AddFace(n [4]NodeID) (FaceID, error) {
	for _, id := range n {
		if id < 0 || int(id) >= len(f.nodes) {
			return 0, fmt.Errorf("%w: node id %d", ErrPrecondition, id)
		}
	}
	fc := face{nodes: n}
	fc.edges[edgeSlot(South)] = Edge{Nodes: [2]NodeID{n[0], n[1]}, Dir: DirI}
	fc.edges[edgeSlot(West)] = Edge{Nodes: [2]NodeID{n[0], n[2]}, Dir: DirJ}
	fc.edges[edgeSlot(East)] = Edge{Nodes: [2]NodeID{n[1], n[3]}, Dir: DirJ}
	fc.edges[edgeSlot(North)] = Edge{Nodes: [2]NodeID{n[2], n[3]}, Dir: DirI}

	id := FaceID(len(f.faces))
	f.faces = append(f.faces, fc)
	for _, nid := range n {
		f.nodes[nid].faces = append(f.nodes[nid].faces, id)
	}
	return id, nil
}

func edgeSlot(l EdgeLoc) int {
	for i, e := range EdgeLocs {
		if e == l {
			return i
		}
	}
	return -1
}

// NodePos returns the coordinates of a node.
func (f *Forest) NodePos(id NodeID) ([2]float64, error) {
	if id < 0 || int(id) >= len(f.nodes) {
		return [2]float64{}, fmt.Errorf("%w: node id %d", ErrPrecondition, id)
	}
	return f.nodes[id].x, nil
}

// FaceNodes returns the four node ids of a face.
func (f *Forest) FaceNodes(id FaceID) ([4]NodeID, error) {
	if id < 0 || int(id) >= len(f.faces) {
		return [4]NodeID{}, fmt.Errorf("%w: face id %d", ErrPrecondition, id)
	}
	return f.faces[id].nodes, nil
}

// FacesOfNode returns the faces touching a node.
func (f *Forest) FacesOfNode(id NodeID) ([]FaceID, error) {
	if id < 0 || int(id) >= len(f.nodes) {
		return nil, fmt.Errorf("%w: node id %d", ErrPrecondition, id)
	}
	out := make([]FaceID, len(f.nodes[id].faces))
	copy(out, f.nodes[id].faces)
	return out, nil
}

// FaceEdge returns the edge of a face at loc.
func (f *Forest) FaceEdge(id FaceID, loc EdgeLoc) (Edge, error) {
	if id < 0 || int(id) >= len(f.faces) {
		return Edge{}, fmt.Errorf("%w: face id %d", ErrPrecondition, id)
	}
	slot := edgeSlot(loc)
	if slot < 0 {
		return Edge{}, fmt.Errorf("%w: edge location %+v", ErrPrecondition, loc)
	}
	return f.faces[id].edges[slot], nil
}

// FindEdgeNeighbors returns every other face sharing the given edge of fid,
// with the matching edge location on the neighbor and the relative
// orientation of the two traversals. Candidates come from the faces linked to
// the edge's two endpoint nodes, so the scan is local to the edge.
func (f *Forest) FindEdgeNeighbors(fid FaceID, loc EdgeLoc) ([]NeighborDesc, error) {
	edge, err := f.FaceEdge(fid, loc)
	if err != nil {
		return nil, err
	}

	seen := make(map[FaceID]bool)
	var out []NeighborDesc
	for _, nid := range edge.Nodes {
		for _, cand := range f.nodes[nid].faces {
			if cand == fid || seen[cand] {
				continue
			}
			seen[cand] = true
			for slot, candLoc := range EdgeLocs {
				if orient := edge.RelativeOrientation(f.faces[cand].edges[slot]); orient != 0 {
					out = append(out, NeighborDesc{Face: cand, Loc: candLoc, Orientation: orient})
				}
			}
		}
	}
	return out, nil
}
