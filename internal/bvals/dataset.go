// Package bvals implements the distributed ghost-cell exchange: descriptor
// caching, buffer packing with restriction, local and cross-rank delivery,
// and ghost-zone unpacking with sparse-field semantics. The four exported
// task bodies (StartReceive, Send, Receive, Set) are sequenced by an external
// scheduler; within a step only Receive may report incomplete.
package bvals

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/haloctl/internal/config"
	"github.com/danmuck/haloctl/internal/mesh"
	"github.com/danmuck/haloctl/internal/transport"
)

// BlockSet is the unit the exchange operates on: the blocks of one mesh that
// step together, plus the per-set descriptor caches. Caches live here so a
// topology change (a new BlockSet) naturally discards them.
type BlockSet struct {
	// Epoch tags the set in log lines across its lifetime.
	Epoch string

	Mesh      *mesh.Mesh
	Blocks    []*mesh.MeshBlock
	Config    config.Exchange
	Transport transport.Transport

	log zerolog.Logger

	send           descriptorCache
	set            descriptorCache
	sendingNonzero []bool

	// step counts opened exchange steps; outgoing messages are stamped
	// with it and arrivals are matched against it, so a peer running
	// ahead cannot clobber this rank's current-step buffers. early holds
	// arrivals stamped with a future step until this rank catches up.
	step      uint64
	early     []transport.Message
	recvStart time.Time
}

type descriptorCache struct {
	valid       bool
	allocStatus []bool
	descriptors []BufferDescriptor
	rebuilds    int
}

// NewBlockSet builds a set over every block of m. The transport may be nil
// for meshes with no cross-rank neighbors.
func NewBlockSet(m *mesh.Mesh, cfg config.Exchange, tr transport.Transport) *BlockSet {
	epoch := uuid.NewString()
	return &BlockSet{
		Epoch:     epoch,
		Mesh:      m,
		Blocks:    m.Blocks(),
		Config:    cfg,
		Transport: tr,
		log:       log.With().Str("component", "bvals").Str("epoch", epoch).Logger(),
	}
}

// SendRebuilds reports how many times the send-side descriptor cache has
// been rebuilt over the set's lifetime; SetRebuilds the same for the set
// side. Used by operational stats and tests of the rebuild gating.
func (ds *BlockSet) SendRebuilds() int { return ds.send.rebuilds }

func (ds *BlockSet) SetRebuilds() int { return ds.set.rebuilds }

func equalBools(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
