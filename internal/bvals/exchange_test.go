package bvals

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/danmuck/haloctl/internal/config"
	"github.com/danmuck/haloctl/internal/field"
	"github.com/danmuck/haloctl/internal/mesh"
	"github.com/danmuck/haloctl/internal/tasks"
	"github.com/danmuck/haloctl/internal/testutil/testlog"
	"github.com/danmuck/haloctl/internal/transport"
)

func testExchangeConfig() config.Exchange {
	return config.Exchange{
		Nghost:         2,
		CoarseNghost:   2,
		ReceiveTimeout: 5 * time.Second,
		Sparse: config.Sparse{
			Enabled:             true,
			AllocationThreshold: 1e-12,
		},
	}
}

func newBlock1D(t *testing.T, gid, level int, nx, g int) *mesh.MeshBlock {
	t.Helper()
	blk, err := mesh.NewBlock(gid, mesh.LogicalLocation{Level: level},
		mesh.BlockSize{NX1: nx, NX2: 1, NX3: 1}, g, g)
	require.NoError(t, err)
	return blk
}

func addField1D(t *testing.T, blk *mesh.MeshBlock, name string, sparse bool) *field.Field {
	t.Helper()
	f, err := blk.NewField(field.Spec{Name: name, NV: 1, FillGhost: true, Sparse: sparse})
	require.NoError(t, err)
	return f
}

func setInterior1D(blk *mesh.MeshBlock, f *field.Field, vals ...float64) {
	s := blk.CellBounds.Interior(mesh.X1).S
	for i, v := range vals {
		f.Data.Set(0, 0, 0, s+i, v)
	}
}

func ghost1D(f *field.Field, is, ie int) []float64 {
	out := make([]float64, 0, ie-is+1)
	for i := is; i <= ie; i++ {
		out = append(out, f.Data.At(0, 0, 0, i))
	}
	return out
}

// step drives one full exchange over the given sets: all sends are posted
// before any receive is polled, matching the scheduler's task ordering.
func step(t *testing.T, ctx context.Context, sets ...*BlockSet) {
	t.Helper()
	for _, ds := range sets {
		_, err := StartReceive(ds)
		require.NoError(t, err)
	}
	for _, ds := range sets {
		st, err := Send(ctx, ds)
		require.NoError(t, err)
		require.Equal(t, tasks.Complete, st)
	}
	deadline := time.Now().Add(2 * time.Second)
	for _, ds := range sets {
		for {
			st, err := Receive(ds)
			require.NoError(t, err)
			if st == tasks.Complete {
				break
			}
			require.True(t, time.Now().Before(deadline), "receive never completed")
		}
	}
	for _, ds := range sets {
		st, err := Set(ctx, ds)
		require.NoError(t, err)
		require.Equal(t, tasks.Complete, st)
	}
}

// A single block whose left and right faces wrap onto each other: the
// smallest closed topology.
func TestExchangeSingleBlockPeriodic(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	m := mesh.NewMesh(0)
	blk := newBlock1D(t, 0, 0, 4, 2)
	blk.AddNeighbor(mesh.NeighborBlock{
		NeighborIndices: mesh.NeighborIndices{OX1: 1},
		Level:           0, Rank: 0, GID: 0, BufID: 0, TargetID: 1,
	})
	blk.AddNeighbor(mesh.NeighborBlock{
		NeighborIndices: mesh.NeighborIndices{OX1: -1},
		Level:           0, Rank: 0, GID: 0, BufID: 1, TargetID: 0,
	})
	require.NoError(t, m.AddBlock(blk))
	f := addField1D(t, blk, "u", false)
	setInterior1D(blk, f, 1, 2, 3, 4)

	ds := NewBlockSet(m, testExchangeConfig(), nil)
	step(t, ctx, ds)

	require.Equal(t, []float64{3, 4}, ghost1D(f, 0, 1))
	require.Equal(t, []float64{1, 2}, ghost1D(f, 6, 7))
}

func periodicPair(t *testing.T, m *mesh.Mesh, sparse bool) (b0, b1 *mesh.MeshBlock, f0, f1 *field.Field) {
	t.Helper()
	b0 = newBlock1D(t, 0, 0, 4, 2)
	b1 = newBlock1D(t, 1, 0, 4, 2)
	b0.AddNeighbor(mesh.NeighborBlock{
		NeighborIndices: mesh.NeighborIndices{OX1: 1},
		Level:           0, Rank: 0, GID: 1, BufID: 0, TargetID: 1,
	})
	b0.AddNeighbor(mesh.NeighborBlock{
		NeighborIndices: mesh.NeighborIndices{OX1: -1},
		Level:           0, Rank: 0, GID: 1, BufID: 1, TargetID: 0,
	})
	b1.AddNeighbor(mesh.NeighborBlock{
		NeighborIndices: mesh.NeighborIndices{OX1: 1},
		Level:           0, Rank: 0, GID: 0, BufID: 0, TargetID: 1,
	})
	b1.AddNeighbor(mesh.NeighborBlock{
		NeighborIndices: mesh.NeighborIndices{OX1: -1},
		Level:           0, Rank: 0, GID: 0, BufID: 1, TargetID: 0,
	})
	require.NoError(t, m.AddBlock(b0))
	require.NoError(t, m.AddBlock(b1))
	f0 = addField1D(t, b0, "u", sparse)
	f1 = addField1D(t, b1, "u", sparse)
	return b0, b1, f0, f1
}

func TestExchangeTwoBlocksPeriodic(t *testing.T) {
	ctx := context.Background()
	m := mesh.NewMesh(0)
	b0, b1, f0, f1 := periodicPair(t, m, false)
	setInterior1D(b0, f0, 1, 2, 3, 4)
	setInterior1D(b1, f1, 5, 6, 7, 8)

	ds := NewBlockSet(m, testExchangeConfig(), nil)
	step(t, ctx, ds)

	require.Equal(t, []float64{7, 8}, ghost1D(f0, 0, 1))
	require.Equal(t, []float64{5, 6}, ghost1D(f0, 6, 7))
	require.Equal(t, []float64{3, 4}, ghost1D(f1, 0, 1))
	require.Equal(t, []float64{1, 2}, ghost1D(f1, 6, 7))
}

// Running the exchange twice over unchanged data must be a no-op the second
// time: same ghosts, no cache rebuilds beyond the first step.
func TestExchangeIdempotent(t *testing.T) {
	ctx := context.Background()
	m := mesh.NewMesh(0)
	b0, b1, f0, f1 := periodicPair(t, m, false)
	setInterior1D(b0, f0, 1, 2, 3, 4)
	setInterior1D(b1, f1, 5, 6, 7, 8)

	ds := NewBlockSet(m, testExchangeConfig(), nil)
	step(t, ctx, ds)
	want0 := append(ghost1D(f0, 0, 1), ghost1D(f0, 6, 7)...)

	step(t, ctx, ds)
	require.Equal(t, want0, append(ghost1D(f0, 0, 1), ghost1D(f0, 6, 7)...))
	require.Equal(t, 1, ds.SendRebuilds())
	require.Equal(t, 1, ds.SetRebuilds())
}

// Descriptor caches are rebuilt exactly once for any number of steps with a
// stable allocation status, and exactly once more when the status changes.
func TestCacheRebuildGating(t *testing.T) {
	ctx := context.Background()
	m := mesh.NewMesh(0)
	b0, _, f0, _ := periodicPair(t, m, true)

	ds := NewBlockSet(m, testExchangeConfig(), nil)
	for i := 0; i < 4; i++ {
		step(t, ctx, ds)
	}
	require.Equal(t, 1, ds.SendRebuilds())
	require.Equal(t, 1, ds.SetRebuilds())

	require.NoError(t, b0.AllocateSparse("u"))
	require.True(t, f0.Allocated())
	step(t, ctx, ds)
	require.Equal(t, 2, ds.SendRebuilds())
	require.Equal(t, 2, ds.SetRebuilds())

	step(t, ctx, ds)
	require.Equal(t, 2, ds.SendRebuilds())
	require.Equal(t, 2, ds.SetRebuilds())
}

// An unallocated sparse sender is logically zero: the receiver's ghost cells
// are overwritten with explicit zeros, not left holding stale values.
func TestSparseZeroFill(t *testing.T) {
	ctx := context.Background()
	m := mesh.NewMesh(0)
	b0, _, f0, f1 := periodicPair(t, m, true)

	require.NoError(t, b0.AllocateSparse("u"))
	// poison the ghost cells that the unallocated b1 will logically zero
	f0.Data.Set(0, 0, 0, 0, 9)
	f0.Data.Set(0, 0, 0, 1, 9)
	f0.Data.Set(0, 0, 0, 6, 9)
	f0.Data.Set(0, 0, 0, 7, 9)

	ds := NewBlockSet(m, testExchangeConfig(), nil)
	step(t, ctx, ds)

	require.Equal(t, []float64{0, 0}, ghost1D(f0, 0, 1))
	require.Equal(t, []float64{0, 0}, ghost1D(f0, 6, 7))
	// all-zero data never allocates the neighbor
	require.False(t, f1.Allocated())
}

// Nonzero data headed at an unallocated same-rank neighbor allocates the
// neighbor's field during Send, before any unpack can observe it missing.
func TestLocalAllocationHandshake(t *testing.T) {
	ctx := context.Background()
	m := mesh.NewMesh(0)
	b0, _, f0, f1 := periodicPair(t, m, true)

	require.NoError(t, b0.AllocateSparse("u"))
	setInterior1D(b0, f0, 1, 2, 3, 4)

	ds := NewBlockSet(m, testExchangeConfig(), nil)
	step(t, ctx, ds)

	require.True(t, f1.Allocated())
	require.Equal(t, []float64{3, 4}, ghost1D(f1, 0, 1))
	require.Equal(t, []float64{1, 2}, ghost1D(f1, 6, 7))
	// the newly allocated interior is zero
	require.Equal(t, []float64{0, 0, 0, 0}, ghost1D(f1, 2, 5))
}

func crossRankPair(t *testing.T, sparse bool) (ds0, ds1 *BlockSet, f0, f1 *field.Field) {
	t.Helper()
	net := transport.NewLoopbackNetwork()

	m0 := mesh.NewMesh(0)
	b0 := newBlock1D(t, 0, 0, 4, 2)
	b0.AddNeighbor(mesh.NeighborBlock{
		NeighborIndices: mesh.NeighborIndices{OX1: 1},
		Level:           0, Rank: 1, GID: 1, BufID: 0, TargetID: 1,
	})
	b0.AddNeighbor(mesh.NeighborBlock{
		NeighborIndices: mesh.NeighborIndices{OX1: -1},
		Level:           0, Rank: 1, GID: 1, BufID: 1, TargetID: 0,
	})
	require.NoError(t, m0.AddBlock(b0))
	f0 = addField1D(t, b0, "u", sparse)

	m1 := mesh.NewMesh(1)
	b1 := newBlock1D(t, 1, 0, 4, 2)
	b1.AddNeighbor(mesh.NeighborBlock{
		NeighborIndices: mesh.NeighborIndices{OX1: 1},
		Level:           0, Rank: 0, GID: 0, BufID: 0, TargetID: 1,
	})
	b1.AddNeighbor(mesh.NeighborBlock{
		NeighborIndices: mesh.NeighborIndices{OX1: -1},
		Level:           0, Rank: 0, GID: 0, BufID: 1, TargetID: 0,
	})
	require.NoError(t, m1.AddBlock(b1))
	f1 = addField1D(t, b1, "u", sparse)

	ds0 = NewBlockSet(m0, testExchangeConfig(), net.Endpoint(0))
	ds1 = NewBlockSet(m1, testExchangeConfig(), net.Endpoint(1))
	return ds0, ds1, f0, f1
}

func TestCrossRankExchange(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	ds0, ds1, f0, f1 := crossRankPair(t, false)
	setInterior1D(ds0.Blocks[0], f0, 1, 2, 3, 4)
	setInterior1D(ds1.Blocks[0], f1, 5, 6, 7, 8)

	step(t, ctx, ds0, ds1)

	require.Equal(t, []float64{7, 8}, ghost1D(f0, 0, 1))
	require.Equal(t, []float64{5, 6}, ghost1D(f0, 6, 7))
	require.Equal(t, []float64{3, 4}, ghost1D(f1, 0, 1))
	require.Equal(t, []float64{1, 2}, ghost1D(f1, 6, 7))
}

// A nonzero sentinel arriving for an unallocated sparse field allocates it
// before the payload lands.
func TestCrossRankAllocationHandshake(t *testing.T) {
	ctx := context.Background()
	ds0, ds1, f0, f1 := crossRankPair(t, true)
	require.NoError(t, ds0.Blocks[0].AllocateSparse("u"))
	setInterior1D(ds0.Blocks[0], f0, 1, 2, 3, 4)

	step(t, ctx, ds0, ds1)

	require.True(t, f1.Allocated())
	require.Equal(t, []float64{3, 4}, ghost1D(f1, 0, 1))
	require.Equal(t, []float64{1, 2}, ghost1D(f1, 6, 7))
	// the all-zero reply never allocates anything, and zero-fills f0's
	// ghost region explicitly
	require.Equal(t, []float64{0, 0}, ghost1D(f0, 0, 1))
	require.Equal(t, []float64{0, 0}, ghost1D(f0, 6, 7))
}

// Data crossing to a coarser neighbor is conservatively averaged before it
// leaves the rank: the payload holds coarse values, never raw fine cells.
func TestRestrictionBeforeSend(t *testing.T) {
	ctx := context.Background()
	net := transport.NewLoopbackNetwork()
	coarseSide := net.Endpoint(1)

	m := mesh.NewMesh(0)
	blk, err := mesh.NewBlock(0, mesh.LogicalLocation{Level: 1},
		mesh.BlockSize{NX1: 4, NX2: 1, NX3: 1}, 2, 2)
	require.NoError(t, err)
	blk.AddNeighbor(mesh.NeighborBlock{
		NeighborIndices: mesh.NeighborIndices{OX1: -1},
		Level:           0, Rank: 1, GID: 9, BufID: 0, TargetID: 3,
	})
	require.NoError(t, m.AddBlock(blk))
	f := addField1D(t, blk, "u", false)
	setInterior1D(blk, f, 1, 2, 3, 4)

	ds := NewBlockSet(m, testExchangeConfig(), net.Endpoint(0))
	_, err = StartReceive(ds)
	require.NoError(t, err)
	st, err := Send(ctx, ds)
	require.NoError(t, err)
	require.Equal(t, tasks.Complete, st)

	msgs := coarseSide.Poll()
	require.Len(t, msgs, 1)
	require.Equal(t, 9, msgs[0].Key.GID)
	require.Equal(t, 3, msgs[0].Key.Slot)
	// two coarse cells plus the sentinel
	require.Equal(t, []float64{1.5, 3.5, 1}, msgs[0].Payload)
}

// Ranks step independently: one rank may finish a step and post its
// next-step sends before the other has polled at all, leaving two steps'
// payloads in the same inbox. The slower rank must land exactly its
// current-step data and keep the early payloads for its own next step.
func TestCrossRankStepIsolation(t *testing.T) {
	ctx := context.Background()
	ds0, ds1, f0, f1 := crossRankPair(t, false)
	setInterior1D(ds0.Blocks[0], f0, 1, 2, 3, 4)
	setInterior1D(ds1.Blocks[0], f1, 5, 6, 7, 8)

	post := func(ds *BlockSet) {
		t.Helper()
		_, err := StartReceive(ds)
		require.NoError(t, err)
		st, err := Send(ctx, ds)
		require.NoError(t, err)
		require.Equal(t, tasks.Complete, st)
	}
	finish := func(ds *BlockSet) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for {
			st, err := Receive(ds)
			require.NoError(t, err)
			if st == tasks.Complete {
				break
			}
			require.True(t, time.Now().Before(deadline), "receive never completed")
		}
		st, err := Set(ctx, ds)
		require.NoError(t, err)
		require.Equal(t, tasks.Complete, st)
	}

	// both ranks post their first-step sends, only rank 0 finishes
	post(ds0)
	post(ds1)
	finish(ds0)

	// rank 0 runs ahead: fresh interior data, second-step sends posted
	// before rank 1 has polled anything
	setInterior1D(ds0.Blocks[0], f0, 101, 102, 103, 104)
	post(ds0)

	// rank 1's first step sees rank 0's first-step interior, not the
	// second-step payloads sharing the inbox
	finish(ds1)
	require.Equal(t, []float64{3, 4}, ghost1D(f1, 0, 1))
	require.Equal(t, []float64{1, 2}, ghost1D(f1, 6, 7))

	// rank 1 catches up and consumes the held-back payloads
	setInterior1D(ds1.Blocks[0], f1, 105, 106, 107, 108)
	post(ds1)
	finish(ds1)
	require.Equal(t, []float64{103, 104}, ghost1D(f1, 0, 1))
	require.Equal(t, []float64{101, 102}, ghost1D(f1, 6, 7))

	// and rank 0's second step completes instead of timing out
	finish(ds0)
	require.Equal(t, []float64{107, 108}, ghost1D(f0, 0, 1))
	require.Equal(t, []float64{105, 106}, ghost1D(f0, 6, 7))
}

// A receive that can never complete must fail once the configured bound has
// elapsed, and not one poll before.
func TestReceiveTimeout(t *testing.T) {
	ctx := context.Background()
	ds0, ds1, f0, _ := crossRankPair(t, false)
	setInterior1D(ds0.Blocks[0], f0, 1, 2, 3, 4)
	ds0.Config.ReceiveTimeout = 50 * time.Millisecond
	ds1.Transport.(*transport.Loopback).DropAll = true

	// ds1 drops its sends, so ds0's slots stay waiting forever
	_, err := StartReceive(ds0)
	require.NoError(t, err)
	_, err = StartReceive(ds1)
	require.NoError(t, err)
	_, err = Send(ctx, ds1)
	require.NoError(t, err)

	st, err := Receive(ds0)
	require.NoError(t, err)
	require.Equal(t, tasks.Incomplete, st)

	time.Sleep(60 * time.Millisecond)
	_, err = Receive(ds0)
	require.ErrorIs(t, err, ErrReceiveTimeout)
}
