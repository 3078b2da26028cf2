package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/haloctl/internal/bvals"
	"github.com/danmuck/haloctl/internal/config"
	"github.com/danmuck/haloctl/internal/field"
	"github.com/danmuck/haloctl/internal/logging"
	"github.com/danmuck/haloctl/internal/mesh"
	"github.com/danmuck/haloctl/internal/ranknode"
	"github.com/danmuck/haloctl/internal/tasks"
	"github.com/danmuck/haloctl/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config (defaults when empty)")
	adminAddr := flag.String("addr", "", "admin listen address (overrides config)")
	listenAddr := flag.String("listen", ":9100", "transport listen address (used when peers are configured)")
	steps := flag.Int("steps", 10, "number of exchange steps to run")
	writeTemplate := flag.String("write-template", "", "write a config template to the given path and exit")
	flag.Parse()

	logging.ConfigureRuntime()
	logger := logging.WithApp("haloctl")

	if *writeTemplate != "" {
		if err := config.WriteTemplate(*writeTemplate, false); err != nil {
			fmt.Fprintf(os.Stderr, "haloctl: %v\n", err)
			os.Exit(1)
		}
		logger.Info().Str("path", *writeTemplate).Msg("wrote config template")
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "haloctl: %v\n", err)
			os.Exit(1)
		}
	}
	if *adminAddr != "" {
		cfg.AdminAddr = *adminAddr
	}

	if err := run(cfg, *listenAddr, *steps, logger); err != nil {
		fmt.Fprintf(os.Stderr, "haloctl: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, listenAddr string, steps int, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := demoMesh(cfg)
	if err != nil {
		return err
	}

	var tr transport.Transport
	if len(cfg.Peers) > 0 {
		peers := make(map[int]string, len(cfg.Peers))
		for _, p := range cfg.Peers {
			peers[p.Rank] = p.Addr
		}
		tcp, err := transport.NewTCP(cfg.Rank, listenAddr, peers, logger)
		if err != nil {
			return err
		}
		defer tcp.Close()
		tr = tcp
		logger.Info().Str("listen", tcp.Addr()).Int("peers", len(peers)).Msg("transport up")
	}

	ds := bvals.NewBlockSet(m, cfg.Exchange, tr)
	srv := ranknode.NewServer(cfg.Name, cfg.Rank, cfg.AdminAddr, ds)
	go func() {
		if err := srv.Serve(); err != nil {
			logger.Error().Err(err).Msg("admin server exited")
		}
	}()
	logger.Info().
		Str("name", cfg.Name).
		Int("rank", cfg.Rank).
		Str("epoch", ds.Epoch).
		Int("blocks", len(ds.Blocks)).
		Msg("rank up")

	list := registerStep(ctx, ds)
	logger.Debug().Strs("tasks", list.Names()).Msg("step graph registered")

	for step := 0; step < steps; step++ {
		if ctx.Err() != nil {
			logger.Info().Int("step", step).Msg("interrupted")
			return nil
		}
		start := time.Now()
		list.Reset()
		if err := drive(ctx, list); err != nil {
			return err
		}
		srv.MarkStep()
		logger.Info().
			Int("step", step).
			Dur("elapsed", time.Since(start)).
			Msg("exchange step complete")
	}

	logger.Info().
		Int("steps", steps).
		Int("send_cache_rebuilds", ds.SendRebuilds()).
		Int("set_cache_rebuilds", ds.SetRebuilds()).
		Msg("run complete")
	return nil
}

// drive runs the task list to completion, re-invoking incomplete tasks. The
// only task expected to stay incomplete across passes is the receive poll.
func drive(ctx context.Context, list *tasks.List) error {
	for !list.Done() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		progressed := false
		for _, id := range list.Ready() {
			st, err := list.Run(id)
			if err != nil {
				return err
			}
			if st == tasks.Complete {
				progressed = true
			}
		}
		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}
	return nil
}

// registerStep wires one exchange step plus the trivial time update that
// consumes the freshly filled ghosts.
func registerStep(ctx context.Context, ds *bvals.BlockSet) *tasks.List {
	list := tasks.NewList()
	start := list.Add("start_receive", nil, func() (tasks.Status, error) {
		return bvals.StartReceive(ds)
	})
	send := list.Add("send", []tasks.ID{start}, func() (tasks.Status, error) {
		return bvals.Send(ctx, ds)
	})
	recv := list.Add("receive", []tasks.ID{send}, func() (tasks.Status, error) {
		return bvals.Receive(ds)
	})
	set := list.Add("set", []tasks.ID{recv}, func() (tasks.Status, error) {
		return bvals.Set(ctx, ds)
	})
	list.Add("update", []tasks.ID{set}, func() (tasks.Status, error) {
		return bvals.UpdateData(ctx, ds, "u", "dudt", "u", 0.1)
	})
	return list
}

// demoMesh builds two periodic same-level blocks on this rank: the smallest
// topology that exercises packing, local delivery, and unpacking end to end.
func demoMesh(cfg config.Config) (*mesh.Mesh, error) {
	m := mesh.NewMesh(cfg.Rank)
	size := mesh.BlockSize{NX1: 8, NX2: 1, NX3: 1}
	g := cfg.Exchange.Nghost
	cg := cfg.Exchange.CoarseNghost

	for gid := 0; gid < 2; gid++ {
		blk, err := mesh.NewBlock(gid, mesh.LogicalLocation{LX1: int64(gid)}, size, g, cg)
		if err != nil {
			return nil, err
		}
		other := 1 - gid
		blk.AddNeighbor(mesh.NeighborBlock{
			NeighborIndices: mesh.NeighborIndices{OX1: 1},
			Level:           0, Rank: cfg.Rank, GID: other, BufID: 0, TargetID: 1,
		})
		blk.AddNeighbor(mesh.NeighborBlock{
			NeighborIndices: mesh.NeighborIndices{OX1: -1},
			Level:           0, Rank: cfg.Rank, GID: other, BufID: 1, TargetID: 0,
		})

		u, err := blk.NewField(field.Spec{Name: "u", NV: 1, FillGhost: true})
		if err != nil {
			return nil, err
		}
		if _, err := blk.NewField(field.Spec{Name: "dudt", NV: 1}); err != nil {
			return nil, err
		}
		if _, err := blk.NewField(field.Spec{Name: "tracer", NV: 1, FillGhost: true, Sparse: true}); err != nil {
			return nil, err
		}

		// a ramp across the interior so ghost contents are recognizable
		interior := blk.CellBounds.Interior(mesh.X1)
		for i := interior.S; i <= interior.E; i++ {
			u.Data.Set(0, 0, 0, i, float64(gid*size.NX1+i-interior.S))
		}

		if err := m.AddBlock(blk); err != nil {
			return nil, err
		}
	}
	return m, nil
}
