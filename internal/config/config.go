// Package config loads the immutable runtime configuration of a rank: the
// exchange tuning knobs plus the transport wiring to peer ranks. The loaded
// value is constructed once at startup and passed explicitly to every
// component that needs it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full per-rank configuration file.
type Config struct {
	Name      string   `toml:"name"`
	Rank      int      `toml:"rank"`
	AdminAddr string   `toml:"admin_addr"`
	Exchange  Exchange `toml:"exchange"`
	Peers     []Peer   `toml:"peers"`
}

// Exchange holds the ghost-exchange knobs. It is read-only after load.
type Exchange struct {
	// Nghost is the ghost width at the block's own level; CoarseNghost is
	// the ghost width of the coarse views used across level boundaries.
	Nghost       int `toml:"nghost"`
	CoarseNghost int `toml:"coarse_nghost"`

	// ReceiveTimeoutRaw bounds how long Receive may keep reporting
	// incomplete before the run is aborted. Empty, zero, or negative
	// disables the bound. A duration string ("30s").
	ReceiveTimeoutRaw string        `toml:"receive_timeout"`
	ReceiveTimeout    time.Duration `toml:"-"`

	Sparse Sparse `toml:"sparse"`
}

// Sparse configures the sparse-field optimizations.
type Sparse struct {
	Enabled bool `toml:"enabled"`
	// AllocationThreshold is the magnitude above which a packed value
	// counts as nonzero for the buffer sentinel.
	AllocationThreshold float64 `toml:"allocation_threshold"`
}

// Peer names one remote rank and its transport address.
type Peer struct {
	Rank int    `toml:"rank"`
	Addr string `toml:"addr"`
}

// Default returns the configuration used when a field is absent.
func Default() Config {
	return Config{
		Name:      "rank-0",
		AdminAddr: ":9200",
		Exchange: Exchange{
			Nghost:         2,
			CoarseNghost:   2,
			ReceiveTimeout: 30 * time.Second,
			Sparse: Sparse{
				Enabled:             true,
				AllocationThreshold: 1e-12,
			},
		},
	}
}

// Load reads, defaults, and validates the configuration at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw TOML, applies defaults, and validates.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed: %w", err)
	}
	if raw := strings.TrimSpace(cfg.Exchange.ReceiveTimeoutRaw); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse receive_timeout: %w", err)
		}
		cfg.Exchange.ReceiveTimeout = d
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("config missing name")
	}
	if cfg.Rank < 0 {
		return fmt.Errorf("config rank must be >= 0")
	}
	if cfg.Exchange.Nghost < 1 {
		return fmt.Errorf("config nghost must be >= 1")
	}
	if cfg.Exchange.CoarseNghost < 1 {
		return fmt.Errorf("config coarse_nghost must be >= 1")
	}
	if cfg.Exchange.Sparse.AllocationThreshold < 0 {
		return fmt.Errorf("config allocation_threshold must be >= 0")
	}
	seen := make(map[int]bool)
	for i, p := range cfg.Peers {
		if p.Rank == cfg.Rank {
			return fmt.Errorf("peer[%d] duplicates own rank %d", i, p.Rank)
		}
		if seen[p.Rank] {
			return fmt.Errorf("peer[%d] duplicates rank %d", i, p.Rank)
		}
		seen[p.Rank] = true
		if strings.TrimSpace(p.Addr) == "" {
			return fmt.Errorf("peer[%d] missing addr", i)
		}
	}
	return nil
}
