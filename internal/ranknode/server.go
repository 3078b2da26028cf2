// Package ranknode exposes the per-rank admin surface: health and readiness
// probes, exchange statistics, and the Prometheus scrape endpoint.
package ranknode

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/haloctl/internal/bvals"
	"github.com/danmuck/haloctl/internal/observability"
)

// Server is the admin endpoint of one exchange rank.
type Server struct {
	Name    string
	Rank    int
	Addr    string
	Started time.Time

	set    *bvals.BlockSet
	steps  atomic.Uint64
	router *gin.Engine
}

// NewServer builds the admin server for a rank over the given block set.
func NewServer(name string, rank int, addr string, set *bvals.BlockSet) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(rank, log.Logger))
	r.Use(observability.RequestMetricsMiddleware(rank))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Server{
		Name:    name,
		Rank:    rank,
		Addr:    addr,
		Started: time.Now(),
		set:     set,
		router:  r,
	}
}

// MarkStep records one completed exchange step.
func (s *Server) MarkStep() {
	s.steps.Add(1)
}

// HTTPRouter exposes the router for tests.
func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// RegisterRoutes installs the admin endpoints.
func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.Started).String(),
			"rank":   s.Rank,
			"name":   s.Name,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"uptime": time.Since(s.Started).String(),
			"rank":   s.Rank,
			"name":   s.Name,
		})
	})

	s.router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.stats())
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) stats() gin.H {
	out := gin.H{
		"rank":   s.Rank,
		"name":   s.Name,
		"steps":  s.steps.Load(),
		"uptime": time.Since(s.Started).String(),
	}
	if s.set != nil {
		out["epoch"] = s.set.Epoch
		out["blocks"] = len(s.set.Blocks)
		out["send_cache_rebuilds"] = s.set.SendRebuilds()
		out["set_cache_rebuilds"] = s.set.SetRebuilds()
	}
	return out
}

// Serve registers routes and blocks on the listener.
func (s *Server) Serve() error {
	s.RegisterRoutes()
	return s.router.Run(s.Addr)
}
