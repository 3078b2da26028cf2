package ranknode

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/haloctl/internal/bvals"
	"github.com/danmuck/haloctl/internal/config"
	"github.com/danmuck/haloctl/internal/mesh"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	m := mesh.NewMesh(0)
	blk, err := mesh.NewBlock(0, mesh.LogicalLocation{},
		mesh.BlockSize{NX1: 4, NX2: 1, NX3: 1}, 2, 2)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	if err := m.AddBlock(blk); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	set := bvals.NewBlockSet(m, config.Default().Exchange, nil)
	s := NewServer("rank-0", 0, ":0", set)
	s.RegisterRoutes()
	return s
}

func getJSON(t *testing.T, s *Server, path string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET %s: status %d body=%s", path, rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestHealthAndReady(t *testing.T) {
	s := testServer(t)

	body := getJSON(t, s, "/health")
	if body["status"] != "ok" || body["name"] != "rank-0" {
		t.Fatalf("unexpected health body: %#v", body)
	}

	body = getJSON(t, s, "/ready")
	if body["ready"] != true {
		t.Fatalf("unexpected ready body: %#v", body)
	}
}

func TestStatsReportsExchangeCounters(t *testing.T) {
	s := testServer(t)
	s.MarkStep()
	s.MarkStep()

	body := getJSON(t, s, "/stats")
	if body["steps"] != float64(2) {
		t.Fatalf("steps = %v", body["steps"])
	}
	if body["blocks"] != float64(1) {
		t.Fatalf("blocks = %v", body["blocks"])
	}
	if _, ok := body["epoch"].(string); !ok {
		t.Fatalf("epoch missing: %#v", body)
	}
	if body["send_cache_rebuilds"] != float64(0) {
		t.Fatalf("send_cache_rebuilds = %v", body["send_cache_rebuilds"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /metrics: status %d", rr.Code)
	}
}
