package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opd-ai/go-quadsim/pkg/config"
	"github.com/opd-ai/go-quadsim/pkg/engine"
)

// TestHealthCheckIntegration wires the checks to a real simulation
func TestHealthCheckIntegration(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Particles.Count = 100
	cfg.Server.FrameRate = 200

	sim, err := engine.NewSimulation(cfg)
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}

	hc := NewHealthChecker()
	hc.AddCheck(NewSimulationHealthCheck(sim.Running))
	hc.AddCheck(NewFrameStallHealthCheck(500*time.Millisecond, sim.LastFrameTime))
	hc.AddCheck(NewMemoryHealthCheck(10000, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", hc.LivenessHandler)
	mux.HandleFunc("/ready", hc.ReadinessHandler)
	server := httptest.NewServer(mux)
	defer server.Close()

	ready := func() (int, HealthStatus) {
		t.Helper()
		resp, err := http.Get(server.URL + "/ready")
		if err != nil {
			t.Fatalf("GET /ready: %v", err)
		}
		defer resp.Body.Close()
		var status HealthStatus
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			t.Fatalf("decode /ready: %v", err)
		}
		return resp.StatusCode, status
	}

	t.Run("before the loop starts", func(t *testing.T) {
		code, status := ready()
		if code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", code)
		}
		if status.Checks["simulation"].Status != StatusUnhealthy {
			t.Error("simulation should be unhealthy before Run")
		}
		if status.Checks["frame_stall"].Status != StatusUnhealthy {
			t.Error("frame_stall should be unhealthy before any frame")
		}
		if status.Checks["memory"].Status != StatusHealthy {
			t.Error("memory should be healthy")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	t.Run("while running", func(t *testing.T) {
		deadline := time.Now().Add(2 * time.Second)
		for {
			code, status := ready()
			if code == http.StatusOK {
				if status.Status != StatusHealthy {
					t.Errorf("200 with status %q", status.Status)
				}
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("never became ready: %+v", status)
			}
			time.Sleep(10 * time.Millisecond)
		}
	})

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	t.Run("after stop", func(t *testing.T) {
		code, status := ready()
		if code != http.StatusServiceUnavailable || status.Checks["simulation"].Status != StatusUnhealthy {
			t.Errorf("expected stopped simulation to be unready, got %d %+v", code, status)
		}
	})

	t.Run("liveness ignores checks", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected 200 from /health, got %d", resp.StatusCode)
		}
	})
}

func TestHeapInUseMB(t *testing.T) {
	if mb := HeapInUseMB(); mb < 0 || mb > 1<<20 {
		t.Errorf("HeapInUseMB() = %d", mb)
	}
}
