// Package health exposes liveness and readiness probes for the headless
// simulation server.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// Status values reported by probes
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// ReadinessTimeout bounds how long the readiness probe waits on checks
const ReadinessTimeout = 5 * time.Second

// HealthCheck is one component's probe
type HealthCheck interface {
	// Name returns the unique name of this health check
	Name() string
	// Check returns an error if the component is unhealthy
	Check(ctx context.Context) error
}

// HealthStatus is the aggregated result of all checks
type HealthStatus struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth is the result of one check
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthChecker holds the registered checks
type HealthChecker struct {
	checks map[string]HealthCheck
	mu     sync.RWMutex
}

// NewHealthChecker creates a checker with no checks
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
	}
}

// AddCheck registers check, replacing one with the same name
func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name()] = check
}

// CheckHealth runs every check. The result is healthy only if all pass.
func (hc *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := HealthStatus{
		Status: StatusHealthy,
		Checks: make(map[string]ComponentHealth, len(hc.checks)),
	}

	for name, check := range hc.checks {
		if err := check.Check(ctx); err != nil {
			status.Status = StatusUnhealthy
			status.Checks[name] = ComponentHealth{Status: StatusUnhealthy, Message: err.Error()}
			continue
		}
		status.Checks[name] = ComponentHealth{Status: StatusHealthy}
	}

	return status
}

// LivenessHandler answers 200 while the process can serve HTTP
func (hc *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// ReadinessHandler runs all checks and answers 200 or 503 with the details
func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ReadinessTimeout)
	defer cancel()

	health := hc.CheckHealth(ctx)

	w.Header().Set("Content-Type", "application/json")
	if health.Status == StatusHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// SimulationHealthCheck fails while the simulation loop is not running
type SimulationHealthCheck struct {
	running func() bool
}

// NewSimulationHealthCheck creates a check around a running predicate,
// usually Simulation.Running.
func NewSimulationHealthCheck(running func() bool) *SimulationHealthCheck {
	return &SimulationHealthCheck{running: running}
}

// Name implements HealthCheck
func (s *SimulationHealthCheck) Name() string {
	return "simulation"
}

// Check implements HealthCheck
func (s *SimulationHealthCheck) Check(ctx context.Context) error {
	if !s.running() {
		return fmt.Errorf("simulation loop is not running")
	}
	return nil
}

// FrameStallHealthCheck fails when no frame finished within the threshold
type FrameStallHealthCheck struct {
	threshold time.Duration
	lastFrame func() time.Time
	now       func() time.Time
}

// NewFrameStallHealthCheck creates a stall check. lastFrame is usually
// Simulation.LastFrameTime.
func NewFrameStallHealthCheck(threshold time.Duration, lastFrame func() time.Time) *FrameStallHealthCheck {
	return &FrameStallHealthCheck{
		threshold: threshold,
		lastFrame: lastFrame,
		now:       time.Now,
	}
}

// Name implements HealthCheck
func (f *FrameStallHealthCheck) Name() string {
	return "frame_stall"
}

// Check implements HealthCheck
func (f *FrameStallHealthCheck) Check(ctx context.Context) error {
	last := f.lastFrame()
	if last.IsZero() {
		return fmt.Errorf("no frame completed yet")
	}
	if age := f.now().Sub(last); age > f.threshold {
		return fmt.Errorf("last frame %v ago exceeds %v", age.Round(time.Millisecond), f.threshold)
	}
	return nil
}

// MemoryHealthCheck fails when heap usage passes a limit
type MemoryHealthCheck struct {
	maxMemoryMB    int64
	getMemoryUsage func() int64
}

// NewMemoryHealthCheck creates a memory check. A nil getMemoryUsage reads
// the runtime's heap statistics.
func NewMemoryHealthCheck(maxMemoryMB int64, getMemoryUsage func() int64) *MemoryHealthCheck {
	if getMemoryUsage == nil {
		getMemoryUsage = HeapInUseMB
	}
	return &MemoryHealthCheck{
		maxMemoryMB:    maxMemoryMB,
		getMemoryUsage: getMemoryUsage,
	}
}

// Name implements HealthCheck
func (m *MemoryHealthCheck) Name() string {
	return "memory"
}

// Check implements HealthCheck
func (m *MemoryHealthCheck) Check(ctx context.Context) error {
	currentMB := m.getMemoryUsage()
	if currentMB > m.maxMemoryMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", currentMB, m.maxMemoryMB)
	}
	return nil
}

// HeapInUseMB returns the in-use heap size in megabytes
func HeapInUseMB() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapInuse / (1024 * 1024))
}
