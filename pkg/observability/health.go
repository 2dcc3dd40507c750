package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const defaultProbeTimeout = 5 * time.Second

// Probe is implemented by every store the service depends on
type Probe interface {
	HealthCheck(ctx context.Context) error
}

// ProbeFunc adapts a function to Probe
type ProbeFunc func(ctx context.Context) error

// HealthCheck calls f
func (f ProbeFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Dependency is one named probe. A failing critical dependency makes the
// service unhealthy; any other failure only degrades it.
type Dependency struct {
	Name     string
	Probe    Probe
	Critical bool
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthChecker runs the dependency probes for the readiness endpoint
type HealthChecker struct {
	version string
	deps    []Dependency
	timeout time.Duration
}

// NewHealthChecker creates a checker over deps
func NewHealthChecker(version string, deps ...Dependency) *HealthChecker {
	return &HealthChecker{version: version, deps: deps, timeout: defaultProbeTimeout}
}

// Check runs every probe concurrently and folds the results
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.deps)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, dep := range h.deps {
		wg.Add(1)
		go func(dep Dependency) {
			defer wg.Done()
			result := probe(ctx, dep)

			mu.Lock()
			defer mu.Unlock()
			status.Dependencies[dep.Name] = result
			switch {
			case result.Status == StatusUnhealthy:
				status.Status = StatusUnhealthy
			case result.Status == StatusDegraded && status.Status == StatusHealthy:
				status.Status = StatusDegraded
			}
		}(dep)
	}
	wg.Wait()

	return status
}

func probe(ctx context.Context, dep Dependency) DependencyStatus {
	start := time.Now()
	err := dep.Probe.HealthCheck(ctx)
	result := DependencyStatus{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	if err == nil {
		return result
	}

	result.Message = err.Error()
	result.Status = StatusDegraded
	if dep.Critical {
		result.Status = StatusUnhealthy
	}
	return result
}

// Liveness always answers 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   h.version,
	})
}

// Readiness answers 503 while a critical dependency is down
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
