package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/livepad/internal/logging"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck represents a single health check result
type HealthCheck struct {
	Name     string                 `json:"name"`
	Status   HealthStatus           `json:"status"`
	Message  string                 `json:"message,omitempty"`
	Duration time.Duration          `json:"duration"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Critical bool                   `json:"critical"`
}

// HealthChecker runs one check.
type HealthChecker struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) (HealthStatus, string, map[string]interface{})
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status      HealthStatus           `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Version     string                 `json:"version,omitempty"`
	Uptime      string                 `json:"uptime"`
	Checks      map[string]HealthCheck `json:"checks"`
	Environment string                 `json:"environment,omitempty"`
	GoVersion   string                 `json:"go_version"`
}

// HealthMonitor runs registered checks on demand.
type HealthMonitor struct {
	mu          sync.RWMutex
	checks      []HealthChecker
	logger      logging.Logger
	timeout     time.Duration
	version     string
	environment string
	started     time.Time
}

// NewHealthMonitor creates a health monitor.
func NewHealthMonitor(logger logging.Logger, version, environment string) *HealthMonitor {
	return &HealthMonitor{
		logger:      logger.WithComponent("health_monitor"),
		timeout:     5 * time.Second,
		version:     version,
		environment: environment,
		started:     time.Now(),
	}
}

// RegisterCheck registers a health check
func (hm *HealthMonitor) RegisterCheck(checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks = append(hm.checks, checker)
}

// Check runs every registered check and folds the results.
func (hm *HealthMonitor) Check(ctx context.Context) HealthResponse {
	hm.mu.RLock()
	checks := append([]HealthChecker(nil), hm.checks...)
	hm.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	results := make(map[string]HealthCheck, len(checks))
	for _, c := range checks {
		start := time.Now()
		status, msg, meta := c.Check(ctx)
		result := HealthCheck{
			Name:     c.Name,
			Status:   status,
			Message:  msg,
			Duration: time.Since(start),
			Metadata: meta,
			Critical: c.Critical,
		}
		results[c.Name] = result

		if status != HealthStatusHealthy {
			hm.logger.Warn(ctx, nil, "Health check failed",
				"name", c.Name,
				"status", string(status),
				"message", msg)
		}
	}

	return HealthResponse{
		Status:      overallStatus(results),
		Timestamp:   time.Now(),
		Version:     hm.version,
		Uptime:      time.Since(hm.started).Round(time.Second).String(),
		Checks:      results,
		Environment: hm.environment,
		GoVersion:   runtime.Version(),
	}
}

// Names lists registered checks in order.
func (hm *HealthMonitor) Names() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	names := make([]string, 0, len(hm.checks))
	for _, c := range hm.checks {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

func overallStatus(checks map[string]HealthCheck) HealthStatus {
	status := HealthStatusHealthy
	for _, check := range checks {
		switch {
		case check.Critical && check.Status == HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case check.Status != HealthStatusHealthy:
			status = HealthStatusDegraded
		}
	}
	return status
}

// HTTPHandler returns an HTTP handler for health checks
func (hm *HealthMonitor) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hm.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(health); err != nil {
			hm.logger.Error(r.Context(), err, "Failed to encode health response")
		}
	}
}

// WorkspaceHealthChecker checks that the workspace directory is writable.
func WorkspaceHealthChecker(dir string) HealthChecker {
	return HealthChecker{
		Name:     "workspace",
		Critical: false,
		Check: func(ctx context.Context) (HealthStatus, string, map[string]interface{}) {
			meta := map[string]interface{}{"dir": dir}
			probe := filepath.Join(dir, fmt.Sprintf(".livepad_health_%d", time.Now().UnixNano()))
			if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
				return HealthStatusUnhealthy, fmt.Sprintf("Cannot write to workspace: %v", err), meta
			}
			if err := os.Remove(probe); err != nil {
				return HealthStatusDegraded, fmt.Sprintf("Cannot remove probe file: %v", err), meta
			}
			return HealthStatusHealthy, "Workspace is writable", meta
		},
	}
}

// GoroutineHealthChecker flags goroutine leaks, e.g. websocket pumps that
// never exit.
func GoroutineHealthChecker() HealthChecker {
	return HealthChecker{
		Name: "goroutines",
		Check: func(ctx context.Context) (HealthStatus, string, map[string]interface{}) {
			n := runtime.NumGoroutine()
			meta := map[string]interface{}{"count": n}
			switch {
			case n > 10000:
				return HealthStatusUnhealthy, fmt.Sprintf("Very high goroutine count: %d", n), meta
			case n > 1000:
				return HealthStatusDegraded, fmt.Sprintf("High goroutine count: %d", n), meta
			}
			return HealthStatusHealthy, "Goroutine count is normal", meta
		},
	}
}
