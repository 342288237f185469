package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sawpanic/daycarewatch/internal/net/client"
	"github.com/sawpanic/daycarewatch/internal/persistence"
	"github.com/sawpanic/daycarewatch/internal/report"
)

// Health statuses
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// SourceHealth reports breaker and budget state of the remote sources
type SourceHealth interface {
	Health() client.Health
}

// HealthHandler provides the system health endpoint
type HealthHandler struct {
	sources   SourceHealth
	db        persistence.RepositoryHealth
	workspace string
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler. sources and db may be nil.
func NewHealthHandler(sources SourceHealth, db persistence.RepositoryHealth, workspace, version string) *HealthHandler {
	return &HealthHandler{
		sources:   sources,
		db:        db,
		workspace: workspace,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Version   string                   `json:"version"`
	System    SystemInfo               `json:"system"`
	Sources   *client.Health           `json:"sources,omitempty"`
	Database  *persistence.HealthCheck `json:"database,omitempty"`
	Checks    map[string]CheckResult   `json:"checks"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
}

// CheckResult represents individual health check results
type CheckResult struct {
	Status  string `json:"status"` // "pass", "warn", "fail"
	Message string `json:"message"`
}

// ServeHTTP implements the health check endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.gather(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if resp.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (h *HealthHandler) gather(ctx context.Context) HealthResponse {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   h.version,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAlloc:      mem.Alloc,
		},
		Checks: make(map[string]CheckResult),
	}

	if info, err := os.Stat(h.workspace); err != nil || !info.IsDir() {
		resp.Checks["workspace"] = CheckResult{"fail", fmt.Sprintf("workspace %s is not a directory", h.workspace)}
	} else {
		resp.Checks["workspace"] = CheckResult{"pass", h.workspace}
		if _, err := os.Stat(filepath.Join(h.workspace, report.FilePriority)); err != nil {
			resp.Checks["priority_list"] = CheckResult{"warn", "no priority list yet (run the pipeline)"}
		} else {
			resp.Checks["priority_list"] = CheckResult{"pass", report.FilePriority}
		}
	}

	if h.sources != nil {
		sh := h.sources.Health()
		resp.Sources = &sh
		var open []string
		for _, b := range sh.Breakers {
			if b.State == "open" {
				open = append(open, b.Source)
			}
		}
		for _, b := range sh.Budgets {
			if b.Remaining == 0 {
				open = append(open, b.Source+" (budget)")
			}
		}
		if len(open) > 0 {
			resp.Checks["sources"] = CheckResult{"warn", fmt.Sprintf("unavailable: %v", open)}
		} else {
			resp.Checks["sources"] = CheckResult{"pass", fmt.Sprintf("%d sources available", len(sh.Breakers))}
		}
	}

	if h.db != nil {
		dh := h.db.Health(ctx)
		resp.Database = &dh
		if dh.Healthy {
			resp.Checks["database"] = CheckResult{"pass", "database reachable"}
		} else {
			resp.Checks["database"] = CheckResult{"fail", fmt.Sprintf("%v", dh.Errors)}
		}
	}

	resp.Status = overallStatus(resp.Checks)
	return resp
}

func overallStatus(checks map[string]CheckResult) string {
	status := StatusHealthy
	for _, c := range checks {
		switch c.Status {
		case "fail":
			return StatusUnhealthy
		case "warn":
			status = StatusDegraded
		}
	}
	return status
}
