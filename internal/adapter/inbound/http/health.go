package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
	"github.com/Commandability/commandability-web-sub001/internal/port/inbound"
)

// healthCheckTimeout bounds every backend probe.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// ProbeFunc checks one backend. A nil error means healthy.
type ProbeFunc func(ctx context.Context) error

// HealthChecker verifies component health.
type HealthChecker struct {
	sync    inbound.SyncService
	probes  map[string]ProbeFunc
	version string
}

// NewHealthChecker creates a HealthChecker. sync may be nil.
func NewHealthChecker(sync inbound.SyncService, version string) *HealthChecker {
	return &HealthChecker{
		sync:    sync,
		probes:  make(map[string]ProbeFunc),
		version: version,
	}
}

// AddProbe registers a named backend probe.
func (h *HealthChecker) AddProbe(name string, probe ProbeFunc) {
	h.probes[name] = probe
}

// Check performs health checks on all components. A rejected session is
// unhealthy: the process is about to exit.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.sync != nil {
		st := h.sync.Session()
		checks["session"] = string(st.Status)
		if st.Status == session.StatusRejected {
			healthy = false
		}
		checks["subscriptions"] = string(h.sync.Aggregate().Status)
	} else {
		checks["session"] = "not configured"
	}

	for name, probe := range h.probes {
		pctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := probe(pctx)
		cancel()
		if err != nil {
			checks[name] = "error: " + err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}

// healthHandler is the fallback when no checker is configured.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
}
