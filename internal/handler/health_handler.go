package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"blogpulse/pkg/logger"
)

const healthProbeTimeout = 2 * time.Second

// Probe reports whether one dependency is reachable
type Probe func(ctx context.Context) error

// HealthCheck is one named dependency. A failing critical check makes the
// service unhealthy; any other failure only degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	Probe    Probe
}

// HealthHandler handles health check requests
type HealthHandler struct {
	checks  []HealthCheck
	version string
	logger  *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, logger *logger.Logger, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		version: version,
		logger:  logger.Component("health"),
	}
}

// DependencyStatus is the result of one probe
type DependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version"`
	Service      string                      `json:"service"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		deps     = make(map[string]DependencyStatus, len(h.checks))
		failed   bool
		degraded bool
	)

	var g errgroup.Group
	for _, check := range h.checks {
		check := check
		g.Go(func() error {
			err := check.Probe(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				deps[check.Name] = DependencyStatus{Status: "up"}
				return nil
			}
			deps[check.Name] = DependencyStatus{Status: "down", Error: err.Error()}
			if check.Critical {
				failed = true
			} else {
				degraded = true
			}
			h.logger.WithError(err).WithField("dependency", check.Name).Warn("Health probe failed")
			return nil
		})
	}
	_ = g.Wait()

	response := HealthResponse{
		Status:       "healthy",
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Service:      "blogpulse",
		Dependencies: deps,
	}
	status := http.StatusOK
	switch {
	case failed:
		response.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	case degraded:
		response.Status = "degraded"
	}

	sendJSON(w, h.logger, status, response)
}
