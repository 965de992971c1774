// Package handlers holds the plain HTTP handlers that are not tied to
// a live console session.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Minimal health response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    int64  `json:"uptime"`
	Version   string `json:"version"`
}

// Readiness response with per-dependency checks
type ReadinessResponse struct {
	Status    string          `json:"status"`
	Ready     bool            `json:"ready"`
	Timestamp string          `json:"timestamp"`
	Checks    map[string]bool `json:"checks"`
}

// Probe checks one dependency; nil error means healthy.
type Probe func(ctx context.Context) error

// HealthHandler handles health check operations.
type HealthHandler struct {
	startTime time.Time
	version   string
	probes    map[string]Probe
}

// NewHealthHandler creates a health handler. probes maps check names
// (e.g. "runtime", "history") to their probe functions.
func NewHealthHandler(version string, probes map[string]Probe) *HealthHandler {
	if version == "" {
		version = "dev"
	}
	return &HealthHandler{
		startTime: time.Now(),
		version:   version,
		probes:    probes,
	}
}

// HealthCheck returns minimal liveness information.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Truncate(time.Second).Format(time.RFC3339),
		Uptime:    int64(time.Since(h.startTime).Seconds()),
		Version:   h.version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ReadinessCheck runs every probe with a short deadline.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ready := true
	checks := make(map[string]bool, len(h.probes))
	for name, probe := range h.probes {
		err := probe(ctx)
		checks[name] = err == nil
		if err != nil {
			ready = false
		}
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !ready {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Ready:     ready,
		Timestamp: time.Now().Truncate(time.Second).Format(time.RFC3339),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(response)
}
