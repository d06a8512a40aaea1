package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jittakal/edgeshuffle/pkg/edge"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StatusResponse represents the device status response.
type StatusResponse struct {
	Timestamp string        `json:"timestamp"`
	Edges     int           `json:"edges"`
	Devices   []DeviceStats `json:"devices"`
}

// DeviceStats is the chunk layout of one device.
type DeviceStats struct {
	Rank   int    `json:"rank"`
	Phase  string `json:"phase"`
	Chunks int    `json:"chunks"`
	Edges  int    `json:"edges"`
	Cursor int    `json:"cursor"`
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("failed to encode liveness response", "error", err)
		}
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
// Readiness probes indicate if the application can handle traffic.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("failed to encode readiness response", "error", err)
		}
	}
}

// StatusHandler returns a handler reporting the per-device edge list layout.
func StatusHandler(stats StatsProvider, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := StatusResponse{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Devices:   []DeviceStats{},
		}
		for _, s := range stats.Stats() {
			response.Devices = append(response.Devices, toDeviceStats(s))
			response.Edges += s.Edges
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("failed to encode status response", "error", err)
		}
	}
}

func toDeviceStats(s edge.Stats) DeviceStats {
	return DeviceStats{
		Rank:   s.Rank,
		Phase:  string(s.Phase),
		Chunks: s.Chunks,
		Edges:  s.Edges,
		Cursor: s.Cursor,
	}
}
