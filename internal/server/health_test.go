package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jittakal/edgeshuffle/pkg/edge"
)

// mockHealthChecker implements HealthChecker for testing
type mockHealthChecker struct {
	liveness  bool
	readiness bool
	healthy   bool
	status    map[string]string
}

func (m *mockHealthChecker) Liveness() bool {
	return m.liveness
}

func (m *mockHealthChecker) Readiness(ctx context.Context) bool {
	return m.readiness
}

func (m *mockHealthChecker) IsHealthy() bool {
	return m.healthy
}

func (m *mockHealthChecker) GetStatus() map[string]string {
	return m.status
}

type mockStats []edge.Stats

func (m mockStats) Stats() []edge.Stats {
	return m
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLivenessHandler(t *testing.T) {
	tests := []struct {
		name       string
		liveness   bool
		wantCode   int
		wantStatus string
	}{
		{"alive", true, http.StatusOK, "alive"},
		{"not alive", false, http.StatusServiceUnavailable, "not alive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := LivenessHandler(&mockHealthChecker{liveness: tt.liveness}, newTestLogger())
			req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
			w := httptest.NewRecorder()

			handler(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}

			var response HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", response.Status, tt.wantStatus)
			}
		})
	}
}

func TestReadinessHandler_Ready(t *testing.T) {
	checker := &mockHealthChecker{
		readiness: true,
		status: map[string]string{
			"phase":  "shuffled",
			"rank_0": "chunks=1 edges=12",
		},
	}

	handler := ReadinessHandler(checker, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "ready" {
		t.Errorf("status = %s, want ready", response.Status)
	}
	if response.Checks["phase"] != "shuffled" {
		t.Errorf("checks[phase] = %s, want shuffled", response.Checks["phase"])
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	checker := &mockHealthChecker{
		readiness: false,
		status:    map[string]string{"phase": "filling"},
	}

	handler := ReadinessHandler(checker, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "not ready" {
		t.Errorf("status = %s, want not ready", response.Status)
	}
}

func TestStatusHandler(t *testing.T) {
	stats := mockStats{
		{Rank: 0, Chunks: 3, Edges: 10, Cursor: 2, Phase: edge.PhaseFilling},
		{Rank: 1, Chunks: 1, Edges: 4, Cursor: 4, Phase: edge.PhaseFilling},
	}

	handler := StatusHandler(stats, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var response StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Edges != 14 {
		t.Errorf("edges = %d, want 14", response.Edges)
	}
	if len(response.Devices) != 2 {
		t.Fatalf("len(devices) = %d, want 2", len(response.Devices))
	}
	if response.Devices[0].Chunks != 3 || response.Devices[0].Phase != "filling" {
		t.Errorf("devices[0] = %+v", response.Devices[0])
	}
}

func TestStatusHandler_NoDevices(t *testing.T) {
	handler := StatusHandler(mockStats{}, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	var response StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Devices == nil || len(response.Devices) != 0 {
		t.Errorf("devices = %v, want empty list", response.Devices)
	}
}
