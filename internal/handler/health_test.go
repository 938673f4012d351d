package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// mockHealthChecker is a mock implementation of HealthChecker for testing.
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler(&mockHealthChecker{err: errors.New("down")}, nil)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got %s", response.Status)
	}
	if response.Checks != nil {
		t.Errorf("liveness should not run checks, got %v", response.Checks)
	}
}

func TestHealthHandler_Readyz(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name       string
		store      HealthChecker
		cache      HealthChecker
		wantStatus int
		wantStore  string
		wantCache  string
	}{
		{"all healthy", &mockHealthChecker{}, &mockHealthChecker{}, http.StatusOK, "ok", "ok"},
		{"store unhealthy", &mockHealthChecker{err: down}, &mockHealthChecker{}, http.StatusServiceUnavailable, "unavailable", "ok"},
		{"cache unhealthy", &mockHealthChecker{}, &mockHealthChecker{err: down}, http.StatusServiceUnavailable, "ok", "unavailable"},
		{"cache not configured", &mockHealthChecker{}, nil, http.StatusOK, "ok", "not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.store, tt.cache)
			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			body := rec.Body.String()
			if strings.Contains(body, "refused") {
				t.Error("dependency errors must not leak into the response")
			}

			var response HealthResponse
			if err := json.Unmarshal([]byte(body), &response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Checks["store"] != tt.wantStore {
				t.Errorf("expected store check %q, got %q", tt.wantStore, response.Checks["store"])
			}
			if response.Checks["cache"] != tt.wantCache {
				t.Errorf("expected cache check %q, got %q", tt.wantCache, response.Checks["cache"])
			}
		})
	}
}
