package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Health(ctx context.Context) error { return m.err }

type mockConnectionCounter struct {
	count int
}

func (m *mockConnectionCounter) ConnectedCount() int { return m.count }

func TestHealthHandler_Healthy(t *testing.T) {
	handler := NewHealthHandler(&mockHealthChecker{}, &mockHealthChecker{}, &mockConnectionCounter{count: 4})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.Health(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var response HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Status != "healthy" {
		t.Fatalf("expected healthy, got %s", response.Status)
	}
	if response.Connections != 4 {
		t.Fatalf("expected 4 connections, got %d", response.Connections)
	}
}

func TestHealthHandler_UnhealthyDatabase(t *testing.T) {
	handler := NewHealthHandler(&mockHealthChecker{err: errors.New("connection refused")}, &mockHealthChecker{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.Health(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	var response HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Status != "unhealthy" {
		t.Fatalf("expected unhealthy, got %s", response.Status)
	}
	if response.Checks["redis"] != "healthy" {
		t.Fatalf("expected redis healthy, got %s", response.Checks["redis"])
	}
}

func TestHealthHandler_ReadyAndLive(t *testing.T) {
	handler := NewHealthHandler(&mockHealthChecker{}, &mockHealthChecker{}, nil)

	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ready 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.Live(rr, httptest.NewRequest(http.MethodGet, "/live", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected live 200, got %d", rr.Code)
	}
}

func TestHealthHandler_NotReadyOnRedisFailure(t *testing.T) {
	handler := NewHealthHandler(&mockHealthChecker{}, &mockHealthChecker{err: errors.New("timeout")}, nil)

	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
