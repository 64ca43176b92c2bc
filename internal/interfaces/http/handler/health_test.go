package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type readiness bool

func (r readiness) Ready() bool { return bool(r) }

func TestHealth(t *testing.T) {
	h := NewHealthHandler(nil, nil, nil, "1.2.3")
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestLive(t *testing.T) {
	h := NewHealthHandler(pinger{err: errors.New("down")}, nil, readiness(false), "1.2.3")
	rec := httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	tests := []struct {
		name     string
		db       HealthChecker
		redis    HealthChecker
		model    ModelChecker
		status   int
		services map[string]string
	}{
		{
			name:     "all healthy",
			db:       pinger{},
			redis:    pinger{},
			model:    readiness(true),
			status:   http.StatusOK,
			services: map[string]string{"database": "healthy", "redis": "healthy", "model": "healthy"},
		},
		{
			name:     "redis absent",
			db:       pinger{},
			model:    readiness(true),
			status:   http.StatusOK,
			services: map[string]string{"database": "healthy", "model": "healthy"},
		},
		{
			name:     "database down",
			db:       pinger{err: errors.New("connection refused")},
			redis:    pinger{},
			model:    readiness(true),
			status:   http.StatusServiceUnavailable,
			services: map[string]string{"database": "unhealthy: connection refused", "redis": "healthy", "model": "healthy"},
		},
		{
			name:     "model not loaded",
			db:       pinger{},
			model:    readiness(false),
			status:   http.StatusServiceUnavailable,
			services: map[string]string{"database": "healthy", "model": "unhealthy: model not loaded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.db, tt.redis, tt.model, "1.2.3")
			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeBody[HealthResponse](t, rec)
			assert.Equal(t, tt.services, resp.Services)
		})
	}
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
