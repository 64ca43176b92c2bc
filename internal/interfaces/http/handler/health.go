package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthChecker is an interface for services that can be health-checked
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// ModelChecker reports whether the scoring model is serving
type ModelChecker interface {
	Ready() bool
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	dbClient    HealthChecker
	redisClient HealthChecker
	model       ModelChecker
	version     string
}

// NewHealthHandler creates a new health handler. Nil checkers are skipped.
func NewHealthHandler(dbClient, redisClient HealthChecker, model ModelChecker, version string) *HealthHandler {
	return &HealthHandler{
		dbClient:    dbClient,
		redisClient: redisClient,
		model:       model,
		version:     version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready. Dependencies are checked concurrently.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		mu       sync.Mutex
		services = make(map[string]string)
		g        errgroup.Group
	)
	check := func(name string, fn func() error) {
		g.Go(func() error {
			err := fn()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				services[name] = "unhealthy: " + err.Error()
				return err
			}
			services[name] = "healthy"
			return nil
		})
	}

	if h.dbClient != nil {
		check("database", func() error { return h.dbClient.Ping(ctx) })
	}
	if h.redisClient != nil {
		check("redis", func() error { return h.redisClient.Ping(ctx) })
	}
	if h.model != nil {
		check("model", func() error {
			if !h.model.Ready() {
				return errors.New("model not loaded")
			}
			return nil
		})
	}

	response := HealthResponse{
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	}

	if err := g.Wait(); err != nil {
		response.Status = "not ready"
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	response.Status = "ready"
	writeJSON(w, http.StatusOK, response)
}

// Live handles GET /live
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
