package router

import (
	"net/http"

	"fraud-scoring-service/internal/interfaces/http/handler"
	"fraud-scoring-service/internal/interfaces/http/middleware"
)

// Middleware wraps a handler
type Middleware func(http.Handler) http.Handler

// Router holds all HTTP handlers
type Router struct {
	mux               *http.ServeMux
	handler           http.Handler
	predictionHandler *handler.PredictionHandler
	healthHandler     *handler.HealthHandler
	metricsPath       string
	api               []Middleware
}

// Options configures optional routing behavior
type Options struct {
	// MetricsPath is where Prometheus metrics are served; empty disables them
	MetricsPath string
	// RateLimiter limits per-user API requests when set
	RateLimiter *middleware.RateLimiter
	// Global middleware wraps every route, outermost first
	Global []Middleware
}

// NewRouter creates a new router with all routes configured
func NewRouter(
	predictionHandler *handler.PredictionHandler,
	healthHandler *handler.HealthHandler,
	opts Options,
) *Router {
	r := &Router{
		mux:               http.NewServeMux(),
		predictionHandler: predictionHandler,
		healthHandler:     healthHandler,
		metricsPath:       opts.MetricsPath,
		api:               []Middleware{middleware.RequireUser},
	}
	if opts.RateLimiter != nil {
		r.api = append(r.api, opts.RateLimiter.Middleware)
	}
	r.setupRoutes()

	var h http.Handler = http.HandlerFunc(r.serve)
	for i := len(opts.Global) - 1; i >= 0; i-- {
		h = opts.Global[i](h)
	}
	r.handler = h
	return r
}

func (r *Router) setupRoutes() {
	// Health endpoints
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)
	r.mux.HandleFunc("GET /ready", r.healthHandler.Ready)
	r.mux.HandleFunc("GET /live", r.healthHandler.Live)

	if r.metricsPath != "" {
		r.mux.Handle("GET "+r.metricsPath, handler.MetricsHandler())
	}

	// Scoring
	r.handleAPI("POST /api/v1/predictions", r.predictionHandler.Score)
	r.handleAPI("POST /api/v1/predictions/batch", r.predictionHandler.ScoreBatch)
	r.handleAPI("PUT /api/v1/predictions/{id}/feedback", r.predictionHandler.Feedback)

	// Reporting
	r.handleAPI("GET /api/v1/predictions", r.predictionHandler.History)
	r.handleAPI("GET /api/v1/predictions/statistics", r.predictionHandler.Statistics)
	r.handleAPI("GET /api/v1/model/info", r.predictionHandler.ModelInfo)
}

// handleAPI registers an authenticated, rate-limited route
func (r *Router) handleAPI(pattern string, fn http.HandlerFunc) {
	var h http.Handler = fn
	for i := len(r.api) - 1; i >= 0; i-- {
		h = r.api[i](h)
	}
	r.mux.Handle(pattern, h)
}

func (r *Router) serve(w http.ResponseWriter, req *http.Request) {
	// Add CORS headers
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+middleware.UserIDHeader)

	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Handler returns the http.Handler
func (r *Router) Handler() http.Handler {
	return r
}
