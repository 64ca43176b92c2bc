package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	fraudapp "fraud-scoring-service/internal/application/fraud"
	"fraud-scoring-service/internal/domain/fraud"
	"fraud-scoring-service/internal/infrastructure/ml"
	"fraud-scoring-service/internal/interfaces/http/handler"
	"fraud-scoring-service/internal/interfaces/http/middleware"
)

type emptyService struct{}

func (emptyService) ScoreTransaction(context.Context, uuid.UUID, uuid.UUID) (*fraudapp.ScoreOutcome, error) {
	return nil, fraud.ErrNotFoundOrUnauthorized
}

func (emptyService) ScoreBatch(context.Context, []uuid.UUID, uuid.UUID) ([]fraudapp.BatchItem, error) {
	return nil, nil
}

func (emptyService) RecordFeedback(context.Context, uuid.UUID, uuid.UUID, *bool, *string) (*fraud.Prediction, error) {
	return nil, nil
}

func (emptyService) History(context.Context, uuid.UUID, fraud.HistoryFilter) ([]*fraud.Prediction, int64, error) {
	return nil, 0, nil
}

func (emptyService) Statistics(_ context.Context, _ uuid.UUID, days int) (*fraud.Statistics, error) {
	return &fraud.Statistics{PeriodDays: days}, nil
}

type staticModel struct{}

func (staticModel) ModelInfo(context.Context) (*ml.ModelInfo, error) {
	return &ml.ModelInfo{ModelVersion: "v-test"}, nil
}

func newTestRouter(opts Options) *Router {
	return NewRouter(
		handler.NewPredictionHandler(emptyService{}, staticModel{}, 100),
		handler.NewHealthHandler(nil, nil, nil, "test"),
		opts,
	)
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(Options{MetricsPath: "/metrics"})
	user := uuid.NewString()

	tests := []struct {
		method string
		path   string
		body   string
		auth   bool
		status int
	}{
		{http.MethodGet, "/health", "", false, http.StatusOK},
		{http.MethodGet, "/live", "", false, http.StatusOK},
		{http.MethodGet, "/ready", "", false, http.StatusOK},
		{http.MethodGet, "/metrics", "", false, http.StatusOK},
		{http.MethodPost, "/api/v1/predictions", `{"transaction_id":"` + uuid.NewString() + `"}`, true, http.StatusNotFound},
		{http.MethodPost, "/api/v1/predictions", `{}`, false, http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/predictions/batch", `{"transaction_ids":["` + uuid.NewString() + `"]}`, true, http.StatusOK},
		{http.MethodPut, "/api/v1/predictions/" + uuid.NewString() + "/feedback", `{"is_correct":true}`, true, http.StatusNotFound},
		{http.MethodGet, "/api/v1/predictions", "", true, http.StatusOK},
		{http.MethodGet, "/api/v1/predictions/statistics?days=7", "", true, http.StatusOK},
		{http.MethodGet, "/api/v1/model/info", "", true, http.StatusOK},
		{http.MethodGet, "/api/v1/model/info", "", false, http.StatusUnauthorized},
		{http.MethodDelete, "/api/v1/predictions", "", true, http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v2/predictions", "", true, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.auth {
				req.Header.Set(middleware.UserIDHeader, user)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestMetricsDisabled(t *testing.T) {
	r := newTestRouter(Options{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreflight(t *testing.T) {
	r := newTestRouter(Options{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/predictions", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), middleware.UserIDHeader)
}

func TestGlobalMiddlewareOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	r := newTestRouter(Options{Global: []Middleware{mark("outer"), mark("inner")}})
	r.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
}
