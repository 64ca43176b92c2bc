package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraud-scoring-service/internal/application/dto"
	fraudapp "fraud-scoring-service/internal/application/fraud"
	"fraud-scoring-service/internal/domain/fraud"
	"fraud-scoring-service/internal/infrastructure/ml"
	"fraud-scoring-service/internal/interfaces/http/middleware"
)

type stubService struct {
	scoreErr error
	batchErr error
	items    []fraudapp.BatchItem
	feedback *fraud.Prediction

	gotIDs    []uuid.UUID
	gotUser   uuid.UUID
	gotFilter fraud.HistoryFilter
	gotDays   int
}

func (s *stubService) ScoreTransaction(_ context.Context, txID, userID uuid.UUID) (*fraudapp.ScoreOutcome, error) {
	s.gotUser = userID
	if s.scoreErr != nil {
		return nil, s.scoreErr
	}
	result := fraud.NewScoredResult(txID, 0.9, "v-test", nil, 0)
	prediction := fraud.NewPrediction(result)
	alert := fraud.NewFraudAlert(decimal.NewFromInt(100), "Shop", result)
	return &fraudapp.ScoreOutcome{Result: result, Prediction: prediction, Alert: alert}, nil
}

func (s *stubService) ScoreBatch(_ context.Context, txIDs []uuid.UUID, userID uuid.UUID) ([]fraudapp.BatchItem, error) {
	s.gotIDs = txIDs
	s.gotUser = userID
	return s.items, s.batchErr
}

func (s *stubService) RecordFeedback(_ context.Context, _, _ uuid.UUID, _ *bool, _ *string) (*fraud.Prediction, error) {
	return s.feedback, nil
}

func (s *stubService) History(_ context.Context, _ uuid.UUID, filter fraud.HistoryFilter) ([]*fraud.Prediction, int64, error) {
	s.gotFilter = filter
	p := fraud.NewPrediction(fraud.NewScoredResult(uuid.New(), 0.2, "v-test", nil, 0))
	return []*fraud.Prediction{p}, 7, nil
}

func (s *stubService) Statistics(_ context.Context, _ uuid.UUID, days int) (*fraud.Statistics, error) {
	s.gotDays = days
	return &fraud.Statistics{PeriodDays: days}, nil
}

type stubModel struct{ err error }

func (m stubModel) ModelInfo(context.Context) (*ml.ModelInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &ml.ModelInfo{ModelVersion: "v-test", ModelLoaded: true, SequenceLength: ml.SequenceLength}, nil
}

func newRequest(method, target, body string, user uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != uuid.Nil {
		req = req.WithContext(middleware.WithUserID(req.Context(), user))
	}
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestScore(t *testing.T) {
	svc := &stubService{}
	h := NewPredictionHandler(svc, stubModel{}, 1000)
	user := uuid.New()
	txID := uuid.New()

	rec := httptest.NewRecorder()
	h.Score(rec, newRequest(http.MethodPost, "/api/v1/predictions", `{"transaction_id":"`+txID.String()+`"}`, user))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[dto.PredictionResponse](t, rec)
	assert.Equal(t, txID, resp.TransactionID)
	assert.Equal(t, "critical", resp.RiskLevel)
	assert.NotNil(t, resp.AlertID)
	assert.Equal(t, "scored", resp.Status)
	assert.Equal(t, user, svc.gotUser)
}

func TestScoreErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		user   uuid.UUID
		err    error
		status int
	}{
		{"no user", `{"transaction_id":"` + uuid.NewString() + `"}`, uuid.Nil, nil, http.StatusUnauthorized},
		{"malformed body", `{"transaction_id":`, uuid.New(), nil, http.StatusBadRequest},
		{"missing id", `{}`, uuid.New(), nil, http.StatusBadRequest},
		{"not a uuid", `{"transaction_id":"abc"}`, uuid.New(), nil, http.StatusBadRequest},
		{"not owned", `{"transaction_id":"` + uuid.NewString() + `"}`, uuid.New(), fraud.ErrNotFoundOrUnauthorized, http.StatusNotFound},
		{"model down", `{"transaction_id":"` + uuid.NewString() + `"}`, uuid.New(), fraud.ErrModelUnavailable, http.StatusServiceUnavailable},
		{"storage down", `{"transaction_id":"` + uuid.NewString() + `"}`, uuid.New(), errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPredictionHandler(&stubService{scoreErr: tt.err}, stubModel{}, 1000)
			rec := httptest.NewRecorder()
			h.Score(rec, newRequest(http.MethodPost, "/api/v1/predictions", tt.body, tt.user))

			assert.Equal(t, tt.status, rec.Code)
			body := decodeBody[map[string]string](t, rec)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestScoreInternalErrorHidesDetail(t *testing.T) {
	h := NewPredictionHandler(&stubService{scoreErr: errors.New("pq: password authentication failed")}, stubModel{}, 1000)
	rec := httptest.NewRecorder()
	h.Score(rec, newRequest(http.MethodPost, "/api/v1/predictions", `{"transaction_id":"`+uuid.NewString()+`"}`, uuid.New()))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestScoreBatch(t *testing.T) {
	ok := fraud.NewScoredResult(uuid.New(), 0.7, "v-test", nil, 0)
	clean := fraud.NewScoredResult(uuid.New(), 0.1, "v-test", nil, 0)
	failed := fraud.NewScoredResult(uuid.New(), 0.2, "v-test", nil, 0)
	svc := &stubService{items: []fraudapp.BatchItem{
		{TransactionID: ok.TransactionID, Result: ok, Prediction: fraud.NewPrediction(ok)},
		{TransactionID: clean.TransactionID, Result: clean, Prediction: fraud.NewPrediction(clean)},
		{TransactionID: failed.TransactionID, Result: failed, Err: errors.New("deadlock")},
	}}
	h := NewPredictionHandler(svc, stubModel{}, 1000)

	body := `{"transaction_ids":["` + ok.TransactionID.String() + `","` + clean.TransactionID.String() + `","` + failed.TransactionID.String() + `"]}`
	rec := httptest.NewRecorder()
	h.ScoreBatch(rec, newRequest(http.MethodPost, "/api/v1/predictions/batch", body, uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[dto.BatchPredictionResponse](t, rec)
	assert.Equal(t, 3, resp.TotalProcessed)
	assert.Equal(t, 1, resp.FraudDetected)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, ok.TransactionID, resp.Results[0].TransactionID)
	require.NotNil(t, resp.Results[0].Prediction)
	assert.Nil(t, resp.Results[2].Prediction)
	assert.NotEmpty(t, resp.Results[2].Error)
	assert.NotContains(t, rec.Body.String(), "deadlock")

	assert.Equal(t, []uuid.UUID{ok.TransactionID, clean.TransactionID, failed.TransactionID}, svc.gotIDs)
}

func TestScoreBatchValidation(t *testing.T) {
	ids := func(n int) string {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = `"` + uuid.NewString() + `"`
		}
		return `{"transaction_ids":[` + strings.Join(parts, ",") + `]}`
	}

	tests := []struct {
		name string
		body string
	}{
		{"empty list", `{"transaction_ids":[]}`},
		{"missing list", `{}`},
		{"bad id", `{"transaction_ids":["` + uuid.NewString() + `","nope"]}`},
		{"over handler limit", ids(4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			h := NewPredictionHandler(svc, stubModel{}, 3)
			rec := httptest.NewRecorder()
			h.ScoreBatch(rec, newRequest(http.MethodPost, "/api/v1/predictions/batch", tt.body, uuid.New()))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, svc.gotIDs)
		})
	}
}

func TestScoreBatchModelUnavailable(t *testing.T) {
	h := NewPredictionHandler(&stubService{batchErr: fraud.ErrModelUnavailable}, stubModel{}, 10)
	rec := httptest.NewRecorder()
	h.ScoreBatch(rec, newRequest(http.MethodPost, "/api/v1/predictions/batch", `{"transaction_ids":["`+uuid.NewString()+`"]}`, uuid.New()))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestScoreBatchRendersPartialResults(t *testing.T) {
	done := fraud.NewScoredResult(uuid.New(), 0.9, "v-test", nil, 0)
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "Request timed out"},
		{"store failure", errors.New("connection reset"), http.StatusInternalServerError, "Batch prediction failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				items: []fraudapp.BatchItem{
					{TransactionID: done.TransactionID, Result: done, Prediction: fraud.NewPrediction(done)},
				},
				batchErr: tt.err,
			}
			h := NewPredictionHandler(svc, stubModel{}, 10)
			body := `{"transaction_ids":["` + done.TransactionID.String() + `","` + uuid.NewString() + `"]}`
			rec := httptest.NewRecorder()
			h.ScoreBatch(rec, newRequest(http.MethodPost, "/api/v1/predictions/batch", body, uuid.New()))

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeBody[dto.BatchPredictionResponse](t, rec)
			assert.Equal(t, tt.msg, resp.Error)
			assert.Equal(t, 1, resp.TotalProcessed)
			assert.Equal(t, 1, resp.FraudDetected)
			require.Len(t, resp.Results, 1)
			require.NotNil(t, resp.Results[0].Prediction)
			assert.Equal(t, done.TransactionID, resp.Results[0].TransactionID)
		})
	}
}

func TestFeedback(t *testing.T) {
	p := fraud.NewPrediction(fraud.NewScoredResult(uuid.New(), 0.8, "v-test", nil, 0))
	correct := false
	p.ApplyFeedback(uuid.New(), &correct, nil)

	mux := http.NewServeMux()
	h := NewPredictionHandler(&stubService{feedback: p}, stubModel{}, 10)
	mux.HandleFunc("PUT /api/v1/predictions/{id}/feedback", h.Feedback)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, newRequest(http.MethodPut, "/api/v1/predictions/"+p.ID.String()+"/feedback", `{"is_correct":false}`, uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	record := decodeBody[dto.PredictionRecord](t, rec)
	assert.Equal(t, p.ID, record.ID)
	assert.Equal(t, "incorrect", record.Feedback)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, newRequest(http.MethodPut, "/api/v1/predictions/not-a-uuid/feedback", `{}`, uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedbackNotFound(t *testing.T) {
	mux := http.NewServeMux()
	h := NewPredictionHandler(&stubService{}, stubModel{}, 10)
	mux.HandleFunc("PUT /api/v1/predictions/{id}/feedback", h.Feedback)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, newRequest(http.MethodPut, "/api/v1/predictions/"+uuid.NewString()+"/feedback", `{"is_correct":true}`, uuid.New()))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryParams(t *testing.T) {
	svc := &stubService{}
	h := NewPredictionHandler(svc, stubModel{}, 10)

	rec := httptest.NewRecorder()
	h.History(rec, newRequest(http.MethodGet, "/api/v1/predictions?limit=20&offset=40&risk_level=high&start_date=2024-03-01&end_date=2024-03-31T23:59:59Z", "", uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, svc.gotFilter.Limit)
	assert.Equal(t, 40, svc.gotFilter.Offset)
	require.NotNil(t, svc.gotFilter.RiskLevel)
	assert.Equal(t, fraud.RiskLevelHigh, *svc.gotFilter.RiskLevel)
	require.NotNil(t, svc.gotFilter.StartDate)
	assert.Equal(t, 1, svc.gotFilter.StartDate.Day())
	require.NotNil(t, svc.gotFilter.EndDate)

	resp := decodeBody[dto.HistoryResponse](t, rec)
	assert.Equal(t, int64(7), resp.Total)
	assert.Equal(t, 20, resp.Limit)
	assert.Len(t, resp.Predictions, 1)
}

func TestHistoryDefaultsAndRejects(t *testing.T) {
	svc := &stubService{}
	h := NewPredictionHandler(svc, stubModel{}, 10)

	rec := httptest.NewRecorder()
	h.History(rec, newRequest(http.MethodGet, "/api/v1/predictions", "", uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, svc.gotFilter.Limit)

	for _, q := range []string{"limit=0", "limit=501", "offset=-1", "risk_level=extreme", "start_date=yesterday"} {
		rec := httptest.NewRecorder()
		h.History(rec, newRequest(http.MethodGet, "/api/v1/predictions?"+q, "", uuid.New()))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestStatistics(t *testing.T) {
	svc := &stubService{}
	h := NewPredictionHandler(svc, stubModel{}, 10)

	rec := httptest.NewRecorder()
	h.Statistics(rec, newRequest(http.MethodGet, "/api/v1/predictions/statistics", "", uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, svc.gotDays)

	rec = httptest.NewRecorder()
	h.Statistics(rec, newRequest(http.MethodGet, "/api/v1/predictions/statistics?days=365", "", uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 365, svc.gotDays)

	for _, q := range []string{"days=0", "days=366", "days=week"} {
		rec := httptest.NewRecorder()
		h.Statistics(rec, newRequest(http.MethodGet, "/api/v1/predictions/statistics?"+q, "", uuid.New()))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestModelInfo(t *testing.T) {
	h := NewPredictionHandler(&stubService{}, stubModel{}, 10)
	rec := httptest.NewRecorder()
	h.ModelInfo(rec, newRequest(http.MethodGet, "/api/v1/model/info", "", uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[ml.ModelInfo](t, rec)
	assert.Equal(t, "v-test", info.ModelVersion)
	assert.True(t, info.ModelLoaded)

	h = NewPredictionHandler(&stubService{}, stubModel{err: fraud.ErrModelUnavailable}, 10)
	rec = httptest.NewRecorder()
	h.ModelInfo(rec, newRequest(http.MethodGet, "/api/v1/model/info", "", uuid.New()))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
