package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fraud-scoring-service/internal/application/dto"
	fraudapp "fraud-scoring-service/internal/application/fraud"
	"fraud-scoring-service/internal/domain/fraud"
	"fraud-scoring-service/internal/infrastructure/ml"
	"fraud-scoring-service/internal/interfaces/http/middleware"
	"fraud-scoring-service/internal/pkg/logging"
)

// PredictionService is the application surface behind the prediction endpoints
type PredictionService interface {
	ScoreTransaction(ctx context.Context, txID, userID uuid.UUID) (*fraudapp.ScoreOutcome, error)
	ScoreBatch(ctx context.Context, txIDs []uuid.UUID, userID uuid.UUID) ([]fraudapp.BatchItem, error)
	RecordFeedback(ctx context.Context, predictionID, userID uuid.UUID, correct *bool, notes *string) (*fraud.Prediction, error)
	History(ctx context.Context, userID uuid.UUID, filter fraud.HistoryFilter) ([]*fraud.Prediction, int64, error)
	Statistics(ctx context.Context, userID uuid.UUID, days int) (*fraud.Statistics, error)
}

// ModelInfoProvider describes the scoring model
type ModelInfoProvider interface {
	ModelInfo(ctx context.Context) (*ml.ModelInfo, error)
}

// PredictionHandler handles prediction HTTP requests
type PredictionHandler struct {
	service      PredictionService
	model        ModelInfoProvider
	validate     *validator.Validate
	maxBatchSize int
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(service PredictionService, model ModelInfoProvider, maxBatchSize int) *PredictionHandler {
	return &PredictionHandler{
		service:      service,
		model:        model,
		validate:     validator.New(),
		maxBatchSize: maxBatchSize,
	}
}

// Score handles POST /api/v1/predictions
func (h *PredictionHandler) Score(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req dto.ScoreRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	txID := uuid.MustParse(req.TransactionID)

	outcome, err := h.service.ScoreTransaction(r.Context(), txID, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "Prediction failed")
		return
	}

	writeJSON(w, http.StatusOK, dto.NewPredictionResponse(outcome.Result, outcome.Prediction, outcome.Alert))
}

// ScoreBatch handles POST /api/v1/predictions/batch
func (h *PredictionHandler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req dto.BatchScoreRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.maxBatchSize > 0 && len(req.TransactionIDs) > h.maxBatchSize {
		writeError(w, http.StatusBadRequest, "Maximum "+strconv.Itoa(h.maxBatchSize)+" transactions per batch")
		return
	}

	ids := make([]uuid.UUID, len(req.TransactionIDs))
	for i, raw := range req.TransactionIDs {
		ids[i] = uuid.MustParse(raw)
	}

	items, err := h.service.ScoreBatch(r.Context(), ids, userID)
	if err != nil && len(items) == 0 {
		h.writeServiceError(w, r, err, "Batch prediction failed")
		return
	}

	resp := dto.BatchPredictionResponse{Results: make([]dto.BatchItemResponse, 0, len(items))}
	for _, item := range items {
		entry := dto.BatchItemResponse{TransactionID: item.TransactionID}
		if item.Err != nil {
			entry.Error = "failed to record prediction"
			resp.Failed++
		} else {
			p := dto.NewPredictionResponse(item.Result, item.Prediction, item.Alert)
			entry.Prediction = &p
			if item.Result.IsFraud {
				resp.FraudDetected++
			}
		}
		resp.Results = append(resp.Results, entry)
	}
	resp.TotalProcessed = len(items)
	resp.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		// Rounds committed before the failure are returned alongside the error
		status, message := h.serviceErrorStatus(r, err, "Batch prediction failed")
		resp.Error = message
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Feedback handles PUT /api/v1/predictions/{id}/feedback
func (h *PredictionHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not authenticated")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid prediction ID")
		return
	}

	var req dto.FeedbackRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prediction, err := h.service.RecordFeedback(r.Context(), id, userID, req.IsCorrect, req.Notes)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to record feedback")
		return
	}
	if prediction == nil {
		writeError(w, http.StatusNotFound, "Prediction not found")
		return
	}

	writeJSON(w, http.StatusOK, dto.NewPredictionRecord(prediction))
}

// History handles GET /api/v1/predictions
func (h *PredictionHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not authenticated")
		return
	}

	filter, err := parseHistoryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	predictions, total, err := h.service.History(r.Context(), userID, filter)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to load prediction history")
		return
	}

	records := make([]dto.PredictionRecord, len(predictions))
	for i, p := range predictions {
		records[i] = dto.NewPredictionRecord(p)
	}
	writeJSON(w, http.StatusOK, dto.HistoryResponse{
		Predictions: records,
		Total:       total,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
}

// Statistics handles GET /api/v1/predictions/statistics
func (h *PredictionHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not authenticated")
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}

	stats, err := h.service.Statistics(r.Context(), userID, days)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ModelInfo handles GET /api/v1/model/info
func (h *PredictionHandler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.model.ModelInfo(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to describe model")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *PredictionHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status, message := h.serviceErrorStatus(r, err, message)
	writeError(w, status, message)
}

// serviceErrorStatus maps a service error to a status and client message,
// logging anything unexpected
func (h *PredictionHandler) serviceErrorStatus(r *http.Request, err error, message string) (int, string) {
	switch {
	case errors.Is(err, fraud.ErrNotFoundOrUnauthorized):
		return http.StatusNotFound, "Transaction not found or access denied"
	case errors.Is(err, fraud.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "ML model is unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out"
	default:
		logging.L(r.Context()).Error(message, zap.Error(err))
		return http.StatusInternalServerError, message
	}
}

func parseHistoryFilter(r *http.Request) (fraud.HistoryFilter, error) {
	q := r.URL.Query()
	var filter fraud.HistoryFilter

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return filter, errors.New("limit must be between 1 and 500")
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	if raw := q.Get("start_date"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return filter, errors.New("start_date must be RFC3339 or YYYY-MM-DD")
		}
		filter.StartDate = &t
	}
	if raw := q.Get("end_date"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return filter, errors.New("end_date must be RFC3339 or YYYY-MM-DD")
		}
		filter.EndDate = &t
	}
	if raw := q.Get("risk_level"); raw != "" {
		level := fraud.RiskLevel(raw)
		if !level.IsValid() {
			return filter, errors.New("risk_level must be low, medium, high or critical")
		}
		filter.RiskLevel = &level
	}

	return filter.Normalize(), nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
