package dto

import (
	"time"

	"github.com/google/uuid"

	"fraud-scoring-service/internal/domain/fraud"
)

// PredictionResponse is the caller-facing verdict for one transaction
type PredictionResponse struct {
	PredictionID      uuid.UUID          `json:"prediction_id"`
	TransactionID     uuid.UUID          `json:"transaction_id"`
	IsFraud           bool               `json:"is_fraud"`
	FraudProbability  float64            `json:"fraud_probability"`
	ConfidenceScore   float64            `json:"confidence_score"`
	RiskLevel         string             `json:"risk_level"`
	ModelVersion      string             `json:"model_version"`
	ProcessingTimeMs  float64            `json:"processing_time_ms"`
	Timestamp         time.Time          `json:"timestamp"`
	AlertID           *uuid.UUID         `json:"alert_id,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	Status            string             `json:"status"`
	DegradedReason    string             `json:"degraded_reason,omitempty"`
}

// NewPredictionResponse renders a verdict. The prediction ID comes from the
// persisted record when there is one.
func NewPredictionResponse(result *fraud.PredictionResult, prediction *fraud.Prediction, alert *fraud.FraudAlert) PredictionResponse {
	resp := PredictionResponse{
		PredictionID:      result.PredictionID,
		TransactionID:     result.TransactionID,
		IsFraud:           result.IsFraud,
		FraudProbability:  result.FraudProbability,
		ConfidenceScore:   result.Confidence,
		RiskLevel:         string(result.RiskLevel),
		ModelVersion:      result.ModelVersion,
		ProcessingTimeMs:  result.ProcessingTimeMs,
		Timestamp:         result.Timestamp,
		FeatureImportance: result.FeatureImportance,
		Status:            string(result.Status),
		DegradedReason:    result.DegradedReason,
	}
	if prediction != nil {
		resp.PredictionID = prediction.ID
	}
	if alert != nil {
		id := alert.ID
		resp.AlertID = &id
	}
	return resp
}

// BatchItemResponse is one entry of a batch response
type BatchItemResponse struct {
	TransactionID uuid.UUID           `json:"transaction_id"`
	Prediction    *PredictionResponse `json:"prediction,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// BatchPredictionResponse summarizes a batch
type BatchPredictionResponse struct {
	Results          []BatchItemResponse `json:"results"`
	TotalProcessed   int                 `json:"total_processed"`
	FraudDetected    int                 `json:"fraud_detected"`
	Failed           int                 `json:"failed"`
	ProcessingTimeMs float64             `json:"processing_time_ms"`
	// Error is set when the batch stopped early; Results holds what finished
	Error string `json:"error,omitempty"`
}

// PredictionRecord is a persisted prediction as returned by history and feedback
type PredictionRecord struct {
	ID                uuid.UUID          `json:"id"`
	TransactionID     uuid.UUID          `json:"transaction_id"`
	ModelVersion      string             `json:"model_version"`
	FraudProbability  float64            `json:"fraud_probability"`
	IsFraud           bool               `json:"is_fraud"`
	ConfidenceScore   float64            `json:"confidence_score"`
	RiskLevel         string             `json:"risk_level"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	ProcessingTimeMs  int64              `json:"processing_time_ms"`
	Status            string             `json:"status"`
	Feedback          string             `json:"feedback"`
	ReviewedBy        *uuid.UUID         `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time         `json:"reviewed_at,omitempty"`
	FeedbackNotes     *string            `json:"feedback_notes,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// NewPredictionRecord renders a persisted prediction
func NewPredictionRecord(p *fraud.Prediction) PredictionRecord {
	return PredictionRecord{
		ID:                p.ID,
		TransactionID:     p.TransactionID,
		ModelVersion:      p.ModelVersion,
		FraudProbability:  p.FraudProbability,
		IsFraud:           p.PredictionClass,
		ConfidenceScore:   p.Confidence,
		RiskLevel:         string(p.RiskLevel),
		FeatureImportance: p.FeatureImportance,
		ProcessingTimeMs:  p.ProcessingTimeMs,
		Status:            string(p.Status),
		Feedback:          string(p.Feedback),
		ReviewedBy:        p.ReviewedBy,
		ReviewedAt:        p.ReviewedAt,
		FeedbackNotes:     p.FeedbackNotes,
		CreatedAt:         p.CreatedAt,
	}
}

// HistoryResponse is a page of prediction history
type HistoryResponse struct {
	Predictions []PredictionRecord `json:"predictions"`
	Total       int64              `json:"total"`
	Limit       int                `json:"limit"`
	Offset      int                `json:"offset"`
}
