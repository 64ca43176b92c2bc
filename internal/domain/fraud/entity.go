package fraud

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ScoringStatus tells a real verdict apart from a safe default
type ScoringStatus string

const (
	StatusScored   ScoringStatus = "scored"
	StatusDegraded ScoringStatus = "degraded"
)

// Feedback is the reviewer's judgement on a persisted prediction
type Feedback string

const (
	FeedbackUnknown   Feedback = "unknown"
	FeedbackCorrect   Feedback = "correct"
	FeedbackIncorrect Feedback = "incorrect"
)

// PredictionResult is the outcome of one scoring call.
// It is built once and never mutated; the cache stores it as JSON.
type PredictionResult struct {
	PredictionID      uuid.UUID          `json:"prediction_id"`
	TransactionID     uuid.UUID          `json:"transaction_id"`
	IsFraud           bool               `json:"is_fraud"`
	FraudProbability  float64            `json:"fraud_probability"`
	Confidence        float64            `json:"confidence_score"`
	RiskLevel         RiskLevel          `json:"risk_level"`
	ModelVersion      string             `json:"model_version"`
	ProcessingTimeMs  float64            `json:"processing_time_ms"`
	Timestamp         time.Time          `json:"timestamp"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`

	Status         ScoringStatus `json:"status"`
	DegradedReason string        `json:"degraded_reason,omitempty"`
}

// NewScoredResult derives every verdict field from the model probability
func NewScoredResult(transactionID uuid.UUID, probability float64, modelVersion string, importance map[string]float64, elapsed time.Duration) *PredictionResult {
	return &PredictionResult{
		PredictionID:      uuid.New(),
		TransactionID:     transactionID,
		IsFraud:           probability >= FraudDecisionThreshold,
		FraudProbability:  probability,
		Confidence:        ConfidenceFromProbability(probability),
		RiskLevel:         RiskLevelFromProbability(probability),
		ModelVersion:      modelVersion,
		ProcessingTimeMs:  durationMs(elapsed),
		Timestamp:         time.Now().UTC(),
		FeatureImportance: importance,
		Status:            StatusScored,
	}
}

// NewSafeDefault returns the fail-open verdict used when scoring could not complete.
// It looks like a low-risk verdict but carries StatusDegraded and the reason.
func NewSafeDefault(transactionID uuid.UUID, modelVersion string, elapsed time.Duration, reason string) *PredictionResult {
	return &PredictionResult{
		PredictionID:     uuid.New(),
		TransactionID:    transactionID,
		IsFraud:          false,
		FraudProbability: 0,
		Confidence:       0,
		RiskLevel:        RiskLevelLow,
		ModelVersion:     modelVersion,
		ProcessingTimeMs: durationMs(elapsed),
		Timestamp:        time.Now().UTC(),
		Status:           StatusDegraded,
		DegradedReason:   reason,
	}
}

// IsDegraded reports whether the result is a safe default
func (r *PredictionResult) IsDegraded() bool {
	return r.Status == StatusDegraded
}

// RequiresAlert reports whether the verdict warrants a fraud alert
func (r *PredictionResult) RequiresAlert() bool {
	return r.RiskLevel == RiskLevelHigh || r.RiskLevel == RiskLevelCritical
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

// Prediction is the durable record of a verdict plus its review metadata.
// Only ApplyFeedback mutates it after creation.
type Prediction struct {
	ID                uuid.UUID          `json:"id"`
	TransactionID     uuid.UUID          `json:"transaction_id"`
	ModelVersion      string             `json:"model_version"`
	FraudProbability  float64            `json:"fraud_probability"`
	PredictionClass   bool               `json:"prediction_class"`
	Confidence        float64            `json:"confidence_score"`
	RiskLevel         RiskLevel          `json:"risk_level"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	ProcessingTimeMs  int64              `json:"processing_time_ms"`
	Status            ScoringStatus      `json:"status"`

	// Review metadata
	Feedback      Feedback   `json:"feedback"`
	ReviewedBy    *uuid.UUID `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	FeedbackNotes *string    `json:"feedback_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewPrediction builds the durable record for a scored result.
// The prediction ID is taken from the result so the two stay correlated.
func NewPrediction(result *PredictionResult) *Prediction {
	return &Prediction{
		ID:                result.PredictionID,
		TransactionID:     result.TransactionID,
		ModelVersion:      result.ModelVersion,
		FraudProbability:  result.FraudProbability,
		PredictionClass:   result.IsFraud,
		Confidence:        result.Confidence,
		RiskLevel:         result.RiskLevel,
		FeatureImportance: result.FeatureImportance,
		ProcessingTimeMs:  int64(result.ProcessingTimeMs),
		Status:            result.Status,
		Feedback:          FeedbackUnknown,
		CreatedAt:         time.Now().UTC(),
	}
}

// Result reconstructs the verdict a persisted prediction was created from
func (p *Prediction) Result() *PredictionResult {
	return &PredictionResult{
		PredictionID:      p.ID,
		TransactionID:     p.TransactionID,
		IsFraud:           p.PredictionClass,
		FraudProbability:  p.FraudProbability,
		Confidence:        p.Confidence,
		RiskLevel:         p.RiskLevel,
		ModelVersion:      p.ModelVersion,
		ProcessingTimeMs:  float64(p.ProcessingTimeMs),
		Timestamp:         p.CreatedAt,
		FeatureImportance: p.FeatureImportance,
		Status:            p.Status,
	}
}

// ApplyFeedback records a reviewer's judgement.
// Returns false when neither field was supplied and nothing changed.
func (p *Prediction) ApplyFeedback(reviewer uuid.UUID, correct *bool, notes *string) bool {
	if correct == nil && notes == nil {
		return false
	}

	if correct != nil {
		if *correct {
			p.Feedback = FeedbackCorrect
		} else {
			p.Feedback = FeedbackIncorrect
		}
	}
	if notes != nil {
		n := *notes
		p.FeedbackNotes = &n
	}

	now := time.Now().UTC()
	p.ReviewedBy = &reviewer
	p.ReviewedAt = &now
	return true
}

// AlertLevel represents the severity of a fraud alert
type AlertLevel string

const (
	AlertLevelHigh     AlertLevel = "high"
	AlertLevelCritical AlertLevel = "critical"
)

// FraudAlert is raised for high and critical verdicts.
// Resolution happens in a separate review workflow.
type FraudAlert struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	PredictionID  uuid.UUID  `json:"prediction_id"`
	Level         AlertLevel `json:"alert_level"`
	Message       string     `json:"alert_message"`
	IsResolved    bool       `json:"is_resolved"`
	ResolvedBy    *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewFraudAlert creates an alert for a high or critical verdict.
// Returns nil when the verdict does not warrant one.
func NewFraudAlert(amount decimal.Decimal, merchantName string, result *PredictionResult) *FraudAlert {
	if !result.RequiresAlert() {
		return nil
	}

	level := AlertLevelHigh
	if result.RiskLevel == RiskLevelCritical {
		level = AlertLevelCritical
	}

	return &FraudAlert{
		ID:            uuid.New(),
		TransactionID: result.TransactionID,
		PredictionID:  result.PredictionID,
		Level:         level,
		Message:       AlertMessage(amount, merchantName, result.RiskLevel, result.FraudProbability),
		CreatedAt:     time.Now().UTC(),
	}
}

// AlertMessage renders the human-readable alert text
func AlertMessage(amount decimal.Decimal, merchantName string, level RiskLevel, probability float64) string {
	return fmt.Sprintf("Transaction of $%s at %s flagged as %s risk (score: %.2f%%)",
		amount.StringFixed(2), merchantName, level, probability*100)
}
