package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fraud-scoring-service/internal/domain/fraud"
)

// PredictionModel is the database model for predictions
type PredictionModel struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TransactionID     uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null"`
	ModelVersion      string     `gorm:"type:varchar(50);not null"`
	FraudProbability  float64    `gorm:"not null"`
	PredictionClass   bool       `gorm:"not null"`
	ConfidenceScore   float64    `gorm:"not null"`
	RiskLevel         string     `gorm:"type:varchar(20);index;not null"`
	FeatureImportance *string    `gorm:"type:jsonb"`
	ProcessingTimeMs  int64      `gorm:"not null"`
	Status            string     `gorm:"type:varchar(20);not null;default:scored"`
	Feedback          string     `gorm:"type:varchar(20);not null;default:unknown"`
	ReviewedBy        *uuid.UUID `gorm:"type:uuid"`
	ReviewedAt        *time.Time
	FeedbackNotes     *string   `gorm:"type:text"`
	CreatedAt         time.Time `gorm:"index;not null"`
}

// TableName returns the table name for predictions
func (PredictionModel) TableName() string {
	return "predictions"
}

// PredictionRepository implements fraud.PredictionRepository
type PredictionRepository struct {
	db *gorm.DB
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(db *gorm.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Create stores a prediction. The unique index on transaction_id turns a
// concurrent second insert into ErrDuplicatePrediction.
func (r *PredictionRepository) Create(ctx context.Context, prediction *fraud.Prediction) error {
	model, err := predictionToModel(prediction)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return fraud.ErrDuplicatePrediction
		}
		return err
	}
	return nil
}

// GetByTransactionID retrieves the prediction for a transaction
func (r *PredictionRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*fraud.Prediction, error) {
	var model PredictionModel
	if err := r.db.WithContext(ctx).First(&model, "transaction_id = ?", transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fraud.ErrPredictionNotFound
		}
		return nil, err
	}
	return modelToPrediction(&model)
}

func (r *PredictionRepository) ownedBy(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&PredictionModel{}).
		Joins("JOIN transactions ON transactions.id = predictions.transaction_id").
		Joins("JOIN cards ON cards.id = transactions.card_id").
		Where("cards.user_id = ?", userID)
}

// GetForUser retrieves a prediction whose transaction is owned by userID
func (r *PredictionRepository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*fraud.Prediction, error) {
	var model PredictionModel
	err := r.ownedBy(ctx, userID).
		Where("predictions.id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fraud.ErrPredictionNotFound
		}
		return nil, err
	}
	return modelToPrediction(&model)
}

// UpdateFeedback persists review metadata
func (r *PredictionRepository) UpdateFeedback(ctx context.Context, prediction *fraud.Prediction) error {
	res := r.db.WithContext(ctx).Model(&PredictionModel{}).
		Where("id = ?", prediction.ID).
		Updates(map[string]interface{}{
			"feedback":       string(prediction.Feedback),
			"reviewed_by":    prediction.ReviewedBy,
			"reviewed_at":    prediction.ReviewedAt,
			"feedback_notes": prediction.FeedbackNotes,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fraud.ErrPredictionNotFound
	}
	return nil
}

// ListForUser pages through a user's predictions, newest first
func (r *PredictionRepository) ListForUser(ctx context.Context, userID uuid.UUID, filter fraud.HistoryFilter) ([]*fraud.Prediction, int64, error) {
	filter = filter.Normalize()

	query := r.ownedBy(ctx, userID)
	if filter.StartDate != nil {
		query = query.Where("predictions.created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("predictions.created_at <= ?", *filter.EndDate)
	}
	if filter.RiskLevel != nil {
		query = query.Where("predictions.risk_level = ?", string(*filter.RiskLevel))
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []PredictionModel
	if err := query.
		Order("predictions.created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}

	predictions, err := modelsToPredictions(models)
	if err != nil {
		return nil, 0, err
	}
	return predictions, total, nil
}

// ListSince retrieves a user's predictions created at or after since
func (r *PredictionRepository) ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*fraud.Prediction, error) {
	var models []PredictionModel
	if err := r.ownedBy(ctx, userID).
		Where("predictions.created_at >= ?", since).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return modelsToPredictions(models)
}

func predictionToModel(p *fraud.Prediction) (*PredictionModel, error) {
	var importance *string
	if len(p.FeatureImportance) > 0 {
		data, err := json.Marshal(p.FeatureImportance)
		if err != nil {
			return nil, err
		}
		s := string(data)
		importance = &s
	}

	return &PredictionModel{
		ID:                p.ID,
		TransactionID:     p.TransactionID,
		ModelVersion:      p.ModelVersion,
		FraudProbability:  p.FraudProbability,
		PredictionClass:   p.PredictionClass,
		ConfidenceScore:   p.Confidence,
		RiskLevel:         string(p.RiskLevel),
		FeatureImportance: importance,
		ProcessingTimeMs:  p.ProcessingTimeMs,
		Status:            string(p.Status),
		Feedback:          string(p.Feedback),
		ReviewedBy:        p.ReviewedBy,
		ReviewedAt:        p.ReviewedAt,
		FeedbackNotes:     p.FeedbackNotes,
		CreatedAt:         p.CreatedAt,
	}, nil
}

func modelToPrediction(m *PredictionModel) (*fraud.Prediction, error) {
	var importance map[string]float64
	if m.FeatureImportance != nil {
		if err := json.Unmarshal([]byte(*m.FeatureImportance), &importance); err != nil {
			return nil, fmt.Errorf("decode feature_importance of prediction %s: %w", m.ID, err)
		}
	}

	return &fraud.Prediction{
		ID:                m.ID,
		TransactionID:     m.TransactionID,
		ModelVersion:      m.ModelVersion,
		FraudProbability:  m.FraudProbability,
		PredictionClass:   m.PredictionClass,
		Confidence:        m.ConfidenceScore,
		RiskLevel:         fraud.RiskLevel(m.RiskLevel),
		FeatureImportance: importance,
		ProcessingTimeMs:  m.ProcessingTimeMs,
		Status:            fraud.ScoringStatus(m.Status),
		Feedback:          fraud.Feedback(m.Feedback),
		ReviewedBy:        m.ReviewedBy,
		ReviewedAt:        m.ReviewedAt,
		FeedbackNotes:     m.FeedbackNotes,
		CreatedAt:         m.CreatedAt,
	}, nil
}

func modelsToPredictions(models []PredictionModel) ([]*fraud.Prediction, error) {
	out := make([]*fraud.Prediction, len(models))
	for i := range models {
		p, err := modelToPrediction(&models[i])
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// FraudAlertModel is the database model for fraud alerts
type FraudAlertModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TransactionID uuid.UUID  `gorm:"type:uuid;index;not null"`
	PredictionID  uuid.UUID  `gorm:"type:uuid;index;not null"`
	AlertLevel    string     `gorm:"type:varchar(20);not null"`
	AlertMessage  string     `gorm:"type:text;not null"`
	IsResolved    bool       `gorm:"not null;default:false"`
	ResolvedBy    *uuid.UUID `gorm:"type:uuid"`
	ResolvedAt    *time.Time
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for fraud alerts
func (FraudAlertModel) TableName() string {
	return "fraud_alerts"
}

// AlertRepository implements fraud.AlertRepository
type AlertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create stores a new alert
func (r *AlertRepository) Create(ctx context.Context, alert *fraud.FraudAlert) error {
	model := &FraudAlertModel{
		ID:            alert.ID,
		TransactionID: alert.TransactionID,
		PredictionID:  alert.PredictionID,
		AlertLevel:    string(alert.Level),
		AlertMessage:  alert.Message,
		IsResolved:    alert.IsResolved,
		ResolvedBy:    alert.ResolvedBy,
		ResolvedAt:    alert.ResolvedAt,
		CreatedAt:     alert.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(model).Error
}
