// Package fraud orchestrates scoring, persistence and alerting for
// user-owned transactions.
package fraud

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fraud-scoring-service/internal/domain/fraud"
	"fraud-scoring-service/internal/domain/transaction"
)

// Scorer produces verdicts for transactions and owns the verdict cache
type Scorer interface {
	PredictSingle(ctx context.Context, tx *transaction.Transaction) (*fraud.PredictionResult, error)
	PredictBatch(ctx context.Context, txs []*transaction.Transaction) ([]*fraud.PredictionResult, error)
	CachedResult(ctx context.Context, txID uuid.UUID) (*fraud.PredictionResult, bool)
	CacheResult(ctx context.Context, result *fraud.PredictionResult)
}

// AlertPublisher forwards committed alerts to downstream consumers
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert *fraud.FraudAlert, result *fraud.PredictionResult) error
}

// Config holds PredictionService settings
type Config struct {
	// BatchSize is the number of transactions loaded and scored per round
	BatchSize int
}

// ScoreOutcome is the result of scoring one transaction
type ScoreOutcome struct {
	Result     *fraud.PredictionResult
	Prediction *fraud.Prediction
	Alert      *fraud.FraudAlert
}

// BatchItem is one transaction's outcome in a batch. Err is set when the
// verdict could not be persisted; Prediction is nil then.
type BatchItem struct {
	TransactionID uuid.UUID
	Result        *fraud.PredictionResult
	Prediction    *fraud.Prediction
	Alert         *fraud.FraudAlert
	Err           error
}

// PredictionService scores transactions on behalf of a user and records
// the verdicts.
type PredictionService struct {
	uow       fraud.UnitOfWork
	repos     fraud.Repositories
	scorer    Scorer
	publisher AlertPublisher
	cfg       Config
	logger    *zap.Logger
}

// NewPredictionService creates a prediction service. repos serve reads
// outside a unit of work.
func NewPredictionService(uow fraud.UnitOfWork, repos fraud.Repositories, scorer Scorer, cfg Config, logger *zap.Logger) *PredictionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &PredictionService{
		uow:    uow,
		repos:  repos,
		scorer: scorer,
		cfg:    cfg,
		logger: logger,
	}
}

// WithAlertPublisher publishes every committed alert to p
func (s *PredictionService) WithAlertPublisher(p AlertPublisher) *PredictionService {
	s.publisher = p
	return s
}
