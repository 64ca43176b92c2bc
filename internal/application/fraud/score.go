package fraud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fraud-scoring-service/internal/domain/fraud"
	"fraud-scoring-service/internal/domain/transaction"
	"fraud-scoring-service/internal/pkg/metrics"
	"fraud-scoring-service/internal/pkg/tracing"
)

// ScoreTransaction scores a transaction owned by userID, persists the
// verdict and raises an alert for high and critical risk.
//
// A transaction that was already scored and whose verdict is still cached
// is returned as-is without a new alert.
func (s *PredictionService) ScoreTransaction(ctx context.Context, txID, userID uuid.UUID) (_ *ScoreOutcome, retErr error) {
	ctx, span := tracing.StartSpan(ctx, "fraud.ScoreTransaction",
		tracing.TransactionID(txID.String()), tracing.UserID(userID.String()))
	defer func() { tracing.End(span, retErr) }()

	tx, err := s.repos.Transactions.GetForUser(ctx, txID, userID)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound) {
			return nil, fraud.ErrNotFoundOrUnauthorized
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	if outcome, ok := s.alreadyScored(ctx, tx.ID); ok {
		return outcome, nil
	}

	result, err := s.scorer.PredictSingle(ctx, tx)
	if err != nil {
		return nil, err
	}

	outcome, err := s.persist(ctx, tx, result)
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, outcome)
	return outcome, nil
}

// alreadyScored returns the durable prediction paired with its cached verdict
func (s *PredictionService) alreadyScored(ctx context.Context, txID uuid.UUID) (*ScoreOutcome, bool) {
	cached, ok := s.scorer.CachedResult(ctx, txID)
	if !ok {
		return nil, false
	}

	existing, err := s.repos.Predictions.GetByTransactionID(ctx, txID)
	if err != nil {
		if !errors.Is(err, fraud.ErrPredictionNotFound) {
			s.logger.Warn("failed to look up existing prediction",
				zap.String("transaction_id", txID.String()), zap.Error(err))
		}
		return nil, false
	}

	return &ScoreOutcome{Result: cached, Prediction: existing}, true
}

// persist writes the prediction, the transaction's fraud flags and any alert
// in one unit of work. If another request stored a prediction first, that
// prediction is returned instead and no alert is raised.
func (s *PredictionService) persist(ctx context.Context, tx *transaction.Transaction, result *fraud.PredictionResult) (*ScoreOutcome, error) {
	prediction := fraud.NewPrediction(result)
	alert := fraud.NewFraudAlert(tx.Amount, tx.MerchantName, result)

	err := s.uow.Transact(ctx, func(repos fraud.Repositories) error {
		if err := repos.Predictions.Create(ctx, prediction); err != nil {
			return err
		}

		flags := transaction.FraudFlags{
			IsFraud:    result.IsFraud,
			FraudScore: decimal.NewFromFloat(result.FraudProbability).Round(4),
			UpdatedAt:  time.Now().UTC(),
		}
		if err := repos.Transactions.UpdateFraudFlags(ctx, tx.ID, flags); err != nil {
			return fmt.Errorf("failed to update fraud flags: %w", err)
		}

		if alert != nil {
			if err := repos.Alerts.Create(ctx, alert); err != nil {
				return fmt.Errorf("failed to create fraud alert: %w", err)
			}
		}
		return nil
	})

	if errors.Is(err, fraud.ErrDuplicatePrediction) {
		existing, getErr := s.repos.Predictions.GetByTransactionID(ctx, tx.ID)
		if getErr != nil {
			return nil, fmt.Errorf("failed to load existing prediction: %w", getErr)
		}
		s.logger.Info("transaction already scored, returning stored prediction",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("prediction_id", existing.ID.String()))
		return &ScoreOutcome{Result: existing.Result(), Prediction: existing}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to persist prediction: %w", err)
	}

	return &ScoreOutcome{Result: result, Prediction: prediction, Alert: alert}, nil
}

// afterCommit refreshes the cache and publishes the alert. Neither can fail the request.
func (s *PredictionService) afterCommit(ctx context.Context, outcome *ScoreOutcome) {
	s.scorer.CacheResult(ctx, outcome.Result)

	if outcome.Alert == nil {
		return
	}
	metrics.AlertsCreatedTotal.WithLabelValues(string(outcome.Alert.Level)).Inc()
	s.logger.Info("fraud alert created",
		zap.String("alert_id", outcome.Alert.ID.String()),
		zap.String("transaction_id", outcome.Alert.TransactionID.String()),
		zap.String("level", string(outcome.Alert.Level)))

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAlert(ctx, outcome.Alert, outcome.Result); err != nil {
		s.logger.Warn("failed to publish fraud alert",
			zap.String("alert_id", outcome.Alert.ID.String()), zap.Error(err))
	}
}
