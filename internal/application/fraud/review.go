package fraud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fraud-scoring-service/internal/domain/fraud"
)

const defaultStatisticsDays = 30

// RecordFeedback stores a reviewer's judgement on a prediction owned by
// userID. A prediction that does not exist or belongs to someone else
// yields nil without an error.
func (s *PredictionService) RecordFeedback(ctx context.Context, predictionID, userID uuid.UUID, correct *bool, notes *string) (*fraud.Prediction, error) {
	prediction, err := s.repos.Predictions.GetForUser(ctx, predictionID, userID)
	if err != nil {
		if errors.Is(err, fraud.ErrPredictionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load prediction: %w", err)
	}

	if !prediction.ApplyFeedback(userID, correct, notes) {
		return prediction, nil
	}

	if err := s.repos.Predictions.UpdateFeedback(ctx, prediction); err != nil {
		return nil, fmt.Errorf("failed to save feedback: %w", err)
	}
	return prediction, nil
}

// History pages through the user's predictions, newest first
func (s *PredictionService) History(ctx context.Context, userID uuid.UUID, filter fraud.HistoryFilter) ([]*fraud.Prediction, int64, error) {
	predictions, total, err := s.repos.Predictions.ListForUser(ctx, userID, filter.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list predictions: %w", err)
	}
	return predictions, total, nil
}

// Statistics summarizes the user's predictions over the last days
func (s *PredictionService) Statistics(ctx context.Context, userID uuid.UUID, days int) (*fraud.Statistics, error) {
	if days <= 0 {
		days = defaultStatisticsDays
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	predictions, err := s.repos.Predictions.ListSince(ctx, userID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to load predictions: %w", err)
	}
	return fraud.ComputeStatistics(predictions, days, start, end), nil
}
