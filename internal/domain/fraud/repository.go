package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fraud-scoring-service/internal/domain/transaction"
)

// PredictionRepository manages persisted predictions
type PredictionRepository interface {
	// Create stores a new prediction.
	// Returns ErrDuplicatePrediction when the transaction already has one.
	Create(ctx context.Context, prediction *Prediction) error

	// GetByTransactionID retrieves the prediction for a transaction
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*Prediction, error)

	// GetForUser retrieves a prediction whose transaction is owned by userID
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*Prediction, error)

	// UpdateFeedback persists the review metadata of a prediction
	UpdateFeedback(ctx context.Context, prediction *Prediction) error

	// ListForUser pages through a user's predictions, newest first, with the unpaged total
	ListForUser(ctx context.Context, userID uuid.UUID, filter HistoryFilter) ([]*Prediction, int64, error)

	// ListSince retrieves every prediction for a user created at or after since
	ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*Prediction, error)
}

// AlertRepository manages fraud alerts
type AlertRepository interface {
	// Create stores a new alert
	Create(ctx context.Context, alert *FraudAlert) error
}

// Repositories groups the repositories that share one unit of work
type Repositories struct {
	Transactions transaction.Repository
	Predictions  PredictionRepository
	Alerts       AlertRepository
}

// UnitOfWork runs fn atomically: every write made through the given
// repositories commits together or not at all.
type UnitOfWork interface {
	Transact(ctx context.Context, fn func(repos Repositories) error) error
}

// CacheStore is a key/value store with per-key expiry.
// Get returns ErrCacheMiss for absent keys.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// HistoryFilter narrows a prediction history query
type HistoryFilter struct {
	Limit     int
	Offset    int
	StartDate *time.Time
	EndDate   *time.Time
	RiskLevel *RiskLevel
}

// Normalize applies paging defaults
func (f HistoryFilter) Normalize() HistoryFilter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
