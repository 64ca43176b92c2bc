package ml

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HistoryStore keeps recent feature vectors per card so the sequence window
// can carry real history instead of a repeated cold-start row.
type HistoryStore interface {
	// Recent returns the card's stored vectors, oldest first
	Recent(ctx context.Context, cardID uuid.UUID) ([]FeatureVector, error)
	Append(ctx context.Context, cardID uuid.UUID, at time.Time, vector FeatureVector) error
}
