package transaction

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the contract for transaction persistence.
// Reads are always scoped to the requesting user through the owning card.
type Repository interface {
	// GetForUser retrieves a transaction owned by userID.
	// Returns ErrTransactionNotFound both for missing rows and for rows owned by someone else.
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*Transaction, error)

	// ListForUser retrieves the subset of ids owned by userID, in no particular order
	ListForUser(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]*Transaction, error)

	// UpdateFraudFlags writes the scoring verdict back onto the transaction
	UpdateFraudFlags(ctx context.Context, id uuid.UUID, flags FraudFlags) error
}
