package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType categorizes the type of transaction
type TransactionType string

const (
	TypePurchase    TransactionType = "purchase"
	TypeRefund      TransactionType = "refund"
	TypeCashAdvance TransactionType = "cash_advance"
	TypePayment     TransactionType = "payment"
)

// IsValid reports whether the type is one of the known transaction types
func (t TransactionType) IsValid() bool {
	switch t {
	case TypePurchase, TypeRefund, TypeCashAdvance, TypePayment:
		return true
	}
	return false
}

// Transaction is a card transaction as read for fraud scoring.
// The scoring pipeline never mutates it; fraud flags are written back
// through the repository.
type Transaction struct {
	ID     uuid.UUID `json:"id"`
	CardID uuid.UUID `json:"card_id"`

	Amount           decimal.Decimal `json:"amount"`
	MerchantName     string          `json:"merchant_name"`
	MerchantCategory string          `json:"merchant_category"`
	TransactionDate  time.Time       `json:"transaction_date"`
	Type             TransactionType `json:"transaction_type"`

	// Context captured at authorization time
	Location   string         `json:"location,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	DeviceInfo map[string]any `json:"device_info,omitempty"`

	// Fraud detection fields
	IsFraud    bool             `json:"is_fraud"`
	FraudScore *decimal.Decimal `json:"fraud_score,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields the scoring pipeline relies on
func (t *Transaction) Validate() error {
	if t.ID == uuid.Nil {
		return ErrInvalidTransactionID
	}
	if t.Amount.IsZero() {
		return ErrZeroAmount
	}
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if t.Type != "" && !t.Type.IsValid() {
		return ErrInvalidTransactionType
	}
	return nil
}

// FraudFlags is the subset of transaction fields updated after scoring
type FraudFlags struct {
	IsFraud    bool
	FraudScore decimal.Decimal
	UpdatedAt  time.Time
}
