package transaction

import "errors"

var (
	// ErrTransactionNotFound is returned when a transaction cannot be found
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidTransactionID is returned when the transaction ID is invalid
	ErrInvalidTransactionID = errors.New("invalid transaction ID")

	// ErrNegativeAmount is returned when transaction amount is negative
	ErrNegativeAmount = errors.New("transaction amount cannot be negative")

	// ErrZeroAmount is returned when transaction amount is zero
	ErrZeroAmount = errors.New("transaction amount cannot be zero")

	// ErrInvalidTransactionType is returned for types outside purchase/refund/cash_advance/payment
	ErrInvalidTransactionType = errors.New("invalid transaction type")
)
