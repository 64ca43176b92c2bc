package postgres

import (
	"context"

	"gorm.io/gorm"

	"fraud-scoring-service/internal/domain/fraud"
)

// UnitOfWork runs repository writes inside one database transaction
type UnitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork creates a unit of work over db
func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// Transact commits when fn returns nil and rolls back otherwise
func (u *UnitOfWork) Transact(ctx context.Context, fn func(repos fraud.Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// NewRepositories builds the repository set over db
func NewRepositories(db *gorm.DB) fraud.Repositories {
	return fraud.Repositories{
		Transactions: NewTransactionRepository(db),
		Predictions:  NewPredictionRepository(db),
		Alerts:       NewAlertRepository(db),
	}
}
