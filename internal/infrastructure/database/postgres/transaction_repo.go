package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fraud-scoring-service/internal/domain/transaction"
)

// CardModel is the database model for payment cards
type CardModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for cards
func (CardModel) TableName() string {
	return "cards"
}

// TransactionModel is the database model for transactions
type TransactionModel struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey"`
	CardID           uuid.UUID        `gorm:"type:uuid;index;not null"`
	Amount           decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	MerchantName     string           `gorm:"type:varchar(255);not null"`
	MerchantCategory string           `gorm:"type:varchar(100)"`
	TransactionDate  time.Time        `gorm:"index;not null"`
	TransactionType  string           `gorm:"type:varchar(20);not null"`
	Location         string           `gorm:"type:varchar(255)"`
	IPAddress        string           `gorm:"type:varchar(45)"`
	DeviceInfo       *string          `gorm:"type:jsonb"`
	IsFraud          bool             `gorm:"not null;default:false"`
	FraudScore       *decimal.Decimal `gorm:"type:decimal(5,4)"`
	CreatedAt        time.Time        `gorm:"not null"`
	UpdatedAt        time.Time        `gorm:"not null"`
}

// TableName returns the table name for transactions
func (TransactionModel) TableName() string {
	return "transactions"
}

// TransactionRepository implements transaction.Repository.
// Every read joins through cards so a user only sees their own transactions.
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) ownedBy(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&TransactionModel{}).
		Joins("JOIN cards ON cards.id = transactions.card_id").
		Where("cards.user_id = ?", userID)
}

// GetForUser retrieves a transaction owned by userID
func (r *TransactionRepository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*transaction.Transaction, error) {
	var model TransactionModel
	err := r.ownedBy(ctx, userID).
		Where("transactions.id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, transaction.ErrTransactionNotFound
		}
		return nil, err
	}
	return modelToTransaction(&model), nil
}

// ListForUser retrieves the subset of ids owned by userID
func (r *TransactionRepository) ListForUser(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]*transaction.Transaction, error) {
	if len(ids) == 0 {
		return []*transaction.Transaction{}, nil
	}

	var models []TransactionModel
	if err := r.ownedBy(ctx, userID).
		Where("transactions.id IN ?", ids).
		Find(&models).Error; err != nil {
		return nil, err
	}

	transactions := make([]*transaction.Transaction, len(models))
	for i := range models {
		transactions[i] = modelToTransaction(&models[i])
	}
	return transactions, nil
}

// UpdateFraudFlags writes the verdict back onto the transaction
func (r *TransactionRepository) UpdateFraudFlags(ctx context.Context, id uuid.UUID, flags transaction.FraudFlags) error {
	score := flags.FraudScore
	res := r.db.WithContext(ctx).Model(&TransactionModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_fraud":    flags.IsFraud,
			"fraud_score": &score,
			"updated_at":  flags.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return transaction.ErrTransactionNotFound
	}
	return nil
}

func modelToTransaction(m *TransactionModel) *transaction.Transaction {
	var deviceInfo map[string]any
	if m.DeviceInfo != nil && *m.DeviceInfo != "" {
		// A malformed blob is treated as absent; features fall back to "unknown"
		if err := json.Unmarshal([]byte(*m.DeviceInfo), &deviceInfo); err != nil {
			deviceInfo = nil
		}
	}

	return &transaction.Transaction{
		ID:               m.ID,
		CardID:           m.CardID,
		Amount:           m.Amount,
		MerchantName:     m.MerchantName,
		MerchantCategory: m.MerchantCategory,
		TransactionDate:  m.TransactionDate,
		Type:             transaction.TransactionType(m.TransactionType),
		Location:         m.Location,
		IPAddress:        m.IPAddress,
		DeviceInfo:       deviceInfo,
		IsFraud:          m.IsFraud,
		FraudScore:       m.FraudScore,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
