package dto

// ScoreRequest asks for one transaction to be scored
type ScoreRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,uuid"`
}

// BatchScoreRequest asks for several transactions to be scored
type BatchScoreRequest struct {
	TransactionIDs []string `json:"transaction_ids" validate:"required,min=1,max=1000,dive,uuid"`
}

// FeedbackRequest records a reviewer's judgement on a prediction
type FeedbackRequest struct {
	IsCorrect *bool   `json:"is_correct"`
	Notes     *string `json:"feedback_notes" validate:"omitempty,max=2000"`
}
