package fraud

import "errors"

var (
	// Scoring errors
	ErrFeatureCountMismatch = errors.New("feature vector width does not match model input")
	ErrModelUnavailable     = errors.New("ML model is unavailable")
	ErrInferenceTimeout     = errors.New("model inference timed out")
	ErrInvalidProbability   = errors.New("model returned an invalid probability")

	// Lookup errors
	ErrNotFoundOrUnauthorized = errors.New("transaction not found or access denied")
	ErrPredictionNotFound     = errors.New("prediction not found")

	// Persistence errors
	ErrDuplicatePrediction = errors.New("prediction already exists for transaction")

	// Cache errors
	ErrCacheMiss = errors.New("cache miss")
)
