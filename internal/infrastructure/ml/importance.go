package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"fraud-scoring-service/internal/domain/transaction"
)

// Importance keys as shown to reviewers
const (
	ImportanceAmount          = "Transaction Amount"
	ImportanceMerchant        = "Merchant Category"
	ImportanceTransactionType = "Transaction Type"
	ImportanceLocation        = "Location Risk"
	ImportanceTimeOfDay       = "Time of Day"
	ImportanceConfidence      = "Model Confidence"
)

var importanceKeys = []string{
	ImportanceAmount,
	ImportanceMerchant,
	ImportanceTransactionType,
	ImportanceLocation,
	ImportanceTimeOfDay,
	ImportanceConfidence,
}

// FeatureImportance returns a heuristic explanation of a verdict as six
// percentages summing to 100. It is not derived from the model and is only
// meant to give reviewers a starting point.
func FeatureImportance(tx *transaction.Transaction, probability float64) map[string]float64 {
	amount := tx.Amount.InexactFloat64()

	timeWeight := 8.0
	if !tx.TransactionDate.IsZero() {
		h := tx.TransactionDate.Hour()
		if h <= 5 || h == 23 {
			timeWeight = 15.0
		}
	}

	raw := []float64{
		math.Max(10, math.Min(100, amount/15)),
		30 + float64(hashBucket(NormalizeCategory(tx.MerchantCategory), 30)),
		20 + float64(hashBucket(NormalizeCategory(string(tx.Type)), 25)),
		15 + float64(hashBucket(NormalizeCategory(tx.Location), 20)),
		timeWeight,
		40 * probability,
	}

	total := floats.Sum(raw)
	out := make(map[string]float64, len(raw))
	for i, key := range importanceKeys {
		out[key] = math.Round(raw[i]/total*100*100) / 100
	}
	return out
}
