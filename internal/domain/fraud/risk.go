package fraud

import "math"

// RiskLevel represents the severity of fraud risk
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// IsValid reports whether the level is a known tier
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical:
		return true
	}
	return false
}

// FraudDecisionThreshold is the probability at or above which a transaction is flagged
const FraudDecisionThreshold = 0.5

// RiskThreshold is an upper bound (exclusive) for a tier
type RiskThreshold struct {
	Level RiskLevel `json:"level"`
	Upper float64   `json:"upper"`
}

// riskThresholds are evaluated in order; the first tier whose bound the
// probability is strictly below wins. Anything at or above the last bound is critical.
var riskThresholds = []RiskThreshold{
	{Level: RiskLevelLow, Upper: 0.30},
	{Level: RiskLevelMedium, Upper: 0.60},
	{Level: RiskLevelHigh, Upper: 0.85},
}

// RiskThresholds returns a copy of the ordered tier bounds
func RiskThresholds() []RiskThreshold {
	out := make([]RiskThreshold, len(riskThresholds))
	copy(out, riskThresholds)
	return out
}

// RiskLevelFromProbability maps a fraud probability onto a tier.
// 0.30 maps to medium, not low.
func RiskLevelFromProbability(p float64) RiskLevel {
	for _, t := range riskThresholds {
		if p < t.Upper {
			return t.Level
		}
	}
	return RiskLevelCritical
}

// ConfidenceFromProbability is maximal at 0 and 1 and zero at 0.5
func ConfidenceFromProbability(p float64) float64 {
	c := 2 * math.Abs(p-0.5)
	return math.Max(0, math.Min(1, c))
}

// ValidProbability reports whether p is a finite value in [0,1]
func ValidProbability(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}
