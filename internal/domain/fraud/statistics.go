package fraud

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Statistics summarizes a user's predictions over a period
type Statistics struct {
	PeriodDays          int               `json:"period_days"`
	TotalPredictions    int               `json:"total_predictions"`
	FraudPredictions    int               `json:"fraud_predictions"`
	FraudRate           float64           `json:"fraud_rate"`
	HighRiskPredictions int               `json:"high_risk_predictions"`
	HighRiskRate        float64           `json:"high_risk_rate"`
	RiskLevelBreakdown  map[RiskLevel]int `json:"risk_level_breakdown"`
	AverageConfidence   float64           `json:"average_confidence"`
	StartDate           time.Time         `json:"start_date"`
	EndDate             time.Time         `json:"end_date"`
}

// ComputeStatistics aggregates predictions created in [start, end]
func ComputeStatistics(predictions []*Prediction, days int, start, end time.Time) *Statistics {
	s := &Statistics{
		PeriodDays:         days,
		TotalPredictions:   len(predictions),
		RiskLevelBreakdown: make(map[RiskLevel]int),
		StartDate:          start,
		EndDate:            end,
	}
	if len(predictions) == 0 {
		return s
	}

	confidences := make([]float64, 0, len(predictions))
	for _, p := range predictions {
		if p.PredictionClass {
			s.FraudPredictions++
		}
		if p.RiskLevel == RiskLevelHigh || p.RiskLevel == RiskLevelCritical {
			s.HighRiskPredictions++
		}

		level := p.RiskLevel
		if level == "" {
			level = "unknown"
		}
		s.RiskLevelBreakdown[level]++
		confidences = append(confidences, p.Confidence)
	}

	total := float64(s.TotalPredictions)
	s.FraudRate = float64(s.FraudPredictions) / total
	s.HighRiskRate = float64(s.HighRiskPredictions) / total
	s.AverageConfidence = stat.Mean(confidences, nil)
	return s
}
