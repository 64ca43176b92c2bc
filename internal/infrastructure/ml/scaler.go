package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Scaler applies persisted standardization parameters: (x - mean) / scale
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// LoadScaler reads scaling parameters from a JSON file
func LoadScaler(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scaler: %w", err)
	}

	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode scaler: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scaler) validate() error {
	if len(s.Mean) != FeatureCount || len(s.Scale) != FeatureCount {
		return fmt.Errorf("scaler expects %d features, has mean=%d scale=%d",
			FeatureCount, len(s.Mean), len(s.Scale))
	}
	return nil
}

// Transform returns a scaled copy of v. The input is never modified.
func (s *Scaler) Transform(v FeatureVector) (FeatureVector, error) {
	if len(v) != len(s.Mean) || len(v) != len(s.Scale) {
		return nil, fmt.Errorf("scaler shape mismatch: vector has %d features, scaler %d/%d",
			len(v), len(s.Mean), len(s.Scale))
	}

	out := make(FeatureVector, len(v))
	for i, x := range v {
		if s.Scale[i] == 0 {
			return nil, errors.New("scaler has zero scale")
		}
		y := (x - s.Mean[i]) / s.Scale[i]
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, fmt.Errorf("scaler produced non-finite value for feature %d", i)
		}
		out[i] = y
	}
	return out, nil
}
