package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// LinearBackend is a logistic model over the sequence window: each feature is
// averaged across time steps, combined linearly and squashed with a sigmoid.
type LinearBackend struct {
	modelPath string

	mu      sync.RWMutex
	version string
	weights []float64
	bias    float64
	loaded  bool
}

// linearModelFile is the on-disk model format
type linearModelFile struct {
	Version string    `json:"version"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// NewLinearBackend creates a backend that reads its weights from modelPath on Load.
// An empty modelPath loads the built-in weights.
func NewLinearBackend(modelPath, version string) *LinearBackend {
	return &LinearBackend{
		modelPath: modelPath,
		version:   version,
	}
}

// Load reads the model weights. Calling it again reloads them.
func (b *LinearBackend) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	model := linearModelFile{
		Weights: defaultModelWeights(),
		Bias:    defaultModelBias,
	}

	if b.modelPath != "" {
		data, err := os.ReadFile(b.modelPath)
		if err != nil {
			return fmt.Errorf("failed to read model file: %w", err)
		}
		if err := json.Unmarshal(data, &model); err != nil {
			return fmt.Errorf("failed to decode model file: %w", err)
		}
	}

	if len(model.Weights) != FeatureCount {
		return fmt.Errorf("model has %d weights, expected %d", len(model.Weights), FeatureCount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.weights = model.Weights
	b.bias = model.Bias
	if model.Version != "" {
		b.version = model.Version
	}
	b.loaded = true
	return nil
}

// Ready reports whether weights are loaded
func (b *LinearBackend) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded
}

// Predict scores every window in the tensor
func (b *LinearBackend) Predict(ctx context.Context, input SequenceTensor) ([]float64, error) {
	b.mu.RLock()
	weights, bias, loaded := b.weights, b.bias, b.loaded
	b.mu.RUnlock()

	if !loaded {
		return nil, errors.New("linear backend is not loaded")
	}
	if len(input.Data) != input.Batch*SequenceLength*FeatureCount {
		return nil, fmt.Errorf("tensor holds %d values, shape %v", len(input.Data), input.Shape())
	}

	out := make([]float64, input.Batch)
	mean := make([]float64, FeatureCount)
	for n := 0; n < input.Batch; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i := range mean {
			mean[i] = 0
		}
		for step := 0; step < SequenceLength; step++ {
			floats.Add(mean, input.Row(n, step))
		}
		floats.Scale(1.0/SequenceLength, mean)

		out[n] = sigmoid(floats.Dot(mean, weights) + bias)
	}
	return out, nil
}

// Info describes the backend
func (b *LinearBackend) Info() BackendInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BackendInfo{
		Version:        b.version,
		Ready:          b.loaded,
		ModelType:      "logistic-window",
		InputShape:     [3]int{-1, SequenceLength, FeatureCount},
		SequenceLength: SequenceLength,
		FeatureCount:   FeatureCount,
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

const defaultModelBias = -4.0

// defaultModelWeights returns weights for unscaled features, ordered as FeatureNames.
// These emphasize amount, velocity and night activity.
func defaultModelWeights() []float64 {
	return []float64{
		0.0002, // amount
		0.15,   // amount_log1p
		0.0,    // hour
		0.0,    // day
		0.0,    // month
		0.0,    // weekday
		0.1,    // is_weekend
		0.0,    // merchant_category_code - codes are arbitrary ids
		0.0,    // transaction_type_code
		0.0,    // device_type_code
		0.4,    // location_risk
		0.2,    // ip_risk
		0.3,    // card_risk
		1.2,    // velocity_proxy
		0.3,    // merchant_velocity_proxy
		1.0,    // amount_percentile_hint
		0.8,    // night_activity_hint
	}
}
