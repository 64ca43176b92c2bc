package ml

import "context"

// ScoringBackend is an opaque scoring model.
// Predict receives an [N, SequenceLength, FeatureCount] tensor and returns
// N fraud probabilities in [0,1].
type ScoringBackend interface {
	Load(ctx context.Context) error
	Ready() bool
	Predict(ctx context.Context, input SequenceTensor) ([]float64, error)
	Info() BackendInfo
}

// BackendInfo describes a backend's version, readiness and static input contract
type BackendInfo struct {
	Version        string `json:"model_version"`
	Ready          bool   `json:"model_loaded"`
	ModelType      string `json:"model_type"`
	InputShape     [3]int `json:"input_shape"` // batch dimension reported as -1
	SequenceLength int    `json:"sequence_length"`
	FeatureCount   int    `json:"feature_count"`
}
