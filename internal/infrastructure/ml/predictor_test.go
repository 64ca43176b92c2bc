package ml

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraud-scoring-service/internal/domain/transaction"
)

func TestLinearBackendDefaultWeights(t *testing.T) {
	b := NewLinearBackend("", "v1.0")
	assert.False(t, b.Ready())

	_, err := b.Predict(context.Background(), SequenceTensor{Batch: 1, Data: make([]float64, SequenceLength*FeatureCount)})
	assert.Error(t, err, "predict before load")

	require.NoError(t, b.Load(context.Background()))
	assert.True(t, b.Ready())

	seq, err := BuildSequence(constVector(0), nil)
	require.NoError(t, err)
	probs, err := b.Predict(context.Background(), seq)
	require.NoError(t, err)
	require.Len(t, probs, 1)
	assert.InDelta(t, sigmoid(defaultModelBias), probs[0], 1e-9)

	info := b.Info()
	assert.Equal(t, "v1.0", info.Version)
	assert.True(t, info.Ready)
	assert.Equal(t, [3]int{-1, SequenceLength, FeatureCount}, info.InputShape)
}

func TestLinearBackendScoresBatchInOrder(t *testing.T) {
	b := NewLinearBackend("", "v1.0")
	require.NoError(t, b.Load(context.Background()))

	e := NewFeatureEngineer(FeatureConfig{}, nil)
	small := newTestTransaction()
	small.Amount = decimal.NewFromInt(5)
	small.TransactionDate = time.Date(2024, time.March, 13, 14, 0, 0, 0, time.UTC)
	large := newTestTransaction()
	large.Amount = decimal.NewFromInt(9000)

	var seqs []SequenceTensor
	for _, tx := range []*transaction.Transaction{small, large} {
		v, err := e.BuildFeatureVector(tx)
		require.NoError(t, err)
		seq, err := BuildSequence(v, nil)
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}

	probs, err := b.Predict(context.Background(), StackSequences(seqs))
	require.NoError(t, err)
	require.Len(t, probs, 2)
	for _, p := range probs {
		assert.True(t, p >= 0 && p <= 1)
	}
	assert.Less(t, probs[0], probs[1])
}

func TestLinearBackendLoadsModelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	weights := make([]float64, FeatureCount)
	writeJSON(t, path, map[string]any{"version": "v2.3", "weights": weights, "bias": 0})

	b := NewLinearBackend(path, "v1.0")
	require.NoError(t, b.Load(context.Background()))
	assert.Equal(t, "v2.3", b.Info().Version)

	seq, err := BuildSequence(constVector(7), nil)
	require.NoError(t, err)
	probs, err := b.Predict(context.Background(), seq)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, probs[0], 1e-9)
}

func TestLinearBackendRejectsBadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	writeJSON(t, path, map[string]any{"weights": []float64{1, 2}})

	b := NewLinearBackend(path, "v1.0")
	assert.Error(t, b.Load(context.Background()))
	assert.False(t, b.Ready())

	missing := NewLinearBackend(filepath.Join(t.TempDir(), "nope.json"), "v1.0")
	assert.Error(t, missing.Load(context.Background()))
}

func TestLinearBackendRejectsMisshapedTensor(t *testing.T) {
	b := NewLinearBackend("", "v1.0")
	require.NoError(t, b.Load(context.Background()))

	_, err := b.Predict(context.Background(), SequenceTensor{Batch: 2, Data: make([]float64, SequenceLength*FeatureCount)})
	assert.Error(t, err)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	backend := &fakeBackend{predictErr: errors.New("backend down")}
	b := NewBreakerBackend(backend, BreakerConfig{ConsecutiveFailures: 3, Timeout: time.Minute}, nil)

	seq, err := BuildSequence(constVector(0), nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := b.Predict(context.Background(), seq)
		assert.EqualError(t, err, "backend down")
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err = b.Predict(context.Background(), seq)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), backend.predictCalls.Load(), "open breaker must not reach the backend")
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	backend := &fakeBackend{predictErr: context.Canceled}
	b := NewBreakerBackend(backend, BreakerConfig{ConsecutiveFailures: 1}, nil)

	seq, err := BuildSequence(constVector(0), nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := b.Predict(context.Background(), seq)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerPassesThrough(t *testing.T) {
	backend := &fakeBackend{probability: 0.42, version: "v9"}
	b := NewBreakerBackend(backend, BreakerConfig{}, nil)

	require.NoError(t, b.Load(context.Background()))
	assert.True(t, b.Ready())
	assert.Equal(t, "v9", b.Info().Version)

	seq, err := BuildSequence(constVector(0), nil)
	require.NoError(t, err)
	probs, err := b.Predict(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.42}, probs)
}

func TestFeatureImportance(t *testing.T) {
	tx := newTestTransaction()

	for _, p := range []float64{0, 0.3, 0.99} {
		imp := FeatureImportance(tx, p)
		require.Len(t, imp, 6)

		sum := 0.0
		for _, key := range importanceKeys {
			v, ok := imp[key]
			require.True(t, ok, key)
			assert.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		assert.InDelta(t, 100.0, sum, 0.05)
	}

	// Model confidence share grows with probability
	assert.Greater(t, FeatureImportance(tx, 0.9)[ImportanceConfidence], FeatureImportance(tx, 0.1)[ImportanceConfidence])
	assert.Zero(t, FeatureImportance(tx, 0)[ImportanceConfidence])
}

func TestFeatureImportanceTimeOfDay(t *testing.T) {
	night := newTestTransaction()
	day := newTestTransaction()
	day.TransactionDate = day.TransactionDate.Add(10 * time.Hour)

	a := FeatureImportance(night, 0.5)
	b := FeatureImportance(day, 0.5)
	assert.Greater(t, a[ImportanceTimeOfDay], b[ImportanceTimeOfDay])
	assert.False(t, math.IsNaN(a[ImportanceAmount]))
}

func TestFeatureImportanceTreatsMissingFieldsAsUnknown(t *testing.T) {
	blank := newTestTransaction()
	blank.MerchantCategory = ""
	blank.Type = ""
	blank.Location = "  "

	unknown := newTestTransaction()
	unknown.MerchantCategory = "Unknown"
	unknown.Type = transaction.TransactionType("UNKNOWN")
	unknown.Location = "unknown"

	assert.Equal(t, FeatureImportance(unknown, 0.4), FeatureImportance(blank, 0.4))

	cased := newTestTransaction()
	cased.MerchantCategory = "  " + strings.ToUpper(cased.MerchantCategory)
	assert.Equal(t, FeatureImportance(newTestTransaction(), 0.4), FeatureImportance(cased, 0.4))
}
