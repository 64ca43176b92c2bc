package ml

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"fraud-scoring-service/internal/pkg/metrics"
)

// BreakerConfig configures the circuit breaker around a scoring backend
type BreakerConfig struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// BreakerBackend wraps a ScoringBackend so that repeated inference failures
// open the circuit and later calls fail fast until the backend recovers.
type BreakerBackend struct {
	next ScoringBackend
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerBackend decorates next with a circuit breaker
func NewBreakerBackend(next ScoringBackend, cfg BreakerConfig, logger *zap.Logger) *BreakerBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "scoring-backend"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	threshold := cfg.ConsecutiveFailures

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.Set(breakerStateValue(to))
			logger.Warn("scoring backend breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// A caller giving up is not a backend fault
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &BreakerBackend{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// Load passes through; load failures are reported by the engine, not the breaker
func (b *BreakerBackend) Load(ctx context.Context) error {
	return b.next.Load(ctx)
}

// Ready reports the wrapped backend's readiness
func (b *BreakerBackend) Ready() bool {
	return b.next.Ready()
}

// Predict runs inference through the breaker
func (b *BreakerBackend) Predict(ctx context.Context, input SequenceTensor) ([]float64, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Predict(ctx, input)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("scoring backend breaker %s: %w", b.cb.State(), err)
		}
		return nil, err
	}
	return out.([]float64), nil
}

// Info reports the wrapped backend's info
func (b *BreakerBackend) Info() BackendInfo {
	return b.next.Info()
}

// State exposes the current breaker state
func (b *BreakerBackend) State() gobreaker.State {
	return b.cb.State()
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
