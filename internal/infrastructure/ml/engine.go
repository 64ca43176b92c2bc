package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"fraud-scoring-service/internal/domain/fraud"
	"fraud-scoring-service/internal/domain/transaction"
	"fraud-scoring-service/internal/pkg/metrics"
	"fraud-scoring-service/internal/pkg/tracing"
)

// EngineConfig configures a PredictionEngine
type EngineConfig struct {
	ModelVersion     string
	CacheTTL         time.Duration
	InferenceTimeout time.Duration
	LoadTimeout      time.Duration
	Workers          int
	ChunkSize        int
	MaxBatchSize     int
}

func (c *EngineConfig) applyDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 300 * time.Second
	}
	if c.InferenceTimeout <= 0 {
		c.InferenceTimeout = 2 * time.Second
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 30 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 100
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 1000
	}
}

// ModelInfo describes the loaded model and the scoring contract around it
type ModelInfo struct {
	ModelVersion    string                `json:"model_version"`
	ModelLoaded     bool                  `json:"model_loaded"`
	Backend         BackendInfo           `json:"backend"`
	RiskThresholds  []fraud.RiskThreshold `json:"risk_thresholds"`
	CacheTTLSeconds int                   `json:"cache_ttl_seconds"`
	MaxBatchSize    int                   `json:"max_batch_size"`
	SequenceLength  int                   `json:"sequence_length"`
	FeatureCount    int                   `json:"feature_count"`
}

// PredictionEngine scores transactions. It owns the verdict cache, lazy
// backend loading, verdict derivation and the fail-open safe default.
type PredictionEngine struct {
	features *FeatureEngineer
	backend  ScoringBackend
	cache    fraud.CacheStore
	history  HistoryStore
	logger   *zap.Logger
	cfg      EngineConfig

	loadMu sync.Mutex
	loaded atomic.Bool
	// pendingLoad is the outcome of a Load still running after its caller
	// gave up; guarded by loadMu
	pendingLoad chan error

	inference *semaphore.Weighted
}

// NewPredictionEngine creates an engine. cache may be nil, which disables caching.
func NewPredictionEngine(features *FeatureEngineer, backend ScoringBackend, cache fraud.CacheStore, cfg EngineConfig, logger *zap.Logger) *PredictionEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	return &PredictionEngine{
		features:  features,
		backend:   backend,
		cache:     cache,
		logger:    logger,
		cfg:       cfg,
		inference: semaphore.NewWeighted(int64(cfg.Workers)),
	}
}

// SetHistoryStore enables per-card sequence history
func (e *PredictionEngine) SetHistoryStore(h HistoryStore) {
	e.history = h
}

// Ready reports whether the backend has been loaded and is serving
func (e *PredictionEngine) Ready() bool {
	return e.loaded.Load() && e.backend.Ready()
}

// Warmup loads the backend ahead of the first request
func (e *PredictionEngine) Warmup(ctx context.Context) error {
	return e.ensureLoaded(ctx)
}

// ensureLoaded loads the backend at most once per success. A failed load
// leaves the flag unset so the next call tries again. A load that outlives
// LoadTimeout keeps running and later callers wait on it instead of
// starting another.
func (e *PredictionEngine) ensureLoaded(ctx context.Context) error {
	if e.loaded.Load() {
		return nil
	}

	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	if e.loaded.Load() {
		return nil
	}

	if e.pendingLoad == nil {
		e.pendingLoad = e.startLoad(ctx)
	}

	timer := time.NewTimer(e.cfg.LoadTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-e.pendingLoad:
		e.pendingLoad = nil
	case <-timer.C:
		err = context.DeadlineExceeded
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		metrics.BackendLoadTotal.WithLabelValues("failure").Inc()
		e.logger.Error("failed to load scoring backend", zap.Error(err))
		return fmt.Errorf("%w: %v", fraud.ErrModelUnavailable, err)
	}

	e.loaded.Store(true)
	metrics.BackendLoadTotal.WithLabelValues("success").Inc()
	e.logger.Info("scoring backend loaded", zap.String("model_version", e.modelVersion()))
	return nil
}

// startLoad runs backend.Load detached from the caller's cancellation
func (e *PredictionEngine) startLoad(ctx context.Context) chan error {
	done := make(chan error, 1)
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.LoadTimeout)
	go func() {
		defer cancel()
		var err error
		if r := panics.Try(func() { err = e.backend.Load(loadCtx) }); r != nil {
			err = r.AsError()
		}
		done <- err
	}()
	return done
}

// PredictSingle scores one transaction. Scoring failures never surface as
// errors: they produce a degraded safe default. Only ErrModelUnavailable
// is returned.
func (e *PredictionEngine) PredictSingle(ctx context.Context, tx *transaction.Transaction) (_ *fraud.PredictionResult, retErr error) {
	ctx, span := tracing.StartSpan(ctx, "ml.PredictSingle", tracing.TransactionID(transactionID(tx).String()))
	defer func() { tracing.End(span, retErr) }()

	start := time.Now()
	defer func() {
		metrics.PredictionDuration.WithLabelValues("single").Observe(time.Since(start).Seconds())
	}()

	if tx != nil {
		if cached, ok := e.CachedResult(ctx, tx.ID); ok {
			return cached, nil
		}
	}

	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	result := e.scoreOne(ctx, tx, start)
	e.record(result)
	if !result.IsDegraded() {
		e.CacheResult(ctx, result)
	}
	return result, nil
}

// PredictBatch scores transactions in chunks. Each chunk makes one backend
// call for its uncached items; if that call fails, each of those items gets a
// safe default. Output order matches input.
func (e *PredictionEngine) PredictBatch(ctx context.Context, txs []*transaction.Transaction) (_ []*fraud.PredictionResult, retErr error) {
	ctx, span := tracing.StartSpan(ctx, "ml.PredictBatch", tracing.BatchSize(len(txs)))
	defer func() { tracing.End(span, retErr) }()

	start := time.Now()
	defer func() {
		metrics.PredictionDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())
	}()

	out := make([]*fraud.PredictionResult, len(txs))
	if len(txs) == 0 {
		return out, nil
	}

	p := pool.New().WithMaxGoroutines(e.cfg.Workers).WithErrors().WithFirstError()
	for lo := 0; lo < len(txs); lo += e.cfg.ChunkSize {
		hi := min(lo+e.cfg.ChunkSize, len(txs))
		p.Go(func() error {
			return e.predictChunk(ctx, txs[lo:hi], out[lo:hi])
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// predictChunk fills out for one chunk. Items report the chunk's elapsed time.
func (e *PredictionEngine) predictChunk(ctx context.Context, txs []*transaction.Transaction, out []*fraud.PredictionResult) error {
	start := time.Now()

	pending := make([]int, 0, len(txs))
	for i, tx := range txs {
		if tx != nil {
			if cached, ok := e.CachedResult(ctx, tx.ID); ok {
				out[i] = cached
				continue
			}
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return nil
	}

	if err := e.ensureLoaded(ctx); err != nil {
		return err
	}

	stacked := make([]int, 0, len(pending))
	seqs := make([]SequenceTensor, 0, len(pending))
	vectors := make([]FeatureVector, 0, len(pending))
	for _, i := range pending {
		seq, vector, err := e.prepare(ctx, txs[i])
		if err != nil {
			out[i] = e.safeDefault(transactionID(txs[i]), start, prepareFailureReason(err), err)
			e.record(out[i])
			continue
		}
		stacked = append(stacked, i)
		seqs = append(seqs, seq)
		vectors = append(vectors, vector)
	}
	if len(stacked) == 0 {
		return nil
	}

	probs, err := e.infer(ctx, StackSequences(seqs))
	elapsed := time.Since(start)
	for k, i := range stacked {
		tx := txs[i]
		if err != nil {
			out[i] = e.safeDefault(tx.ID, start, "inference failed", err)
		} else {
			out[i] = fraud.NewScoredResult(tx.ID, probs[k], e.modelVersion(), FeatureImportance(tx, probs[k]), elapsed)
			e.CacheResult(ctx, out[i])
			e.appendHistory(ctx, tx, vectors[k])
		}
		e.record(out[i])
	}
	return nil
}

// scoreOne runs the full single-item pipeline, converting any failure or
// panic into a safe default.
func (e *PredictionEngine) scoreOne(ctx context.Context, tx *transaction.Transaction, start time.Time) *fraud.PredictionResult {
	var result *fraud.PredictionResult
	recovered := panics.Try(func() {
		seq, vector, err := e.prepare(ctx, tx)
		if err != nil {
			result = e.safeDefault(transactionID(tx), start, prepareFailureReason(err), err)
			return
		}

		probs, err := e.infer(ctx, seq)
		if err != nil {
			result = e.safeDefault(tx.ID, start, "inference failed", err)
			return
		}

		p := probs[0]
		result = fraud.NewScoredResult(tx.ID, p, e.modelVersion(), FeatureImportance(tx, p), time.Since(start))
		e.appendHistory(ctx, tx, vector)
	})
	if recovered != nil {
		return e.safeDefault(transactionID(tx), start, "scoring panicked", recovered.AsError())
	}
	return result
}

// prepare builds the feature vector and its sequence window
func (e *PredictionEngine) prepare(ctx context.Context, tx *transaction.Transaction) (SequenceTensor, FeatureVector, error) {
	var (
		seq    SequenceTensor
		vector FeatureVector
		err    error
	)
	if tx != nil {
		if verr := tx.Validate(); verr != nil {
			return SequenceTensor{}, nil, invalidTransactionError{verr}
		}
	}

	recovered := panics.Try(func() {
		vector, err = e.features.BuildFeatureVector(tx)
		if err != nil {
			return
		}
		seq, err = e.features.BuildSequence(vector, e.recentHistory(ctx, tx))
	})
	if recovered != nil {
		return SequenceTensor{}, nil, recovered.AsError()
	}
	return seq, vector, err
}

// infer runs one backend call on the worker pool, bounded by the inference timeout
func (e *PredictionEngine) infer(ctx context.Context, input SequenceTensor) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.InferenceTimeout)
	defer cancel()

	if err := e.inference.Acquire(ctx, 1); err != nil {
		return nil, e.timeoutErr(err)
	}

	// The slot is released when the backend returns, not when we stop waiting,
	// so a hung backend keeps holding it.
	probs, err := runGuarded(ctx, func(ctx context.Context) ([]float64, error) {
		defer e.inference.Release(1)
		return e.backend.Predict(ctx, input)
	})
	if err != nil {
		return nil, e.timeoutErr(err)
	}

	if len(probs) != input.Batch {
		return nil, fmt.Errorf("%w: got %d outputs for %d inputs", fraud.ErrInvalidProbability, len(probs), input.Batch)
	}
	for i, p := range probs {
		if !fraud.ValidProbability(p) {
			return nil, fmt.Errorf("%w: output %d is %v", fraud.ErrInvalidProbability, i, p)
		}
	}
	return probs, nil
}

func (e *PredictionEngine) timeoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", fraud.ErrInferenceTimeout, e.cfg.InferenceTimeout)
	}
	return err
}

// invalidTransactionError marks a record rejected before feature building
type invalidTransactionError struct{ err error }

func (e invalidTransactionError) Error() string { return e.err.Error() }
func (e invalidTransactionError) Unwrap() error { return e.err }

func prepareFailureReason(err error) string {
	var invalid invalidTransactionError
	if errors.As(err, &invalid) {
		return "invalid transaction"
	}
	return "feature build failed"
}

func (e *PredictionEngine) safeDefault(txID uuid.UUID, start time.Time, reason string, err error) *fraud.PredictionResult {
	e.logger.Warn("scoring degraded to safe default",
		zap.String("transaction_id", txID.String()),
		zap.String("reason", reason),
		zap.Error(err))
	return fraud.NewSafeDefault(txID, e.modelVersion(), time.Since(start), fmt.Sprintf("%s: %v", reason, err))
}

func (e *PredictionEngine) record(r *fraud.PredictionResult) {
	metrics.PredictionsTotal.WithLabelValues(string(r.Status), string(r.RiskLevel)).Inc()
}

func (e *PredictionEngine) modelVersion() string {
	if v := e.backend.Info().Version; v != "" {
		return v
	}
	return e.cfg.ModelVersion
}

// CacheKey is the verdict cache key for a transaction
func CacheKey(txID uuid.UUID) string {
	return "prediction:" + txID.String()
}

// CachedResult returns a cached verdict. Cache errors and undecodable
// entries count as misses.
func (e *PredictionEngine) CachedResult(ctx context.Context, txID uuid.UUID) (*fraud.PredictionResult, bool) {
	if e.cache == nil || txID == uuid.Nil {
		return nil, false
	}

	data, err := e.cache.Get(ctx, CacheKey(txID))
	if err != nil {
		if errors.Is(err, fraud.ErrCacheMiss) {
			metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
		} else {
			metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
			e.logger.Warn("prediction cache read failed", zap.String("transaction_id", txID.String()), zap.Error(err))
		}
		return nil, false
	}

	var result fraud.PredictionResult
	if err := json.Unmarshal(data, &result); err != nil || !result.RiskLevel.IsValid() || !fraud.ValidProbability(result.FraudProbability) {
		metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
		e.logger.Warn("discarding unreadable cached prediction", zap.String("transaction_id", txID.String()))
		return nil, false
	}

	metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
	return &result, true
}

// CacheResult stores a scored verdict for the cache TTL. Degraded results
// are never stored. Failures are logged and ignored.
func (e *PredictionEngine) CacheResult(ctx context.Context, result *fraud.PredictionResult) {
	if e.cache == nil || result == nil || result.IsDegraded() {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		e.logger.Warn("failed to encode prediction for cache", zap.Error(err))
		return
	}
	if err := e.cache.Set(ctx, CacheKey(result.TransactionID), data, e.cfg.CacheTTL); err != nil {
		e.logger.Warn("prediction cache write failed",
			zap.String("transaction_id", result.TransactionID.String()), zap.Error(err))
	}
}

func (e *PredictionEngine) recentHistory(ctx context.Context, tx *transaction.Transaction) []FeatureVector {
	if e.history == nil || tx == nil || tx.CardID == uuid.Nil {
		return nil
	}
	history, err := e.history.Recent(ctx, tx.CardID)
	if err != nil {
		e.logger.Warn("card history unavailable, using cold-start window",
			zap.String("card_id", tx.CardID.String()), zap.Error(err))
		return nil
	}
	return history
}

func (e *PredictionEngine) appendHistory(ctx context.Context, tx *transaction.Transaction, vector FeatureVector) {
	if e.history == nil || tx.CardID == uuid.Nil {
		return
	}
	at := tx.TransactionDate
	if at.IsZero() {
		at = time.Now()
	}
	if err := e.history.Append(ctx, tx.CardID, at, vector); err != nil {
		e.logger.Warn("failed to append card history",
			zap.String("card_id", tx.CardID.String()), zap.Error(err))
	}
}

// ModelInfo loads the backend if needed and describes it
func (e *PredictionEngine) ModelInfo(ctx context.Context) (*ModelInfo, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	backend := e.backend.Info()
	return &ModelInfo{
		ModelVersion:    e.modelVersion(),
		ModelLoaded:     e.Ready(),
		Backend:         backend,
		RiskThresholds:  fraud.RiskThresholds(),
		CacheTTLSeconds: int(e.cfg.CacheTTL / time.Second),
		MaxBatchSize:    e.cfg.MaxBatchSize,
		SequenceLength:  SequenceLength,
		FeatureCount:    FeatureCount,
	}, nil
}

func transactionID(tx *transaction.Transaction) uuid.UUID {
	if tx == nil {
		return uuid.Nil
	}
	return tx.ID
}

type guardedResult[T any] struct {
	value T
	err   error
}

// runGuarded runs fn on its own goroutine and stops waiting when ctx is done.
// A panic in fn is returned as an error.
func runGuarded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	done := make(chan guardedResult[T], 1)
	go func() {
		var res guardedResult[T]
		if r := panics.Try(func() { res.value, res.err = fn(ctx) }); r != nil {
			res.err = r.AsError()
		}
		done <- res
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
