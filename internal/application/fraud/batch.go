package fraud

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"fraud-scoring-service/internal/domain/fraud"
	"fraud-scoring-service/internal/domain/transaction"
	"fraud-scoring-service/internal/pkg/metrics"
	"fraud-scoring-service/internal/pkg/tracing"
)

// ScoreBatch scores the transactions among txIDs that userID owns, in
// request order. Unknown or foreign ids are skipped.
//
// Each item is persisted on its own, so one failing item does not affect the
// rest. Rounds that completed stay committed if ctx is cancelled or the model
// becomes unavailable; the items finished so far are returned with the error.
func (s *PredictionService) ScoreBatch(ctx context.Context, txIDs []uuid.UUID, userID uuid.UUID) (_ []BatchItem, retErr error) {
	ctx, span := tracing.StartSpan(ctx, "fraud.ScoreBatch",
		tracing.UserID(userID.String()), tracing.BatchSize(len(txIDs)))
	defer func() { tracing.End(span, retErr) }()

	items := make([]BatchItem, 0, len(txIDs))
	for lo := 0; lo < len(txIDs); lo += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		hi := min(lo+s.cfg.BatchSize, len(txIDs))
		chunk, err := s.scoreChunk(ctx, txIDs[lo:hi], userID)
		items = append(items, chunk...)
		if err != nil {
			return items, err
		}
	}
	return items, nil
}

func (s *PredictionService) scoreChunk(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]BatchItem, error) {
	found, err := s.repos.Transactions.ListForUser(ctx, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	txs := inRequestOrder(ids, found)
	if len(txs) == 0 {
		return nil, nil
	}

	results, err := s.scorer.PredictBatch(ctx, txs)
	if err != nil {
		return nil, err
	}

	items := make([]BatchItem, 0, len(txs))
	for i, tx := range txs {
		items = append(items, s.persistItem(ctx, tx, results[i]))
	}
	return items, nil
}

func (s *PredictionService) persistItem(ctx context.Context, tx *transaction.Transaction, result *fraud.PredictionResult) BatchItem {
	item := BatchItem{TransactionID: tx.ID, Result: result}

	var outcome *ScoreOutcome
	var err error
	if r := panics.Try(func() { outcome, err = s.persist(ctx, tx, result) }); r != nil {
		err = r.AsError()
	}
	if err != nil {
		metrics.BatchItemsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("failed to persist batch item",
			zap.String("transaction_id", tx.ID.String()), zap.Error(err))
		item.Err = err
		return item
	}

	s.afterCommit(ctx, outcome)
	metrics.BatchItemsTotal.WithLabelValues("persisted").Inc()
	item.Result = outcome.Result
	item.Prediction = outcome.Prediction
	item.Alert = outcome.Alert
	return item
}

// inRequestOrder orders found transactions as ids lists them, dropping
// missing ids and repeats
func inRequestOrder(ids []uuid.UUID, found []*transaction.Transaction) []*transaction.Transaction {
	byID := make(map[uuid.UUID]*transaction.Transaction, len(found))
	for _, tx := range found {
		byID[tx.ID] = tx
	}

	out := make([]*transaction.Transaction, 0, len(found))
	for _, id := range ids {
		if tx, ok := byID[id]; ok {
			out = append(out, tx)
			delete(byID, id)
		}
	}
	return out
}
