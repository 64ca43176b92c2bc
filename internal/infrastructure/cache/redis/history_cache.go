package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fraud-scoring-service/internal/infrastructure/ml"
)

// HistoryCache keeps the newest feature vectors per card in a sorted set
// scored by transaction time.
type HistoryCache struct {
	client *Client
	size   int
	ttl    time.Duration
}

// NewHistoryCache creates a history cache holding at most size vectors per card.
// Idle cards expire after ttl.
func NewHistoryCache(client *Client, size int, ttl time.Duration) *HistoryCache {
	if size <= 0 {
		size = ml.SequenceLength - 1
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &HistoryCache{client: client, size: size, ttl: ttl}
}

func historyKey(cardID uuid.UUID) string {
	return fmt.Sprintf("history:card:%s", cardID.String())
}

// Append records a vector and trims the set to the newest entries
func (c *HistoryCache) Append(ctx context.Context, cardID uuid.UUID, at time.Time, vector ml.FeatureVector) error {
	encoded, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to encode feature vector: %w", err)
	}

	key := historyKey(cardID)
	// Members carry their timestamp so equal vectors stay distinct
	member := strconv.FormatInt(at.UnixNano(), 10) + "|" + string(encoded)

	_, err = c.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixNano()), Member: member})
		pipe.ZRemRangeByRank(ctx, key, 0, int64(-c.size-1))
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record card history: %w", err)
	}
	return nil
}

// Recent returns the stored vectors, oldest first. Unreadable members are skipped.
func (c *HistoryCache) Recent(ctx context.Context, cardID uuid.UUID) ([]ml.FeatureVector, error) {
	members, err := c.client.rdb.ZRange(ctx, historyKey(cardID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read card history: %w", err)
	}

	out := make([]ml.FeatureVector, 0, len(members))
	for _, m := range members {
		_, encoded, ok := strings.Cut(m, "|")
		if !ok {
			continue
		}
		var v ml.FeatureVector
		if err := json.Unmarshal([]byte(encoded), &v); err != nil || len(v) != ml.FeatureCount {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
