package ml

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fraud-scoring-service/internal/domain/transaction"
)

const (
	// FeatureCount is the width of a feature vector and of every sequence row
	FeatureCount = 17
	// SequenceLength is the number of time steps the model sees per transaction
	SequenceLength = 10
)

// FeatureNames documents the fixed column order of a FeatureVector
var FeatureNames = [FeatureCount]string{
	"amount",
	"amount_log1p",
	"hour",
	"day",
	"month",
	"weekday",
	"is_weekend",
	"merchant_category_code",
	"transaction_type_code",
	"device_type_code",
	"location_risk",
	"ip_risk",
	"card_risk",
	"velocity_proxy",
	"merchant_velocity_proxy",
	"amount_percentile_hint",
	"night_activity_hint",
}

// FeatureVector is one transaction's model input row, ordered as FeatureNames
type FeatureVector []float64

// FeatureConfig configures a FeatureEngineer
type FeatureConfig struct {
	// ScalerPath points at persisted scaling parameters; empty disables scaling
	ScalerPath string
	// Scaler takes precedence over ScalerPath when set
	Scaler *Scaler

	// Codebooks may be injected to share or pre-seed vocabularies
	Categories       *Codebook
	TransactionTypes *Codebook
	DeviceTypes      *Codebook
}

// FeatureEngineer turns transactions into model-ready features.
// Output is deterministic for a given codebook state.
type FeatureEngineer struct {
	categories  *Codebook
	txTypes     *Codebook
	deviceTypes *Codebook
	scaler      *Scaler
	logger      *zap.Logger
}

// NewFeatureEngineer creates a feature engineer. A scaler that fails to
// load is logged and skipped; features are then used unscaled.
func NewFeatureEngineer(cfg FeatureConfig, logger *zap.Logger) *FeatureEngineer {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &FeatureEngineer{
		categories:  cfg.Categories,
		txTypes:     cfg.TransactionTypes,
		deviceTypes: cfg.DeviceTypes,
		scaler:      cfg.Scaler,
		logger:      logger,
	}
	if e.categories == nil {
		e.categories = NewCodebook()
	}
	if e.txTypes == nil {
		e.txTypes = NewCodebook()
	}
	if e.deviceTypes == nil {
		e.deviceTypes = NewCodebook()
	}

	if e.scaler == nil && cfg.ScalerPath != "" {
		scaler, err := LoadScaler(cfg.ScalerPath)
		if err != nil {
			logger.Warn("scaler unavailable, using unscaled features",
				zap.String("path", cfg.ScalerPath), zap.Error(err))
		} else {
			e.scaler = scaler
		}
	}

	return e
}

// BuildFeatureVector extracts the 17 model features from a transaction
func (e *FeatureEngineer) BuildFeatureVector(tx *transaction.Transaction) (FeatureVector, error) {
	if tx == nil {
		return nil, errors.New("nil transaction")
	}

	amount := tx.Amount.InexactFloat64()
	cardID := ""
	if tx.CardID != uuid.Nil {
		cardID = tx.CardID.String()
	}

	// Time features; a missing timestamp leaves them at zero
	var hour, day, month, weekday, weekend, night float64
	if !tx.TransactionDate.IsZero() {
		ts := tx.TransactionDate
		hour = float64(ts.Hour())
		day = float64(ts.Day())
		month = float64(ts.Month())
		wd := mondayFirstWeekday(ts)
		weekday = float64(wd)
		if wd >= 5 {
			weekend = 1.0
		}
		if ts.Hour() < 6 || ts.Hour() > 22 {
			night = 1.0
		}
	}

	vector := FeatureVector{
		amount,
		math.Log1p(amount),
		hour,
		day,
		month,
		weekday,
		weekend,
		float64(e.categories.Encode(tx.MerchantCategory)),
		float64(e.txTypes.Encode(string(tx.Type))),
		float64(e.deviceTypes.Encode(deviceType(tx.DeviceInfo))),
		hashRisk(strings.ToLower(tx.Location)),
		ipRisk(tx.IPAddress),
		hashRisk(cardID),
		velocityProxy(amount, cardID),
		hashRisk(strings.ToLower(tx.MerchantName)),
		amountPercentileHint(amount),
		night,
	}

	if e.scaler != nil {
		scaled, err := e.scaler.Transform(vector)
		if err != nil {
			e.logger.Warn("feature scaling failed, using unscaled vector",
				zap.String("transaction_id", tx.ID.String()), zap.Error(err))
			return vector, nil
		}
		return scaled, nil
	}

	return vector, nil
}

// mondayFirstWeekday maps time.Weekday (Sunday=0) onto Monday=0 .. Sunday=6
func mondayFirstWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// deviceType reads the device type from an opaque device-info blob
func deviceType(info map[string]any) string {
	if info == nil {
		return UnknownCategory
	}
	for _, key := range []string{"device_type", "type"} {
		if v, ok := info[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.ToLower(v)
		}
	}
	return UnknownCategory
}

// The proxies below are coarse stand-ins: a stable hash of the raw string
// reduced to [0,1). They carry no learned similarity.

func hashBucket(s string, buckets uint64) uint64 {
	return xxhash.Sum64String(s) % buckets
}

func hashRisk(s string) float64 {
	if s == "" {
		return 0.0
	}
	return float64(hashBucket(s, 100)) / 100
}

// ipRisk sums the IPv4 octets; anything that is not dotted decimal scores zero
func ipRisk(ip string) float64 {
	if ip == "" {
		return 0.0
	}
	sum := 0
	for _, part := range strings.Split(ip, ".") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0.0
		}
		sum += n
	}
	return float64(sum%100) / 100
}

func velocityProxy(amount float64, cardID string) float64 {
	base := amount / 1000.0
	if cardID != "" {
		base += float64(hashBucket(cardID, 5)) / 10.0
	}
	return math.Min(base, 1.0)
}

func amountPercentileHint(amount float64) float64 {
	return 1.0 / (1.0 + math.Exp(-amount/500))
}
