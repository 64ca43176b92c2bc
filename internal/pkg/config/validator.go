package config

import (
	"errors"
)

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	if c.ML.ModelVersion == "" {
		return errors.New("ml.model_version is required")
	}

	if c.ML.CacheTTL <= 0 {
		return errors.New("ml.cache_ttl must be positive")
	}

	if c.ML.InferenceTimeout <= 0 {
		return errors.New("ml.inference_timeout must be positive")
	}

	if c.ML.LoadTimeout <= 0 {
		return errors.New("ml.load_timeout must be positive")
	}

	if c.ML.InferenceWorkers <= 0 {
		return errors.New("ml.inference_workers must be at least 1")
	}

	if c.ML.BatchChunkSize <= 0 {
		return errors.New("ml.batch_chunk_size must be at least 1")
	}

	if c.ML.CardHistoryEnabled && c.ML.CardHistorySize <= 0 {
		return errors.New("ml.card_history_size must be at least 1 when card history is enabled")
	}

	if c.Scoring.BatchSize <= 0 {
		return errors.New("scoring.batch_size must be at least 1")
	}

	// A request may span several service batches but never fewer than one
	if c.Scoring.MaxBatchSize < c.Scoring.BatchSize {
		return errors.New("scoring.max_batch_size should not be less than scoring.batch_size")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}

	if c.RateLimit.Enabled && c.RateLimit.PerMinute <= 0 {
		return errors.New("rate_limit.per_minute must be positive when rate limiting is enabled")
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return errors.New("tracing.sample_ratio must be between 0 and 1")
	}

	switch c.Log.Format {
	case "json", "console", "text":
	default:
		return errors.New("log.format must be json, console or text")
	}

	return nil
}
