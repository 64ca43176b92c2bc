package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()

	// Set defaults from DefaultConfig
	setDefaults(v, cfg)

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Config file not found is ok - we use defaults and env vars
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Read from environment variables, e.g. FRAUD_ML_MODEL_PATH
	v.SetEnvPrefix("FRAUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal into config struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, cfg *Config) {
	// Server defaults
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	// Database defaults
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.name", cfg.Database.Name)
	v.SetDefault("database.ssl_mode", cfg.Database.SSLMode)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)

	// Redis defaults
	v.SetDefault("redis.host", cfg.Redis.Host)
	v.SetDefault("redis.port", cfg.Redis.Port)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.pool_size", cfg.Redis.PoolSize)
	v.SetDefault("redis.read_timeout", cfg.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", cfg.Redis.WriteTimeout)

	// Kafka defaults
	v.SetDefault("kafka.enabled", cfg.Kafka.Enabled)
	v.SetDefault("kafka.brokers", cfg.Kafka.Brokers)
	v.SetDefault("kafka.fraud_alerts_topic", cfg.Kafka.FraudAlertsTopic)
	v.SetDefault("kafka.write_timeout", cfg.Kafka.WriteTimeout)

	// ML defaults
	v.SetDefault("ml.model_path", cfg.ML.ModelPath)
	v.SetDefault("ml.scaler_path", cfg.ML.ScalerPath)
	v.SetDefault("ml.model_version", cfg.ML.ModelVersion)
	v.SetDefault("ml.cache_ttl", cfg.ML.CacheTTL)
	v.SetDefault("ml.inference_timeout", cfg.ML.InferenceTimeout)
	v.SetDefault("ml.load_timeout", cfg.ML.LoadTimeout)
	v.SetDefault("ml.inference_workers", cfg.ML.InferenceWorkers)
	v.SetDefault("ml.batch_chunk_size", cfg.ML.BatchChunkSize)
	v.SetDefault("ml.card_history_enabled", cfg.ML.CardHistoryEnabled)
	v.SetDefault("ml.card_history_size", cfg.ML.CardHistorySize)
	v.SetDefault("ml.card_history_ttl", cfg.ML.CardHistoryTTL)

	// Scoring defaults
	v.SetDefault("scoring.batch_size", cfg.Scoring.BatchSize)
	v.SetDefault("scoring.max_batch_size", cfg.Scoring.MaxBatchSize)

	// Breaker defaults
	v.SetDefault("breaker.enabled", cfg.Breaker.Enabled)
	v.SetDefault("breaker.max_requests", cfg.Breaker.MaxRequests)
	v.SetDefault("breaker.interval", cfg.Breaker.Interval)
	v.SetDefault("breaker.timeout", cfg.Breaker.Timeout)
	v.SetDefault("breaker.consecutive_failures", cfg.Breaker.ConsecutiveFailures)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", cfg.RateLimit.Enabled)
	v.SetDefault("rate_limit.per_minute", cfg.RateLimit.PerMinute)

	// Metrics and logging
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", cfg.Tracing.SampleRatio)
	v.SetDefault("tracing.otlp_endpoint", cfg.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.insecure", cfg.Tracing.Insecure)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}
