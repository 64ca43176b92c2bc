package config

import (
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	ML        MLConfig        `mapstructure:"ml"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig holds Kafka configuration for alert notifications
type KafkaConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Brokers          []string      `mapstructure:"brokers"`
	FraudAlertsTopic string        `mapstructure:"fraud_alerts_topic"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
}

// MLConfig holds scoring model configuration
type MLConfig struct {
	ModelPath    string `mapstructure:"model_path"`
	ScalerPath   string `mapstructure:"scaler_path"`
	ModelVersion string `mapstructure:"model_version"`

	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	InferenceTimeout time.Duration `mapstructure:"inference_timeout"`
	LoadTimeout      time.Duration `mapstructure:"load_timeout"`
	InferenceWorkers int           `mapstructure:"inference_workers"`
	BatchChunkSize   int           `mapstructure:"batch_chunk_size"`

	// Card history feeds previous feature vectors into the sequence window
	CardHistoryEnabled bool          `mapstructure:"card_history_enabled"`
	CardHistorySize    int           `mapstructure:"card_history_size"`
	CardHistoryTTL     time.Duration `mapstructure:"card_history_ttl"`
}

// ScoringConfig holds prediction service configuration
type ScoringConfig struct {
	BatchSize    int `mapstructure:"batch_size"`
	MaxBatchSize int `mapstructure:"max_batch_size"`
}

// BreakerConfig holds circuit breaker settings for the scoring backend
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// RateLimitConfig holds per-user request limits for scoring endpoints
type RateLimitConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	PerMinute int  `mapstructure:"per_minute"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"` // OTLP/gRPC collector; empty keeps tracing off
	Insecure     bool    `mapstructure:"insecure"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "fraud_user",
			Password:        "",
			Name:            "fraud_detection",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			Password:     "",
			DB:           0,
			PoolSize:     10,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled:          false,
			Brokers:          []string{"localhost:9092"},
			FraudAlertsTopic: "fraud-alerts",
			WriteTimeout:     5 * time.Second,
		},
		ML: MLConfig{
			ModelPath:          "",
			ScalerPath:         "",
			ModelVersion:       "v1.0",
			CacheTTL:           300 * time.Second,
			InferenceTimeout:   2 * time.Second,
			LoadTimeout:        30 * time.Second,
			InferenceWorkers:   4,
			BatchChunkSize:     100,
			CardHistoryEnabled: false,
			CardHistorySize:    9,
			CardHistoryTTL:     7 * 24 * time.Hour,
		},
		Scoring: ScoringConfig{
			BatchSize:    50,
			MaxBatchSize: 1000,
		},
		Breaker: BreakerConfig{
			Enabled:             true,
			MaxRequests:         1,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		},
		RateLimit: RateLimitConfig{
			Enabled:   false,
			PerMinute: 600,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ServiceName:  "fraud-scoring-service",
			SampleRatio:  0.1,
			OTLPEndpoint: "",
			Insecure:     true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
