package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	fraudapp "fraud-scoring-service/internal/application/fraud"
	"fraud-scoring-service/internal/domain/fraud"
	"fraud-scoring-service/internal/infrastructure/cache/redis"
	"fraud-scoring-service/internal/infrastructure/database/postgres"
	"fraud-scoring-service/internal/infrastructure/http/router"
	"fraud-scoring-service/internal/infrastructure/messaging/kafka"
	"fraud-scoring-service/internal/infrastructure/ml"
	"fraud-scoring-service/internal/interfaces/http/handler"
	"fraud-scoring-service/internal/interfaces/http/middleware"
	"fraud-scoring-service/internal/pkg/config"
	"fraud-scoring-service/internal/pkg/logging"
	"fraud-scoring-service/internal/pkg/tracing"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fraud-scoring-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to config file")
	migrate := flag.Bool("migrate", false, "Create or update database tables before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	logger.Info("starting fraud scoring service",
		zap.String("version", version),
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)))

	ctx := context.Background()
	var closers []func() error

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		SampleRatio:  cfg.Tracing.SampleRatio,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		Insecure:     cfg.Tracing.Insecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	closers = append(closers, func() error { return shutdownTracing(context.Background()) })

	// Database is required: every verdict is persisted
	dbClient, err := postgres.NewClient(postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Name:            cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return err
	}
	closers = append(closers, dbClient.Close)

	if *migrate {
		if err := dbClient.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("database migrated")
	}

	// Redis is optional; without it verdicts are not cached
	var (
		cache       fraud.CacheStore
		redisHealth handler.HealthChecker
		redisClient *redis.Client
	)
	redisClient, err = redis.NewClient(redis.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Warn("redis unavailable, prediction cache disabled", zap.Error(err))
		redisClient = nil
	} else {
		logger.Info("connected to redis", zap.String("host", cfg.Redis.Host), zap.Int("port", cfg.Redis.Port))
		cache = redisClient
		redisHealth = redisClient
		closers = append(closers, redisClient.Close)
	}

	// Scoring pipeline
	features := ml.NewFeatureEngineer(ml.FeatureConfig{ScalerPath: cfg.ML.ScalerPath}, logger)

	var backend ml.ScoringBackend = ml.NewLinearBackend(cfg.ML.ModelPath, cfg.ML.ModelVersion)
	if cfg.Breaker.Enabled {
		backend = ml.NewBreakerBackend(backend, ml.BreakerConfig{
			MaxRequests:         cfg.Breaker.MaxRequests,
			Interval:            cfg.Breaker.Interval,
			Timeout:             cfg.Breaker.Timeout,
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
		}, logger)
	}

	engine := ml.NewPredictionEngine(features, backend, cache, ml.EngineConfig{
		ModelVersion:     cfg.ML.ModelVersion,
		CacheTTL:         cfg.ML.CacheTTL,
		InferenceTimeout: cfg.ML.InferenceTimeout,
		LoadTimeout:      cfg.ML.LoadTimeout,
		Workers:          cfg.ML.InferenceWorkers,
		ChunkSize:        cfg.ML.BatchChunkSize,
		MaxBatchSize:     cfg.Scoring.MaxBatchSize,
	}, logger)

	if cfg.ML.CardHistoryEnabled {
		if redisClient != nil {
			engine.SetHistoryStore(redis.NewHistoryCache(redisClient, cfg.ML.CardHistorySize, cfg.ML.CardHistoryTTL))
			logger.Info("card history enabled", zap.Int("size", cfg.ML.CardHistorySize))
		} else {
			logger.Warn("card history requires redis, using cold-start windows")
		}
	}

	// A failed warmup is retried lazily on the first request
	if err := engine.Warmup(ctx); err != nil {
		logger.Warn("model warmup failed", zap.Error(err))
	}

	service := fraudapp.NewPredictionService(
		postgres.NewUnitOfWork(dbClient.DB()),
		postgres.NewRepositories(dbClient.DB()),
		engine,
		fraudapp.Config{BatchSize: cfg.Scoring.BatchSize},
		logger,
	)

	if cfg.Kafka.Enabled {
		publisher := kafka.NewAlertPublisher(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.FraudAlertsTopic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		service.WithAlertPublisher(publisher)
		closers = append(closers, publisher.Close)
		logger.Info("publishing fraud alerts", zap.String("topic", cfg.Kafka.FraudAlertsTopic))
	}

	// HTTP
	opts := router.Options{
		Global: []router.Middleware{middleware.RequestLogger(logger)},
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	if cfg.RateLimit.Enabled {
		if redisClient != nil {
			opts.RateLimiter = middleware.NewRateLimiter(redisClient.Redis(), cfg.RateLimit.PerMinute, logger)
		} else {
			logger.Warn("rate limiting requires redis, disabled")
		}
	}

	r := router.NewRouter(
		handler.NewPredictionHandler(service, engine, cfg.Scoring.MaxBatchSize),
		handler.NewHealthHandler(dbClient, redisHealth, engine, version),
		opts,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
		logger.Info("shutting down server")
	case runErr = <-serverErr:
		logger.Error("server error", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("server shutdown: %w", err))
	}

	// Close in reverse order of opening
	for i := len(closers) - 1; i >= 0; i-- {
		runErr = multierr.Append(runErr, closers[i]())
	}

	logger.Info("server stopped")
	return runErr
}
