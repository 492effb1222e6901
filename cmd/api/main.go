package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sony/gobreaker"

	"github.com/fashion-supplychain/progress-service/pkg/cloudevents"
	"github.com/fashion-supplychain/progress-service/pkg/contracts"
	"github.com/fashion-supplychain/progress-service/pkg/idempotency"
	"github.com/fashion-supplychain/progress-service/pkg/kafka"
	"github.com/fashion-supplychain/progress-service/pkg/logging"
	"github.com/fashion-supplychain/progress-service/pkg/metrics"
	"github.com/fashion-supplychain/progress-service/pkg/middleware"
	"github.com/fashion-supplychain/progress-service/pkg/mongodb"
	"github.com/fashion-supplychain/progress-service/pkg/outbox"
	"github.com/fashion-supplychain/progress-service/pkg/resilience"
	"github.com/fashion-supplychain/progress-service/pkg/tracing"

	"github.com/fashion-supplychain/progress-service/internal/application"
	kafkaHandlers "github.com/fashion-supplychain/progress-service/internal/infrastructure/kafka"
	mongoRepo "github.com/fashion-supplychain/progress-service/internal/infrastructure/mongodb"
	"github.com/fashion-supplychain/progress-service/internal/infrastructure/seed"
)

const serviceName = "progress-service"

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.ParseLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting progress-service API")

	config := loadConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = config.TracingEnabled

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint, "enabled", tracingConfig.Enabled)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	// Connect to MongoDB
	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer func() {
		if err := mongoClient.Close(context.Background()); err != nil {
			logger.WithError(err).Error("Failed to disconnect from MongoDB")
		}
	}()
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	db := mongoClient.Database()
	observer := mongodb.NewObserver(config.MongoDB.Database, m, logger)
	eventFactory := cloudevents.NewEventFactory("/" + serviceName)

	repos := mongoRepo.NewRepositories(db, eventFactory, observer)
	// index builds can fail while a replica set election is still settling
	if err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		return repos.EnsureIndexes(ctx)
	}); err != nil {
		logger.WithError(err).Error("Failed to create indexes")
		os.Exit(1)
	}

	processed := idempotency.NewMongoMessageRepository(db, observer)
	if err := processed.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Error("Failed to create processed message indexes")
		os.Exit(1)
	}

	// Kafka producer and outbox publisher
	producer := kafka.NewProducer(config.Kafka, m, logger)
	defer producer.Close()

	publisher := outbox.NewPublisher(repos.Outbox(), producer, logger, m, &outbox.PublisherConfig{
		PollInterval: config.OutboxPollInterval,
		BatchSize:    100,
	})
	if err := publisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer func() {
		if err := publisher.Stop(); err != nil {
			logger.WithError(err).Error("Failed to stop outbox publisher")
		}
	}()

	breakers := resilience.NewCircuitBreakerRegistry(logger.Logger, func(name string, _, to gobreaker.State) {
		m.SetCircuitBreakerState(name, resilience.StateValue(to))
		if to == gobreaker.StateOpen {
			m.RecordCircuitBreakerTrip(name)
		}
	})

	deps := application.Dependencies{
		Scans:       repos.Scans,
		Catalogs:    repos.Catalogs,
		Units:       repos.Units,
		Warehousing: repos.Warehousing,
		Tasks:       repos.Tasks,
		Breakers:    breakers,
		Metrics:     m,
		Logger:      logger,
	}
	if config.SeedDefaultCatalog {
		deps.Seeder = seed.DefaultSeeder
	}
	progressService := application.NewProgressApplicationService(deps, config.Service)

	// Scan ingestion
	validator, err := contracts.NewValidator()
	if err != nil {
		logger.WithError(err).Error("Failed to load event contracts")
		os.Exit(1)
	}
	consumer := kafka.NewConsumer(config.Kafka, m, logger)
	defer consumer.Close()

	kafkaHandlers.NewScanHandler(progressService, validator, logger).Register(consumer, &idempotency.ConsumerConfig{
		ServiceName:   serviceName,
		ConsumerGroup: config.Kafka.ConsumerGroup,
		Repository:    processed,
		Logger:        logger,
	})
	go func() {
		if err := consumer.Start(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("Kafka consumer stopped")
		}
	}()

	// HTTP
	gin.SetMode(getEnv("GIN_MODE", gin.ReleaseMode))
	router := gin.New()

	mwConfig := middleware.DefaultConfig(serviceName, logger.Logger)
	mwConfig.Metrics = m
	mwConfig.EnableTracing = config.TracingEnabled
	middleware.Setup(router, mwConfig)

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, 2*time.Second, map[string]func(context.Context) error{
		"mongodb": mongoClient.HealthCheck,
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))
	router.GET("/debug/breakers", func(c *gin.Context) {
		c.JSON(http.StatusOK, breakers.Status())
	})

	registerRoutes(router.Group("/api/v1"), progressService, logger, config.ScanRateLimit)

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	cancel()

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr         string
	TracingEnabled     bool
	SeedDefaultCatalog bool
	ScanRateLimit      float64
	OutboxPollInterval time.Duration
	MongoDB            *mongodb.Config
	Kafka              *kafka.Config
	Service            application.Config
}

func loadConfig() *Config {
	service := application.DefaultConfig()
	service.FetchTimeout = getDuration("FETCH_TIMEOUT", service.FetchTimeout)
	service.UndoWindow = getDuration("UNDO_WINDOW", service.UndoWindow)
	service.CatalogCacheSize = getInt("CATALOG_CACHE_SIZE", service.CatalogCacheSize)
	service.CatalogCacheTTL = getDuration("CATALOG_CACHE_TTL", service.CatalogCacheTTL)
	service.WarehousingPageSize = getInt("WAREHOUSING_PAGE_SIZE", service.WarehousingPageSize)
	service.WarehousingConcurrency = getInt("WAREHOUSING_CONCURRENCY", service.WarehousingConcurrency)

	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = kafka.ParseBrokers(getEnv("KAFKA_BROKERS", "localhost:9092"))
	kafkaConfig.ConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", serviceName)
	kafkaConfig.ClientID = serviceName

	return &Config{
		ServerAddr:         getEnv("SERVER_ADDR", ":8080"),
		TracingEnabled:     getEnv("TRACING_ENABLED", "true") == "true",
		SeedDefaultCatalog: getEnv("SEED_DEFAULT_CATALOG", "false") == "true",
		ScanRateLimit:      getFloat("SCAN_RATE_LIMIT", 20),
		OutboxPollInterval: getDuration("OUTBOX_POLL_INTERVAL", time.Second),
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "progress_db"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka:   kafkaConfig,
		Service: service,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && v >= 0 {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}
