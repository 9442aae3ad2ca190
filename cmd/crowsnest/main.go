package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"frameworks/crowsnest/internal/collectors"
	crowsnestconfig "frameworks/crowsnest/internal/config"
	"frameworks/crowsnest/internal/egress"
	"frameworks/crowsnest/internal/handlers"
	"frameworks/crowsnest/internal/insight"
	"frameworks/crowsnest/internal/publish"
	"frameworks/crowsnest/internal/scanner"
	"frameworks/crowsnest/internal/sink"
	"frameworks/crowsnest/internal/triage"
	"frameworks/crowsnest/pkg/config"
	"frameworks/crowsnest/pkg/database"
	"frameworks/crowsnest/pkg/kafka"
	"frameworks/crowsnest/pkg/llm"
	"frameworks/crowsnest/pkg/logging"
	"frameworks/crowsnest/pkg/middleware"
	"frameworks/crowsnest/pkg/monitoring"
	"frameworks/crowsnest/pkg/redis"
	"frameworks/crowsnest/pkg/server"
	"frameworks/crowsnest/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("crowsnest")

	// Load environment variables
	config.LoadEnv(logger)

	logger.WithField("build", version.GetInfo().String()).Info("Starting Crowsnest (Social Signal Triage)")

	cfg := crowsnestconfig.LoadConfig()

	// Optional backends. Each one degrades to disabled when unconfigured.
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		dbConfig := database.DefaultConfig()
		dbConfig.URL = cfg.DatabaseURL
		db = database.MustConnect(dbConfig, logger)
		defer func() { _ = db.Close() }()
	} else {
		logger.Warn("DATABASE_URL not set - persistence disabled")
	}

	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClientFromURL(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable - dedup runs on local memory only")
		} else {
			redisClient = client
			defer func() { _ = redisClient.Close() }()
		}
	}

	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		p, err := kafka.NewProducer(cfg.KafkaBrokers, "crowsnest", logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to create Kafka producer - event publishing disabled")
		} else {
			producer = p
			defer func() { _ = producer.Close() }()
		}
	} else {
		logger.Warn("KAFKA_BROKERS not set - event publishing disabled")
	}

	summarizer := llm.NewSummarizer(cfg.LLM, logger)

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("crowsnest", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("crowsnest", version.Version, version.GitCommit)

	if db != nil {
		healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	}
	if redisClient != nil {
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	}
	if producer != nil {
		healthChecker.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(producer.Client()))
	}
	healthChecker.AddCheck("sources", sourcesCheck(cfg))

	// Egress through the rotating identity pool
	egressMetrics := egress.NewMetrics(metricsCollector)
	rotator, err := egress.NewRotator(cfg.Identities, logger, egressMetrics)
	if err != nil {
		logger.WithError(err).Fatal("Invalid identity pool")
	}
	executor := egress.NewExecutor(rotator, egress.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BackoffMin:  cfg.BackoffMin,
		BackoffMax:  cfg.BackoffMax,
		Timeout:     cfg.RequestTimeout,
	}, logger, egressMetrics)

	// Collectors for every configured source
	detector := collectors.NewDetector(cfg.WatchKeywords)
	var pool []collectors.Collector
	if len(cfg.Subreddits) > 0 {
		pool = append(pool, collectors.NewRedditCollector(executor, detector, collectors.RedditConfig{
			BaseURL:    cfg.RedditBaseURL,
			Subreddits: cfg.Subreddits,
			Limit:      cfg.RedditLimit,
			Pause:      cfg.CollectorPause,
		}, logger))
	}
	if len(cfg.TwitterQueries) > 0 {
		pool = append(pool, collectors.NewTwitterCollector(executor, detector, collectors.TwitterConfig{
			BaseURL:    cfg.TwitterBaseURL,
			Queries:    cfg.TwitterQueries,
			MaxResults: cfg.TwitterResults,
			Pause:      cfg.CollectorPause,
		}, logger))
	}
	if len(cfg.FeedURLs) > 0 {
		pool = append(pool, collectors.NewFeedCollector(executor, detector, collectors.FeedConfig{
			URLs:     cfg.FeedURLs,
			MaxItems: cfg.FeedMaxItems,
			Pause:    cfg.CollectorPause,
		}, logger))
	}

	// Triage pipeline
	var dedupe *triage.Deduplicator
	if redisClient != nil {
		dedupe = triage.NewDeduplicator(cfg.DedupRetention, redisClient, logger)
	} else {
		dedupe = triage.NewDeduplicator(cfg.DedupRetention, nil, logger)
	}
	scorer := triage.NewScorer(cfg.VerifiedAuthors, cfg.KnownGoodAuthors, cfg.KnownSpamAuthors)
	batcher := triage.NewBatcher(scorer, logger)
	aggregator := insight.NewAggregator(cfg.AggregationInterval, cfg.MemoryWindow, logger)

	var store *sink.Store
	if db != nil {
		store = sink.NewStore(db, logger)
		schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := store.EnsureSchema(schemaCtx); err != nil {
			cancel()
			logger.WithError(err).Fatal("Failed to ensure sink schema")
		}
		cancel()
	}

	var publisher *publish.Publisher
	if producer != nil {
		publisher = publish.NewPublisher(producer, logger)
	}

	scan := scanner.New(scanner.Config{
		Interval:          cfg.ScanInterval,
		MinInterval:       cfg.MinScanInterval,
		MaxInterval:       cfg.MaxScanInterval,
		ActivityThreshold: cfg.ActivityThreshold,
	}, scanner.Deps{
		Collectors: pool,
		Dedupe:     dedupe,
		Batcher:    batcher,
		Scorer:     scorer,
		Aggregator: aggregator,
		Summarizer: summarizer,
		Store:      store,
		Publisher:  publisher,
		Logger:     logger,
		Metrics:    scanner.NewMetrics(metricsCollector),
	})

	// HTTP surface
	handlers.Init(scan, rotator, batcher, aggregator, logger)
	router := server.SetupServiceRouter(logger, "crowsnest", healthChecker, metricsCollector)

	status := router.Group("/")
	if cfg.ServiceToken != "" {
		status.Use(middleware.ServiceAuthMiddleware(cfg.ServiceToken))
	}
	status.GET("/status", handlers.GetStatus)

	scanCtx, stopScan := context.WithCancel(context.Background())
	defer stopScan()
	go scan.Run(scanCtx)

	serverConfig := server.DefaultConfig("crowsnest", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}

// sourcesCheck reports degraded health when no collector has any source to
// scan, which would make every cycle a no-op.
func sourcesCheck(cfg crowsnestconfig.Config) monitoring.HealthCheck {
	return func() monitoring.CheckResult {
		n := len(cfg.Subreddits) + len(cfg.TwitterQueries) + len(cfg.FeedURLs)
		if n == 0 {
			return monitoring.CheckResult{
				Status:  monitoring.StatusDegraded,
				Message: "no collector sources configured",
			}
		}
		return monitoring.CheckResult{
			Status:  monitoring.StatusHealthy,
			Message: fmt.Sprintf("%d sources configured", n),
		}
	}
}
