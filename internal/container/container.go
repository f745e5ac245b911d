package container

import (
	"context"
	"fmt"

	"blogpulse/internal/config"
	"blogpulse/internal/notify"
	"blogpulse/internal/repository"
	"blogpulse/internal/service"
	"blogpulse/internal/service/auth"
	"blogpulse/pkg/database"
	"blogpulse/pkg/logger"
	"blogpulse/pkg/queue"
	"blogpulse/pkg/redis"
)

// Infra holds the connected backing stores
type Infra struct {
	Postgres    *database.PostgresDB
	ClickHouse  *database.ClickHouseDB
	RedisClient *redis.Client
}

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	Infra

	Queue      *queue.Queue
	Maintainer *queue.Maintainer
	Hub        *notify.Hub
	Breaker    *repository.BreakerEventReader
	Services   *service.Services
}

// Connect opens every backing store. Stores opened before a failure are
// closed again.
func Connect(ctx context.Context, cfg *config.Config, logger *logger.Logger) (Infra, error) {
	var infra Infra

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.DatabaseReadURL)
	if err != nil {
		return infra, fmt.Errorf("failed to connect to database: %w", err)
	}
	infra.Postgres = db
	logger.Info("Database connection established")

	redisClient, err := redis.NewClient(cfg.RedisURL, cfg.Environment, logger.Logger)
	if err != nil {
		db.Close()
		return Infra{}, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	infra.RedisClient = redisClient
	logger.Info("Redis client initialized successfully")

	ch, err := database.NewClickHouseDB(ctx, database.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		_ = redisClient.Close()
		db.Close()
		return Infra{}, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	infra.ClickHouse = ch
	logger.Info("ClickHouse connection established")

	return infra, nil
}

// New connects the backing stores and wires the application on top of them
func New(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Container, error) {
	infra, err := Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return Build(cfg, logger, infra)
}

// Build wires queues, repositories and services over already connected stores
func Build(cfg *config.Config, logger *logger.Logger, infra Infra) (*Container, error) {
	if infra.RedisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	opts := queue.DefaultOptions(cfg.QueueName)
	if cfg.QueueMaxAttempts > 0 {
		opts.MaxAttempts = cfg.QueueMaxAttempts
	}
	if cfg.QueueBackoff > 0 {
		opts.Backoff = cfg.QueueBackoff
	}
	if cfg.QueueLeaseTTL > 0 {
		opts.LeaseTTL = cfg.QueueLeaseTTL
	}
	q := queue.New(infra.RedisClient, opts, logger.Logger)

	maintainer, err := queue.NewMaintainer(q, queue.DefaultSchedule(), logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule queue maintenance: %w", err)
	}

	hub := notify.NewHub(logger)

	posts := repository.NewPostRepository(infra.Postgres)
	events := repository.NewEventRepository(infra.ClickHouse)

	breakerCfg := repository.DefaultBreakerConfig()
	if cfg.BreakerFailureThreshold > 0 {
		breakerCfg.FailureThreshold = cfg.BreakerFailureThreshold
	}
	if cfg.BreakerOpenTimeout > 0 {
		breakerCfg.Timeout = cfg.BreakerOpenTimeout
	}
	reader := repository.NewBreakerEventReader(events, breakerCfg, logger.Logger)

	activity := service.NewActivityService(infra.RedisClient, logger)
	services := &service.Services{
		Auth:      auth.NewService(cfg.SessionJWTSecret, logger),
		Ingest:    service.NewIngestService(q, activity, logger, cfg.MaxBatchSize),
		Analytics: service.NewCachedAnalyticsService(
			service.NewAnalyticsService(posts, reader, activity, q, logger),
			service.NewCacheService(infra.RedisClient, logger.Logger),
			cfg.AnalyticsCacheTTL,
		),
		Views:     service.NewViewCounterService(posts, infra.RedisClient, q, hub, cfg.DedupTTL, logger),
		Activity:  activity,
		Processor: service.NewEventProcessor(q, events, service.ProcessorConfig{
			Workers:    cfg.WorkerCount,
			JobTimeout: cfg.JobTimeout,
			Retry:      cfg.JobRetry,
		}, logger),
	}

	return &Container{
		Config:     cfg,
		Logger:     logger,
		Infra:      infra,
		Queue:      q,
		Maintainer: maintainer,
		Hub:        hub,
		Breaker:    reader,
		Services:   services,
	}, nil
}

// GetAuthService returns the auth service
func (c *Container) GetAuthService() service.AuthService {
	return c.Services.Auth
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// StartBackground starts the queue maintainer, the notification hub and
// the event processor. They run until StopBackground or ctx ends.
func (c *Container) StartBackground(ctx context.Context) {
	c.Maintainer.Start()
	go c.Hub.Run(ctx)
	c.Services.Processor.Start(ctx)
}

// StopBackground drains the processor first so in-flight jobs finish, then
// stops the maintainer
func (c *Container) StopBackground(ctx context.Context) error {
	var errs []error
	if err := c.Services.Processor.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("event processor: %w", err))
	}
	if err := c.Maintainer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("queue maintainer: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("background shutdown: %v", errs)
	}
	return nil
}
