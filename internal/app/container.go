// Package app wires the planner's dependencies into a container the
// CLI consumes.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldworks/dispatchd/internal/dispatch/application/services"
	"github.com/fieldworks/dispatchd/internal/dispatch/domain"
	"github.com/fieldworks/dispatchd/internal/dispatch/infrastructure/eventbus"
	"github.com/fieldworks/dispatchd/internal/dispatch/infrastructure/persistence"
	"github.com/fieldworks/dispatchd/internal/solver"
	"github.com/fieldworks/dispatchd/internal/travel"
	"github.com/fieldworks/dispatchd/pkg/config"
	"github.com/fieldworks/dispatchd/pkg/observability"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	DB          *pgxpool.Pool
	RedisClient *redis.Client

	JobStore  domain.JobStore
	Publisher eventbus.Publisher
	Metrics   *observability.InMemoryMetrics

	Orchestrator *services.Orchestrator
}

// NewContainer connects to external services and builds the planner.
// Redis and RabbitMQ are optional; missing ones degrade to the
// process-local cache and a noop publisher.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	location, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", cfg.TimeZone, err)
	}
	window := domain.WorkingWindow{
		Start:    cfg.WorkDayStart,
		End:      cfg.WorkDayEnd,
		Location: location,
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	logger.Info("connected to database")

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		DB:      pool,
		Metrics: observability.NewInMemoryMetrics(),
	}

	// Travel cache: Redis when configured, else process-local TTL.
	var cache travel.DurationCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		c.RedisClient = redis.NewClient(opts)
		if err := c.RedisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable, using in-memory travel cache", "error", err)
			_ = c.RedisClient.Close()
			c.RedisClient = nil
			cache = travel.NewMemoryCache(cfg.TravelCacheTTL)
		} else {
			cache = travel.NewRedisCache(c.RedisClient, cfg.TravelCacheTTL, logger)
		}
	} else {
		cache = travel.NewMemoryCache(cfg.TravelCacheTTL)
	}

	// Event publisher: RabbitMQ when configured, else noop.
	if cfg.RabbitMQURL != "" {
		publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			if cfg.IsDevelopment() {
				logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
				c.Publisher = eventbus.NewNoopPublisher(logger)
			} else {
				c.Close()
				return nil, fmt.Errorf("connecting to RabbitMQ: %w", err)
			}
		} else {
			c.Publisher = publisher
		}
	} else {
		c.Publisher = eventbus.NewNoopPublisher(logger)
	}

	c.JobStore = persistence.NewPostgresJobStore(pool)

	oracle := travel.NewHTTPOracle(cfg.TravelOracleURL, cfg.TravelOracleTimeout)
	matrix := travel.NewMatrixBuilder(oracle, cache, logger, c.Metrics)
	depot := domain.Coordinate{Lat: cfg.DepotLat, Lng: cfg.DepotLng}

	c.Orchestrator = services.NewOrchestrator(services.OrchestratorParams{
		Store:        c.JobStore,
		Availability: services.NewAvailabilityService(window, logger, nil),
		Bundler:      services.NewBundler(),
		Eligibility:  services.NewEligibilityService(c.JobStore, logger),
		Assembler:    services.NewPayloadAssembler(matrix, window, depot, logger),
		Solver:       solver.NewClient(cfg.SolverURL, cfg.SolverTimeout, logger),
		Ingester:     services.NewResultIngester(logger),
		Writer:       services.NewWriteApplier(c.JobStore, logger),
		Publisher:    c.Publisher,

		Window:              window,
		MaxOverflowAttempts: cfg.MaxOverflowAttempts,
		Logger:              logger,
		Metrics:             c.Metrics,
	})

	return c, nil
}

// Close releases external connections.
func (c *Container) Close() {
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			c.Logger.Warn("closing event publisher", "error", err)
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("closing redis client", "error", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
