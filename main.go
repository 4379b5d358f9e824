package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"marketplace/internal/async"
	"marketplace/internal/cache"
	"marketplace/internal/config"
	"marketplace/internal/database"
	"marketplace/internal/handlers"
	"marketplace/internal/logging"
	"marketplace/internal/notify"
	"marketplace/internal/repositories"
	"marketplace/internal/services"
	"marketplace/pkg/rabbitmq"
)

const (
	dependencyTimeout = 3 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("server gracefully stopped")
}

// run serves until ctx is cancelled, then shuts everything down.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(logger)

	if a.mq != nil {
		if err := a.mq.ConsumeEvents(ctx, logEvent(logger)); err != nil {
			logger.Warn("event consumer not started", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", cfg.AppPort))
		return a.http.Listen(cfg.AppPort)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		return a.http.ShutdownWithTimeout(shutdownTimeout)
	})
	return g.Wait()
}

// app holds the HTTP server and every resource it must release.
type app struct {
	http       *fiber.App
	db         *gorm.DB
	redis      *redis.Client // nil when unreachable
	mq         *rabbitmq.Client
	dispatcher *async.Dispatcher
}

// newApp connects to the database, optional redis and rabbitmq, then wires
// services and routes. Redis and rabbitmq outages degrade the app instead of
// failing startup.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}

	a.dispatcher = async.NewDispatcher(async.Options{
		Workers: cfg.DispatchWorkers,
		Buffer:  cfg.DispatchBuffer,
		Timeout: cfg.DispatchTimeout,
	}, logger)

	var store *cache.Cache
	var invalidator services.CacheInvalidator
	if client, err := connectRedis(ctx, cfg); err != nil {
		logger.Warn("redis unavailable, response cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	} else {
		a.redis = client
		store = cache.New(client, logger)
		invalidator = cache.NewInvalidator(store, a.dispatcher, logger)
	}

	var publisher notify.Publisher = notify.NopPublisher{}
	mq, err := rabbitmq.NewClient(rabbitmq.Config{
		URL:      cfg.RabbitMQURL,
		Exchange: cfg.RabbitMQExchange,
		Queue:    cfg.RabbitMQQueue,
	}, logger.Named("rabbitmq"))
	if err != nil {
		logger.Warn("rabbitmq unavailable, events are dropped", zap.Error(err))
	} else {
		a.mq = mq
		publisher = mq
	}
	emitter := notify.NewEmitter(publisher, a.dispatcher, logger)

	repos := repositories.NewRepositories(db)
	uow := repositories.NewGORMUnitOfWork(db)
	categories := repositories.NewGORMCategoryRepository(db)

	authService := services.NewAuthService(repositories.NewGORMUserRepository(db), cfg.JWTSecret, cfg.TokenTTL, logger)
	if cfg.AdminUsername != "" {
		if _, err := authService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			a.close(logger)
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
	}
	reviews := services.NewReviewService(repositories.NewGORMReviewRepository(db), repos.Products, invalidator, logger)

	checks := map[string]handlers.HealthCheck{"database": a.pingDatabase}
	if store != nil {
		checks["cache"] = store.Ping
	}
	a.http = handlers.NewRouter(handlers.Deps{
		Auth:         authService,
		Products:     services.NewProductService(uow, repos.Products, categories, reviews, emitter, invalidator, logger),
		Reviews:      reviews,
		Categories:   services.NewCategoryService(categories, invalidator),
		Carts:        services.NewCartService(repos.Carts, repos.Products),
		Coupons:      services.NewCouponService(repos.Coupons, logger),
		Orders:       services.NewOrderService(uow, repos.Orders, emitter, invalidator, logger),
		Cache:        store,
		CacheTTL:     cfg.CacheTTL,
		Background:   a.dispatcher,
		HealthChecks: checks,
		Logger:       logger,
	})
	return a, nil
}

func connectRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (a *app) pingDatabase(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// close drains background jobs before closing the connections they use.
func (a *app) close(logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if a.dispatcher != nil {
		errs = append(errs, a.dispatcher.Close(ctx))
	}
	if a.mq != nil {
		errs = append(errs, a.mq.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if sqlDB, err := a.db.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("shutdown finished with errors", zap.Error(err))
	}
}

// logEvent acknowledges every broker event after logging it.
func logEvent(logger *zap.Logger) rabbitmq.Handler {
	logger = logger.Named("events")
	return func(routingKey string, body []byte) error {
		logger.Info("event received", zap.String("routing_key", routingKey), zap.ByteString("body", body))
		return nil
	}
}
