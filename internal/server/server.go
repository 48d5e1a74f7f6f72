// Package server assembles the store, workspace, services and HTTP router
// from configuration.
package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/factory-ops-api/internal/handler"
	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/repository"
	"github.com/noah-isme/factory-ops-api/internal/service"
	"github.com/noah-isme/factory-ops-api/internal/workspace"
	"github.com/noah-isme/factory-ops-api/pkg/cache"
	"github.com/noah-isme/factory-ops-api/pkg/config"
	"github.com/noah-isme/factory-ops-api/pkg/database"
	"github.com/noah-isme/factory-ops-api/pkg/jobs"
)

// RecordKinds lists every kind the workspace keeps live.
var RecordKinds = []models.RecordKind{
	models.KindJigRequest,
	models.KindSampleRequest,
	models.KindProductionRequest,
	models.KindQualityInspection,
}

// Services groups the use-case layer.
type Services struct {
	Auth               *service.AuthService
	Metrics            *service.MetricsService
	Notifications      *service.NotificationService
	MasterData         *service.MasterDataService
	JigRequests        *service.JigRequestService
	SampleRequests     *service.SampleRequestService
	ProductionRequests *service.ProductionRequestService
	Inspections        *service.QualityInspectionService
}

// App owns every long-lived resource of one process.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     repository.Store
	Workspace *workspace.Workspace
	Services  Services

	db     *sqlx.DB
	redis  *redis.Client
	queue  *jobs.Queue
	cancel context.CancelFunc
	checks []handler.ReadinessCheck
}

// New connects the configured store, opens the workspace and builds the
// services. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	app := &App{Config: cfg, Logger: logger, cancel: cancel}
	metrics := service.NewMetricsService()

	if err := app.connectRedis(ctx); err != nil {
		app.Close()
		return nil, err
	}
	store, err := app.openStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = repository.NewInstrumentedStore(store, metrics)

	app.Workspace = workspace.New(app.Store, workspace.WithLogger(logger), workspace.WithObserver(metrics))
	if err := app.Workspace.Open(ctx, RecordKinds...); err != nil {
		app.Close()
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	validate := validator.New()
	notifications := service.NewNotificationService(app.Store, cfg.Notifications.Window, validate, metrics, logger.Named("notifications"))
	app.queue = jobs.NewQueue("notifications", notifications.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		OnFailure:  notifications.HandleFailure,
		Logger:     logger,
	})
	app.queue.Start(ctx)
	notifications.UseQueue(app.queue)

	var cacheRepo service.CacheRepository
	if app.redis != nil {
		cacheRepo = repository.NewCacheRepository(app.redis, logger)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Redis.CacheTTL, logger, app.redis != nil)

	ledger := service.NewLedger(service.NewTransitionPolicy(cfg.Ledger.EnforceTransitions), nil)
	allocator := service.NewAllocator(app.Store, cfg.Allocator.Location(), logger.Named("allocator"))
	records := func(kind models.RecordKind) *service.RecordService {
		return service.NewRecordService(kind, app.Workspace, ledger, notifications, validate, logger)
	}

	app.Services = Services{
		Auth: service.NewAuthService(validate, logger, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
		}),
		Metrics:            metrics,
		Notifications:      notifications,
		MasterData:         service.NewMasterDataService(app.Store, cacheSvc, validate, logger),
		JigRequests:        service.NewJigRequestService(records(models.KindJigRequest), allocator),
		SampleRequests:     service.NewSampleRequestService(records(models.KindSampleRequest), allocator),
		ProductionRequests: service.NewProductionRequestService(records(models.KindProductionRequest), allocator),
		Inspections:        service.NewQualityInspectionService(records(models.KindQualityInspection), app.Store),
	}
	return app, nil
}

func (a *App) connectRedis(ctx context.Context) error {
	client, err := cache.NewRedis(ctx, a.Config.Redis)
	if err != nil {
		if a.Config.StoreDriver == config.StoreDriverPostgres {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.Logger.Warn("redis unavailable, continuing without cache", zap.Error(err))
		return nil
	}
	if client == nil {
		return nil
	}
	a.redis = client
	a.checks = append(a.checks, handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}})
	return nil
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	switch a.Config.StoreDriver {
	case config.StoreDriverMemory:
		a.Logger.Warn("using the in-memory store; data is lost on exit")
		return repository.NewMemoryStore(
			repository.WithMemoryMaxAttempts(a.Config.Allocator.MaxAttempts),
			repository.WithMemoryLogger(a.Logger),
		), nil
	case config.StoreDriverPostgres:
		db, err := database.NewPostgres(a.Config.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.db = db
		a.checks = append(a.checks, handler.ReadinessCheck{Name: "postgres", Check: db.PingContext})

		storeCfg := repository.PostgresStoreConfig{MaxAttempts: a.Config.Allocator.MaxAttempts, Logger: a.Logger}
		var feed *repository.RedisChangeFeed
		if a.redis != nil {
			feed = repository.NewRedisChangeFeed(a.redis, repository.DefaultChangeChannelPrefix, a.Logger)
			storeCfg.Publisher = feed
		}
		store := repository.NewPostgresStore(db, storeCfg)
		if feed != nil {
			go func() {
				if err := feed.Listen(ctx, store); err != nil && !errors.Is(err, context.Canceled) {
					a.Logger.Error("change feed stopped", zap.Error(err))
				}
			}()
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", a.Config.StoreDriver)
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() {
	if a.queue != nil {
		a.queue.Stop()
	}
	if a.Workspace != nil {
		a.Workspace.Close()
	}
	a.cancel()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Warn("close postgres", zap.Error(err))
		}
	}
}
