// Package control wires the engine together: storage, cache tiers,
// fetchers, health tracking, healing, alerting, and the monitor loop.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/feedguard/feedguard/internal/alerting"
	"github.com/feedguard/feedguard/internal/cache"
	"github.com/feedguard/feedguard/internal/classify"
	"github.com/feedguard/feedguard/internal/core/config"
	"github.com/feedguard/feedguard/internal/core/worker"
	"github.com/feedguard/feedguard/internal/fetch"
	"github.com/feedguard/feedguard/internal/healing"
	"github.com/feedguard/feedguard/internal/health"
	"github.com/feedguard/feedguard/internal/infra/redis"
	"github.com/feedguard/feedguard/internal/infra/storage"
	"github.com/feedguard/feedguard/internal/infra/storage/memory"
	"github.com/feedguard/feedguard/internal/infra/storage/postgres"
	"github.com/feedguard/feedguard/internal/knowledge"
	"github.com/feedguard/feedguard/internal/monitor"
)

// Engine is the composed application.
type Engine struct {
	cfg *config.AppConfig

	monitor      *monitor.Monitor
	healthServer *health.Server
	checkpointer *worker.Checkpointer
	knowStore    *knowledge.Store
	db           *postgres.DB
	redisClient  *redis.Client
	log          *slog.Logger
	started      bool
}

// NewEngine builds every component from configuration. An endpoint
// whose source has no registered fetcher is a startup error, not a
// runtime one.
func NewEngine(cfg *config.AppConfig, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	// 1. Storage
	var (
		eventRepo    storage.ErrorEventRepository
		healthRepo   storage.HealthRepository
		knowRepo     storage.KnowledgeRepository
		alertRepo    storage.AlertRepository
		snapshotRepo storage.SnapshotRepository
		db           *postgres.DB
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		eventRepo = postgres.NewErrorEventRepo(db)
		healthRepo = postgres.NewHealthRepo(db)
		knowRepo = postgres.NewKnowledgeRepo(db)
		alertRepo = postgres.NewAlertRepo(db)
		snapshotRepo = postgres.NewSnapshotRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewStorage()
		eventRepo = memory.NewErrorEventRepo(store)
		healthRepo = memory.NewHealthRepo(store)
		knowRepo = memory.NewKnowledgeRepo(store)
		alertRepo = memory.NewAlertRepo(store)
		snapshotRepo = memory.NewSnapshotRepo(store)
		log.Info("Using Memory storage")
	}

	// 2. Warm cache tier
	var warm cache.WarmCache
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		warm = redisClient
		log.Info("Using Redis warm cache")
	} else {
		warm = memory.NewWarmCache()
		log.Info("Using Memory warm cache")
	}

	// 3. Fetchers, one per configured source
	registry := fetch.NewRegistry()
	for _, src := range cfg.Sources {
		registry.Register(src.Name, fetch.NewHTTPFetcher(src.Name, src.URL, src.APIKey, src.Timeout))
		if src.AlternateURL != "" {
			registry.RegisterAlternate(src.Name, fetch.NewHTTPFetcher(src.Name+"-alt", src.AlternateURL, src.APIKey, src.Timeout))
		}
		registry.RegisterValidator(src.Name, fetch.QuoteValidator(src.MaxAge))
	}
	if err := registry.Verify(cfg.Endpoints); err != nil {
		return nil, err
	}

	// 4. Health tracking, restored from the last checkpoint
	tracker := health.NewTracker(cfg.Endpoints)
	if records, err := healthRepo.GetAll(context.Background()); err != nil {
		log.Warn("Failed to restore health records", "error", err)
	} else {
		for _, rec := range records {
			tracker.Restore(rec)
		}
	}

	// 5. Knowledge store, restored from the last checkpoint
	knowStore := knowledge.NewStore(float64(cfg.Knowledge.PriorStrength), log)
	if entries, err := knowRepo.GetAll(context.Background()); err != nil {
		log.Warn("Failed to restore knowledge entries", "error", err)
	} else {
		knowStore.Restore(entries)
	}

	// 6. Cache fallback chain
	chain := cache.NewChain(registry, warm, snapshotRepo, tracker, cfg.Cache.WarmTTL, log)

	// 7. Alerting
	alertMgr := alerting.NewManager(alerting.Config{
		WarningInterval:        cfg.Alerting.WarningInterval,
		RequiredFailedFraction: cfg.Alerting.RequiredFailedFraction,
	}, alertRepo, []alerting.Notifier{alerting.NewLogNotifier(log)}, cfg.Endpoints, log)
	if err := alertMgr.RestoreOpen(context.Background()); err != nil {
		log.Warn("Failed to restore open alerts", "error", err)
	}

	// 8. Healing
	strategies := healing.NewRegistry()
	strategies.Register(healing.NewBackoffRetry(chain))
	strategies.Register(healing.NewServeFromCache(chain))
	strategies.Register(healing.NewReduceScope(chain, 0))
	strategies.Register(healing.NewSwitchProvider(registry, chain))

	healer := healing.NewEngine(healing.Config{
		MaxAttempts:    cfg.Healing.MaxAttempts,
		AttemptTimeout: cfg.Healing.AttemptTimeout,
	}, strategies, knowStore, eventRepo, tracker, alertMgr, log)

	// 9. Monitor
	mon := monitor.New(monitor.Config{
		MaxConcurrent: int64(cfg.Monitor.MaxConcurrent),
	}, cfg.Endpoints, registry, classify.NewClassifier(), tracker, chain, eventRepo, healer, alertMgr, log)

	healthServer := health.NewServer(tracker, alertMgr, eventRepo, knowStore, strategies.IDs(), cfg.Endpoints, cfg.Server.Port)
	checkpointer := worker.NewCheckpointer(cfg.Checkpoint.Interval, tracker, knowStore, healthRepo, knowRepo, log)

	return &Engine{
		cfg:          cfg,
		monitor:      mon,
		healthServer: healthServer,
		checkpointer: checkpointer,
		knowStore:    knowStore,
		db:           db,
		redisClient:  redisClient,
		log:          log,
	}, nil
}

// Start launches every component. It returns immediately; components
// run until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	go func() {
		if err := e.healthServer.Start(); err != nil {
			e.log.Error("Health server failed", "error", err)
		}
	}()

	if e.db != nil {
		e.db.StartMetricsCollector(ctx)
	}

	go e.checkpointer.Start(ctx)
	go e.knowStore.RunRefresher(ctx, e.cfg.Knowledge.RefreshInterval)

	go func() {
		if err := e.monitor.Start(ctx); err != nil {
			e.log.Error("Monitor failed", "error", err)
		}
	}()

	e.started = true
	return nil
}

// Stop shuts the engine down. The caller cancels the Start context
// first so the checkpointer gets its final flush. Redis and the
// database close only after the monitor has drained its in-flight
// checks and the checkpointer has written the final snapshot; late
// writes must never land on a closed pool.
func (e *Engine) Stop(ctx context.Context) error {
	e.log.Info("Stopping engine...")

	e.monitor.Stop()
	if e.started {
		e.checkpointer.Wait()
	}

	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			e.log.Warn("Failed to close Redis", "error", err)
		}
	}

	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.log.Warn("Failed to close database", "error", err)
		}
	}

	return e.healthServer.Stop(ctx)
}
