package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/analytics-service/config"
	"github.com/sifan077/analytics-service/internal/app/cache"
	appmodel "github.com/sifan077/analytics-service/internal/app/model"
	apprepository "github.com/sifan077/analytics-service/internal/app/repository"
	appserver "github.com/sifan077/analytics-service/internal/app/server"
	"github.com/sifan077/analytics-service/internal/app/service"
	inthttp "github.com/sifan077/analytics-service/internal/http/handler"
	"github.com/sifan077/analytics-service/internal/infra/logger"
	infraMongo "github.com/sifan077/analytics-service/internal/infra/mongo"
	infraNATS "github.com/sifan077/analytics-service/internal/infra/nats"
	infraPostgres "github.com/sifan077/analytics-service/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/analytics-service/internal/infra/prometheus"
	infraRedis "github.com/sifan077/analytics-service/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.MustInit(logger.FromApp(cfg.App))
	defer func() { _ = logger.Sync() }()

	log.Info("Configuration loaded successfully",
		zap.String("env", cfg.App.Env),
		zap.Int("port", cfg.App.Port),
		zap.String("event_store", cfg.Storage.Events),
		zap.String("kv_store", cfg.Storage.KV),
		zap.Duration("dashboard_ttl", cfg.Analytics.DashboardTTL),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
	)

	checks := map[string]inthttp.Check{}
	metrics := infraPrometheus.NewMetrics(prometheus.NewRegistry())

	var events apprepository.EventRepository
	switch cfg.Storage.Events {
	case config.DriverPostgres:
		gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
		if err != nil {
			log.Fatal("Failed to open GORM connection", zap.Error(err))
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
		}
		defer sqlDB.Close()

		if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.Event{}); err != nil {
			log.Fatal("Failed to run database migrations", zap.Error(err))
		}

		var reads apprepository.Querier
		if cfg.Postgres.ReadPool {
			pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
			if err != nil {
				log.Fatal("Failed to connect to Postgres", zap.Error(err))
			}
			defer pool.Close()
			reads = pool
		}

		pgEvents := apprepository.NewPostgresEventRepository(gormDB, reads, nil)
		checks["postgres"] = pgEvents.Ping
		events = pgEvents
		log.Info("Connected to Postgres successfully",
			zap.String("host", cfg.Postgres.Host),
			zap.String("database", cfg.Postgres.Database),
		)
	case config.DriverMongo:
		client, db, err := infraMongo.Connect(ctx, cfg.Mongo)
		if err != nil {
			log.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		if err := apprepository.EnsureMongoIndexes(ctx, db); err != nil {
			log.Fatal("Failed to create MongoDB indexes", zap.Error(err))
		}

		mongoEvents := apprepository.NewMongoEventRepository(db, nil)
		checks["mongo"] = mongoEvents.Ping
		events = mongoEvents
		log.Info("Connected to MongoDB successfully", zap.String("database", db.Name()))
	default:
		events = apprepository.NewMemoryEventRepository(nil)
		log.Warn("Using in-memory event store; events are lost on restart")
	}

	var (
		redisClient *redis.Client
		counters    apprepository.CounterRepository
		dashCache   cache.DashboardCache
	)
	switch cfg.Storage.KV {
	case config.DriverRedis:
		redisClient, err = infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }

		counters = apprepository.NewRedisCounterRepository(redisClient)
		dashCache = cache.NewRedisDashboardCache(redisClient, cfg.Analytics.DashboardTTL)
		log.Info("Connected to Redis successfully", zap.String("host", cfg.Redis.Host), zap.Int("db", cfg.Redis.DB))
	default:
		counters = apprepository.NewMemoryCounterRepository()
		dashCache = cache.NewMemoryDashboardCache(cfg.Analytics.MemoryCacheEntries, cfg.Analytics.DashboardTTL)
		log.Warn("Using in-memory counters and dashboard cache")
	}

	eventDeps := service.EventServiceDeps{
		Logger:       logger.Named(log, "ingest"),
		Events:       events,
		Counters:     counters,
		Metrics:      metrics,
		RecentEvents: cfg.Analytics.RecentEvents,
	}

	var natsConn *nats.Conn
	if cfg.NATS.Enabled {
		natsConn, err = infraNATS.Connect(cfg.NATS, logger.Named(log, "nats"))
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsConn.Drain()
		checks["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return errors.New("nats: not connected")
			}
			return nil
		}
		eventDeps.Publisher = service.NewNATSPublisher(natsConn)
		log.Info("Connected to NATS successfully", zap.String("url", natsConn.ConnectedUrl()))
	}

	eventService := service.NewEventService(eventDeps)
	dashboardService := service.NewDashboardService(service.DashboardDeps{
		Logger: logger.Named(log, "dashboard"),
		Cache:  dashCache,
		Aggregator: service.NewAggregator(service.AggregatorDeps{
			Events:   events,
			Metrics:  metrics,
			TopUsers: cfg.Analytics.TopUsers,
		}),
		Metrics: metrics,
	})

	if natsConn != nil && cfg.NATS.Listen {
		listener := service.NewEventListener(natsConn, eventService, logger.Named(log, "nats"))
		if err := listener.Start(); err != nil {
			log.Fatal("Failed to start NATS ingest listener", zap.Error(err))
		}
		defer func() { _ = listener.Stop() }()
		log.Info("Listening for events over NATS", zap.String("subject", appmodel.IngestSubject))
	}

	if cfg.App.Production() {
		promServer := infraPrometheus.NewServer(cfg.Prometheus, metrics.Registry())
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	server := appserver.New(appserver.Dependencies{
		Logger:     logger.Named(log, "http"),
		Metrics:    metrics,
		Events:     eventService,
		Dashboards: dashboardService,
		Redis:      redisClient,
		RateLimit:  cfg.RateLimit,
		Analytics:  cfg.Analytics,
		Checks:     checks,
	})

	go func() {
		<-ctx.Done()
		log.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Graceful shutdown failed", zap.Error(err))
		}
	}()

	log.Info("Starting HTTP server", zap.String("addr", cfg.App.Addr()))
	if err := server.Listen(cfg.App.Addr()); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
