package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-slot-booking/internal/api"
	"github.com/hackgods/doctor-slot-booking/internal/auth"
	"github.com/hackgods/doctor-slot-booking/internal/clock"
	"github.com/hackgods/doctor-slot-booking/internal/config"
	"github.com/hackgods/doctor-slot-booking/internal/db"
	"github.com/hackgods/doctor-slot-booking/internal/logging"
	"github.com/hackgods/doctor-slot-booking/internal/metrics"
	redisclient "github.com/hackgods/doctor-slot-booking/internal/redis"
	"github.com/hackgods/doctor-slot-booking/internal/scheduling"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const tokenTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store", cfg.StoreBackend),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	routerCfg := api.RouterConfig{
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
		Env:         cfg.Env,
		Version:     version,
	}

	var repo scheduling.Repository
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if cfg.AutoMigrate {
			if err := db.Migrate(cfg.PostgresDSN); err != nil {
				logger.Fatal("migrations failed", zap.Error(err))
			}
			logger.Info("migrations applied")
		}

		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			logger.Fatal("postgres connection error", zap.Error(err))
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres")

		repo = scheduling.NewPgRepository(pgPool)
		routerCfg.PgPool = pgPool
	default:
		logger.Warn("using in-memory store, data is lost on restart")
		repo = scheduling.NewMemoryRepository()
	}

	var locker scheduling.SlotLocker
	if cfg.RedisEnabled {
		rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer closeRedis(logger, rdb)
		logger.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, cfg.LockWait)
		routerCfg.Redis = rdb
	} else {
		logger.Warn("redis disabled, slot locking relies on the store transaction only")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(reg)
	routerCfg.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})

	routerCfg.Core = scheduling.NewReservationCore(scheduling.Options{
		Repository: repo,
		Locker:     locker,
		Clock:      clock.NewSystem(cfg.Location),
		Logger:     logger,
		Metrics:    bookingMetrics,
	})
	routerCfg.Auth = auth.NewManager(cfg.JWTSecret, tokenTTL)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("api-server stopped")
}

func closeRedis(logger *zap.Logger, rdb *redis.Client) {
	if err := rdb.Close(); err != nil {
		logger.Warn("error closing redis", zap.Error(err))
	}
}
