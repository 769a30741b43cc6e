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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-slot-booking/internal/config"
	"github.com/hackgods/doctor-slot-booking/internal/db"
	"github.com/hackgods/doctor-slot-booking/internal/logging"
	"github.com/hackgods/doctor-slot-booking/internal/metrics"
	"github.com/hackgods/doctor-slot-booking/internal/scheduling"
)

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

	if cfg.StoreBackend != config.BackendPostgres {
		logger.Fatal("audit-worker needs the postgres store", zap.String("store", cfg.StoreBackend))
	}

	logger.Info("audit-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.AuditInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	reg := prometheus.NewRegistry()
	auditor := scheduling.NewAuditor(scheduling.NewPgRepository(pgPool), logger, metrics.NewBookingMetrics(reg))

	// Metrics only; the worker has no other HTTP surface.
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(ctx)
	}()

	// Run once at startup
	runOnce(rootCtx, logger, auditor)

	ticker := time.NewTicker(cfg.AuditInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping audit worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, auditor)
		}
	}
}

func runOnce(ctx context.Context, logger *zap.Logger, auditor *scheduling.Auditor) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	report, err := auditor.Run(runCtx)
	if err != nil {
		logger.Error("audit run error", zap.Error(err))
		return
	}

	logger.Info("audit run completed",
		zap.Int("slots_checked", report.SlotsChecked),
		zap.Int("violations", len(report.Violations)),
		zap.Duration("took", time.Since(start)),
	)
}
