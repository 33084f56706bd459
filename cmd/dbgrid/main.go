// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Main entry point for the coordinator.

package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"dbgrid/internal/cache"
	"dbgrid/internal/config"
	"dbgrid/internal/coordinator"
	"dbgrid/internal/fanout"
	"dbgrid/internal/httpserver"
	"dbgrid/internal/logging"
	"dbgrid/internal/partition"
	"dbgrid/internal/resultcache"
	"dbgrid/internal/sqlengine"
	"dbgrid/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("failed to init logger", zap.Error(err))
	}
	defer logger.Sync()

	info := version.Info()
	logger.Info("starting dbgrid coordinator",
		zap.String("version", info.Version),
		zap.String("commit", info.Commit),
		zap.String("date", info.Date),
	)

	executor, err := sqlengine.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open executor", zap.Error(err))
	}
	defer executor.Close()

	metaCache := cache.New()
	discoverer := partition.New(executor, metaCache)

	resCache := resultcache.New(
		executor,
		logger,
		cfg.CacheOutputBase,
		time.Duration(cfg.CacheTTLMinutes)*time.Minute,
		time.Duration(cfg.CacheAdmissionThresholdMs)*time.Millisecond,
	)

	scheduler := fanout.NewScheduler(
		cfg.FanoutConcurrencyLimit,
		time.Duration(cfg.FanoutTimeoutSeconds)*time.Second,
	)

	svc := &coordinator.Service{
		Executor:   executor,
		Discoverer: discoverer,
		Cache:      resCache,
		Scheduler:  scheduler,
		Logger:     logger,
	}

	srv := httpserver.New(httpserver.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Coordinator: svc,
	})

	go func() {
		<-ctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown error", zap.Error(err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("http server error", zap.Error(err))
	}
	logger.Info("server stopped")
}
