package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/archive"
	"github.com/Swrve/swrve-smarttv-sdk/internal/clock"
	"github.com/Swrve/swrve-smarttv-sdk/internal/config"
	"github.com/Swrve/swrve-smarttv-sdk/internal/database"
	"github.com/Swrve/swrve-smarttv-sdk/internal/events"
	"github.com/Swrve/swrve-smarttv-sdk/internal/geo"
	"github.com/Swrve/swrve-smarttv-sdk/internal/httpserver"
	"github.com/Swrve/swrve-smarttv-sdk/internal/metrics"
	"github.com/Swrve/swrve-smarttv-sdk/internal/middleware"
	"github.com/Swrve/swrve-smarttv-sdk/internal/network"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"github.com/Swrve/swrve-smarttv-sdk/sdk"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting swrve tv host",
		zap.Int("app_id", cfg.SDK.AppID),
		zap.String("stack", cfg.SDK.Stack),
		zap.String("storage", cfg.Storage.Driver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(cfg.Metrics.Namespace)
	}

	checks := make(map[string]httpserver.HealthCheck)
	var closers []func() error

	backend, err := openStorage(ctx, cfg, logger, checks, &closers)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("failed to close resource", zap.Error(err))
			}
		}
	}()

	var archiver events.Archiver
	if cfg.Archive.Enabled {
		conn, err := database.OpenClickHouse(ctx, cfg.Archive, logger)
		if err != nil {
			logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
		}
		closers = append(closers, conn.Close)
		checks["clickhouse"] = conn.Ping

		ch := archive.NewClickHouseArchive(conn, cfg.Archive.Table, cfg.Device.ID, clock.Real{}, logger)
		if err := ch.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to prepare archive table", zap.Error(err))
		}
		archiver = ch
	}

	var resolver *geo.Resolver
	if cfg.Geo.Enabled {
		provider, err := geo.NewMaxMindProvider(cfg.Geo.DatabasePath)
		if err != nil {
			// Region stays whatever the device config says
			logger.Warn("geo lookup disabled", zap.Error(err))
		} else {
			resolver = geo.NewResolver(provider, 1024, time.Hour, clock.Real{}, logger)
			closers = append(closers, resolver.Close)
		}
	}

	monitor := network.NewMonitor(logger)
	if cfg.Network.ProbeURL != "" {
		monitor.StartProbe(cfg.Network.ProbeURL, cfg.Network.ProbeInterval, nil)
	}
	defer monitor.Stop()

	client, err := sdk.New(cfg.SDK, sdk.Dependencies{
		Storage:  backend,
		Platform: sdk.NewStaticPlatform(cfg.Device),
		Network:  monitor,
		Archive:  archiver,
		Geo:      resolver,
		Logger:   logger,
		Metrics:  m,
	})
	if err != nil {
		logger.Fatal("failed to create sdk", zap.Error(err))
	}
	if err := client.Init(ctx); err != nil {
		logger.Fatal("failed to initialize sdk", zap.Error(err))
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		rateLimitMW := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger, m)
		handler := httpserver.NewServer(&httpserver.Dependencies{
			SDK:         client,
			Checks:      checks,
			Config:      cfg,
			Logger:      logger,
			Metrics:     m,
			RateLimiter: rateLimitMW,
		})

		srv = &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 2 * time.Second,
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}

		go func() {
			logger.Info("diagnostics server starting", zap.String("addr", cfg.Server.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("diagnostics server error", zap.Error(err))
			}
		}()

		go func() {
			ticker := time.NewTicker(1 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					rateLimitMW.CleanupIPLimiters()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", zap.Error(err))
		}
	}

	// Persists the queue before storage is closed
	client.Shutdown(shutdownCtx)

	cancel()

	logger.Info("stopped")
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger, checks map[string]httpserver.HealthCheck, closers *[]func() error) (storage.Backend, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		return storage.NewMemoryBackend(), nil

	case config.StorageSQLite:
		b, err := database.OpenSQLite(ctx, cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, b.Close)
		return b, nil

	case config.StorageRedis:
		db, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, db.Close)
		checks["redis"] = db.Health
		return db.Backend(cfg.Storage.Namespace, cfg.Storage.RedisTTL), nil

	case config.StoragePostgres:
		db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, db.Close)
		checks["postgres"] = db.Health
		b, err := db.Backend(ctx, cfg.Storage.Namespace)
		if err != nil {
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
