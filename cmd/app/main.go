package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopee-dash/internal/auth"
	"shopee-dash/internal/cache"
	"shopee-dash/internal/config"
	"shopee-dash/internal/httpserver"
	"shopee-dash/internal/logging"
	"shopee-dash/internal/metrics"
	"shopee-dash/internal/registry"
	"shopee-dash/internal/repo"
	"shopee-dash/internal/shopee"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting shopee-dash", "env", cfg.AppEnv, "store", cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	store, err := repo.Open(ctx, cfg.Store(), logger, repo.WithMetrics(metricRegistry))
	if err != nil {
		return fmt.Errorf("init account store: %w", err)
	}
	defer store.Close()

	var slot cache.Slot
	if cfg.RedisAddr != "" {
		redisClient := cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
		slot = redisClient.Slot(cache.DefaultSlotName)
	} else {
		slot = cache.NewFileSlot(cfg.CacheFilePath)
	}
	logger.Info("snapshot cache configured", "slot", slot.Name())

	resolver := shopee.New(shopee.Config{
		StatusURL: cfg.ShopeeStatusURL,
		PageURL:   cfg.ShopeePageURL,
		RelayURL:  cfg.ShopeeRelayURL,
		UserAgent: cfg.ShopeeUserAgent,
		Timeout:   cfg.ShopeeTimeout,
	}, logger, metricRegistry)

	accounts := registry.New(store, resolver, logger,
		registry.WithCache(slot),
		registry.WithMetrics(metricRegistry),
	)
	if err := accounts.Refresh(ctx); err != nil {
		logger.Warn("initial account load degraded", "error", err, "state", accounts.View().State)
	}

	gate, err := auth.NewGate(cfg.DashboardPassword, cfg.AuthSecret, cfg.AuthTokenTTL)
	if err != nil {
		return fmt.Errorf("init login gate: %w", err)
	}
	if !gate.Enabled() {
		logger.Warn("DASHBOARD_PASSWORD is empty; the account API is open to anyone who can reach it")
	}
	if cfg.AuthSecret == "" {
		logger.Warn("AUTH_SECRET is empty; sessions end when the process restarts")
	}

	// The relay runs the direct stages only, so pointing SHOPEE_RELAY_URL at
	// this server cannot loop.
	relay := shopee.NewRelayHandler(resolver, logger, metricRegistry)

	httpSrv := httpserver.New(httpserver.Options{
		Addr:           cfg.HTTPListenAddr,
		BasePath:       cfg.PublicBasePath,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger, metricRegistry, httpserver.Dependencies{
		Accounts: accounts,
		Gate:     gate,
		Relay:    relay,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
