package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopbot/internal/cache"
	"shopbot/internal/checkout"
	"shopbot/internal/config"
	"shopbot/internal/convo"
	"shopbot/internal/httpserver"
	"shopbot/internal/inventory"
	"shopbot/internal/logging"
	"shopbot/internal/metrics"
	"shopbot/internal/session"
	"shopbot/internal/store"
	"shopbot/internal/wa"
	"shopbot/migrations"

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
	logger.Info("starting shopbot", "env", cfg.AppEnv, "business_id", cfg.BusinessID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	st, err := store.New(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, metricRegistry, logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

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
		return fmt.Errorf("redis ping: %w", err)
	}

	contexts := session.NewContexts(redisClient, cfg.ContextTTL, logger)
	locks := session.NewLocks(redisClient, cfg.LockTTL, logger)

	oracle := inventory.New(st, redisClient, cfg.InventoryCacheTTL, logger)
	if _, err := oracle.Reload(ctx, cfg.BusinessID); err != nil {
		logger.Warn("could not prime stock cache", "error", err)
	}

	waClient, err := wa.New(ctx, wa.Config{
		StorePath: cfg.WhatsAppStorePath,
		LogLevel:  cfg.WhatsAppLogLevel,
		Metrics:   metricRegistry,
	}, logger)
	if err != nil {
		return fmt.Errorf("init whatsapp client: %w", err)
	}
	defer waClient.Close()

	engine := checkout.New(checkout.Deps{
		Carts:      store.Carts{Store: st},
		Inventory:  oracle,
		Ledger:     store.Ledger{Store: st},
		Contexts:   contexts,
		Locks:      locks,
		Notifier:   waClient,
		Directory:  store.Directory{Store: st},
		Businesses: store.Businesses{Store: st},
	}, checkout.Config{
		ContextTTL:      cfg.ContextTTL,
		PaymentLinkBase: cfg.PaymentLinkBase,
	}, metricRegistry, logger)

	router := convo.New(cfg.BusinessID, engine, st, st, waClient, logger)
	waClient.SetMessageProcessor(router)

	waCtx, waCancel := context.WithCancel(ctx)
	defer waCancel()
	go func() {
		if err := waClient.Start(waCtx); err != nil {
			logger.Error("whatsapp client stopped", "error", err)
			stop()
		}
	}()

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, cfg.PublicBasePath)
	httpSrv.SetDependencies(httpserver.Dependencies{
		Store:     st,
		Redis:     redisClient,
		Inventory: oracle,
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
