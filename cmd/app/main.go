package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorod-bot/internal/cache"
	"gorod-bot/internal/config"
	"gorod-bot/internal/convo"
	"gorod-bot/internal/fanout"
	"gorod-bot/internal/httpserver"
	"gorod-bot/internal/logging"
	"gorod-bot/internal/metrics"
	"gorod-bot/internal/pricing"
	"gorod-bot/internal/provider"
	"gorod-bot/internal/repo"
	"gorod-bot/internal/sweeper"
	"gorod-bot/internal/tg"
	"gorod-bot/internal/wa"
	"gorod-bot/migrations"

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
	logger.Info("starting gorod-bot", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var repository repo.Repository
	if cfg.DatabaseURL != "" {
		repository, err = repo.NewPostgres(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	} else {
		repository, err = repo.NewSQLite(ctx, cfg.SQLitePath, logger)
	}
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
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
		logger.Warn("redis ping failed", "error", err)
	}

	waClient := wa.New(wa.Config{
		BaseURL:    cfg.WABaseURL,
		InstanceID: cfg.WAInstanceID,
		Token:      cfg.WAToken,
		Timeout:    cfg.WATimeout,
	}, logger, metricRegistry)

	tgClient, err := tg.New(cfg.TGBotToken, logger, metricRegistry)
	if err != nil {
		return fmt.Errorf("init telegram client: %w", err)
	}

	estimator := pricing.NewEstimator(cfg.TaxiBaseFare)

	orderFanout := fanout.New(repository, tgClient, fanout.Config{
		TaxiGroupID:     cfg.TaxiGroupID,
		CafeGroupID:     cfg.CafeGroupID,
		PharmacyGroupID: cfg.PharmacyGroupID,
		PorterGroupID:   cfg.PorterGroupID,
		ShopGroupID:     cfg.ShopGroupID,
		CafeTimeout:     cfg.CafeTimeout,
		PharmacyTimeout: cfg.PharmacyTimeout,
		TaxiTimeout:     cfg.TaxiTimeout,
	}, logger, metricRegistry)

	convoEngine := convo.New(repository, waClient, tgClient, orderFanout, estimator, redisClient, metricRegistry, logger, convo.EngineConfig{
		PharmacyDeliveryFee: cfg.PharmacyDeliveryFee,
	})

	providerRouter := provider.New(repository, tgClient, waClient, orderFanout, metricRegistry, logger, provider.Config{
		TaxiCommission:       cfg.TaxiCommission,
		PorterCommission:     cfg.PorterCommission,
		ShopperCommission:    cfg.ShopperCommission,
		CafeCommissionPct:    cfg.CafeCommissionPct,
		PharmacyDeliveryFee:  cfg.PharmacyDeliveryFee,
		MinDriverBalance:     cfg.MinDriverBalance,
		CustomPriceThreshold: cfg.CustomPriceThreshold,
		CancelRefundWindow:   cfg.CancelRefundWindow,
		PromoMode:            cfg.PromoMode,
	})

	expirySweeper := sweeper.New(repository, waClient, cfg.SweepInterval, metricRegistry, logger)
	go expirySweeper.Run(ctx)

	httpSrv := httpserver.New(cfg.ListenAddr, logger, metricRegistry, httpserver.Handlers{
		WhatsAppWebhook: wa.NewWebhookHandler(logger, metricRegistry, cfg.WAWebhookToken, convoEngine),
		TelegramWebhook: tg.NewWebhookHandler(logger, metricRegistry, cfg.TGWebhookSecret, providerRouter),
	}, cfg.BasePath, cfg.AdminToken)
	httpSrv.SetDependencies(httpserver.Dependencies{
		Repository: repository,
		Redis:      redisClient,
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
