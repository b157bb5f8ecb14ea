package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mavasquez/ferrevia-backend/internal/audit"
	"github.com/mavasquez/ferrevia-backend/internal/cron"
	"github.com/mavasquez/ferrevia-backend/internal/inventory"
	"github.com/mavasquez/ferrevia-backend/internal/orders"
	"github.com/mavasquez/ferrevia-backend/internal/payments"
	"github.com/mavasquez/ferrevia-backend/internal/products"
	"github.com/mavasquez/ferrevia-backend/internal/saga"
	"github.com/mavasquez/ferrevia-backend/pkg/config"
	"github.com/mavasquez/ferrevia-backend/pkg/db"
	"github.com/mavasquez/ferrevia-backend/pkg/logger"
	"github.com/mavasquez/ferrevia-backend/pkg/metrics"
	"github.com/mavasquez/ferrevia-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(context.Background(), cfg.Redis, true)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	sagaMetrics := metrics.NewSagaMetrics(registry)
	cronMetrics := metrics.NewCronJobMetrics(registry)

	auditSink := audit.NewSink(dbClient.DB(), cfg.Audit.BufferSize, logg)
	defer auditSink.Close()

	attemptRepo := payments.NewRepository(dbClient.DB())
	orderRepo := orders.NewRepository(dbClient.DB())
	productRepo := products.NewRepository(dbClient.DB())
	movementRepo := inventory.NewRepository(dbClient.DB())

	inventoryService, err := inventory.NewService(dbClient, movementRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	signer := payments.NewSigner(cfg.Payment.SharedSecret)
	coordinator := saga.NewCoordinator(
		dbClient,
		attemptRepo,
		orderRepo,
		signer,
		redisClient,
		cfg.Payment.NotifyDedupTTL,
		auditSink,
		sagaMetrics,
		logg,
	)

	paymentTTLJob, err := cron.NewPaymentTTLJob(cron.PaymentTTLJobParams{
		Saga: coordinator,
		TTL:  cfg.Payment.InitiatedTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment ttl job", err)
		os.Exit(1)
	}
	recoveryJob, err := cron.NewCompensationRecoveryJob(cron.CompensationRecoveryJobParams{
		Saga: coordinator,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create compensation recovery job", err)
		os.Exit(1)
	}
	driftJob, err := cron.NewLedgerDriftJob(cron.LedgerDriftJobParams{
		Logger:    logg,
		Products:  productRepo,
		Inventory: inventoryService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger drift job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cfg.Cron.LockKey), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(paymentTTLJob, recoveryJob, driftJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logg.Info(logg.WithField(ctx, "interval", cfg.Cron.Interval.String()), "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "cron worker stopped")
}
