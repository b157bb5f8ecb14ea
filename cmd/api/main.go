package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mavasquez/ferrevia-backend/api/routes"
	"github.com/mavasquez/ferrevia-backend/internal/audit"
	"github.com/mavasquez/ferrevia-backend/internal/buyers"
	"github.com/mavasquez/ferrevia-backend/internal/fulfillment"
	"github.com/mavasquez/ferrevia-backend/internal/inventory"
	"github.com/mavasquez/ferrevia-backend/internal/orders"
	"github.com/mavasquez/ferrevia-backend/internal/payments"
	"github.com/mavasquez/ferrevia-backend/internal/products"
	"github.com/mavasquez/ferrevia-backend/internal/saga"
	"github.com/mavasquez/ferrevia-backend/pkg/config"
	"github.com/mavasquez/ferrevia-backend/pkg/db"
	"github.com/mavasquez/ferrevia-backend/pkg/logger"
	"github.com/mavasquez/ferrevia-backend/pkg/metrics"
	"github.com/mavasquez/ferrevia-backend/pkg/migrate"
	"github.com/mavasquez/ferrevia-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

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
	httpMetrics := metrics.NewHTTPMetrics(registry)

	auditSink := audit.NewSink(dbClient.DB(), cfg.Audit.BufferSize, logg)
	defer auditSink.Close()

	orderRepo := orders.NewRepository(dbClient.DB())
	buyerRepo := buyers.NewRepository(dbClient.DB())
	productRepo := products.NewRepository(dbClient.DB())
	attemptRepo := payments.NewRepository(dbClient.DB())
	movementRepo := inventory.NewRepository(dbClient.DB())

	inventoryService, err := inventory.NewService(dbClient, movementRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	orderService := orders.NewService(dbClient, orderRepo, buyerRepo, productRepo, auditSink, sagaMetrics, logg)

	signer := payments.NewSigner(cfg.Payment.SharedSecret)
	paymentService := payments.NewService(dbClient, attemptRepo, orderRepo, signer, cfg.Payment, logg)

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

	fulfillmentService := fulfillment.NewService(dbClient, orderRepo, auditSink, logg)

	router := routes.NewRouter(routes.Deps{
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		HTTPMetrics: httpMetrics,
		Registry:    registry,
		Orders:      orderService,
		Payments:    paymentService,
		Saga:        coordinator,
		Fulfillment: fulfillmentService,
		Products:    productRepo,
		Inventory:   inventoryService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(stopCtx); err != nil {
			logg.Error(stopCtx, "graceful shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
