package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeynil/JobEscrowService/internal/api"
	"github.com/honeynil/JobEscrowService/internal/config"
	"github.com/honeynil/JobEscrowService/internal/handler"
	"github.com/honeynil/JobEscrowService/internal/infrastructure/kafka"
	"github.com/honeynil/JobEscrowService/internal/infrastructure/locks"
	"github.com/honeynil/JobEscrowService/internal/infrastructure/redis"
	"github.com/honeynil/JobEscrowService/internal/observability"
	"github.com/honeynil/JobEscrowService/internal/repository"
	"github.com/honeynil/JobEscrowService/internal/repository/memory"
	core "github.com/honeynil/JobEscrowService/internal/repository/postgres"
	service "github.com/honeynil/JobEscrowService/internal/services"
	_ "github.com/lib/pq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	// Инициализируем логи, метрики, трейсы
	shutdownTracing, metricsHandler := observability.Setup(ctx, cfg.ServiceName, cfg.LogLevel, cfg.OTLPEndpoint)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("failed to shut down tracing", "error", err)
		}
	}()

	var store repository.Store
	switch cfg.Storage {
	case config.StorageMemory:
		slog.Warn("using in-memory storage, state is lost on restart")
		store = memory.NewStore()
	default:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			slog.Error("failed to open Postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			slog.Error("failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		if err := core.Migrate(ctx, db); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		store = core.NewStore(db)
	}

	deps := service.Deps{
		Store:       store,
		Locker:      locks.NewKeyed(false),
		EventsTopic: cfg.EventsTopic,
	}

	if cfg.RedisAddr != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		deps.Cache = redisClient
		deps.Locker = redis.NewLocker(redisClient, cfg.JobLockTTL)
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()
		deps.Producer = producer
	}

	if cfg.FundingMode != "simulated" {
		slog.Warn("unknown funding mode, falling back to simulated gateway", "funding_mode", cfg.FundingMode)
	}
	deps.Gateway = service.NewSimulatedGateway()

	svc := service.NewMarketplaceService(deps)

	if len(cfg.KafkaBrokers) > 0 {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.FundingTopic, cfg.KafkaGroupID, svc)
		go consumer.Consume(ctx)
		defer consumer.Close()
	}

	router := api.SetupRouter(handler.NewHandler(svc), api.RouterConfig{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        metricsHandler,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}
