package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/credinet/credinet/internal/app"
	"github.com/credinet/credinet/internal/associates"
	"github.com/credinet/credinet/internal/audit"
	"github.com/credinet/credinet/internal/catalog"
	"github.com/credinet/credinet/internal/debts"
	"github.com/credinet/credinet/internal/loans"
	"github.com/credinet/credinet/internal/observability"
	"github.com/credinet/credinet/internal/payments"
	"github.com/credinet/credinet/internal/periods"
	"github.com/credinet/credinet/internal/platform/db"
	"github.com/credinet/credinet/internal/shared"
	"github.com/credinet/credinet/internal/statements"
	"github.com/credinet/credinet/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConn)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	services, err := app.NewServices(cfg, dbpool, redisClient, logger)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		Idempotency: shared.NewIdempotencyStore(dbpool),
		Metrics:     metrics,
		Health: map[string]app.HealthCheck{
			"postgres": func(r *http.Request) error { return dbpool.Ping(r.Context()) },
			"redis":    func(r *http.Request) error { return redisClient.Ping(r.Context()).Err() },
		},
		AssociatesHandler: associates.NewHandler(logger, services.Associates),
		LoansHandler:      loans.NewHandler(logger, services.Loans),
		PaymentsHandler:   payments.NewHandler(logger, services.Payments),
		PeriodsHandler:    periods.NewHandler(logger, services.Periods),
		StatementsHandler: statements.NewHandler(logger, services.Statements),
		DebtsHandler:      debts.NewHandler(logger, services.Debts),
		CatalogHandler:    catalog.NewHandler(logger, services.Rates),
		AuditHandler:      audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool))),
		JobHandler:        jobs.NewHandler(inspector, jobClient, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
