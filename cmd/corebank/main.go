package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corebank/corebank/internal/account"
	"github.com/corebank/corebank/internal/app"
	"github.com/corebank/corebank/internal/lock"
	"github.com/corebank/corebank/internal/observability"
	"github.com/corebank/corebank/internal/platform/cache"
	"github.com/corebank/corebank/internal/platform/db"
	"github.com/corebank/corebank/internal/shared"
	"github.com/corebank/corebank/internal/transaction"
	"github.com/corebank/corebank/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	locks := lock.NewCoordinator(redisClient, cfg.LockWait, cfg.LockLease)
	auditLogger := shared.NewAuditLogger(dbpool)

	usersRepo := users.NewRepository(dbpool)
	usersHandler := users.NewHandler(logger, usersRepo)

	accountRepo := account.NewRepository(dbpool)
	accountService := account.NewService(accountRepo, usersRepo, locks, auditLogger, logger)
	accountHandler := account.NewHandler(logger, accountService)

	ledgerRepo := transaction.NewRepository(dbpool)
	engine := transaction.NewService(ledgerRepo, accountRepo, usersRepo, locks, logger, metrics)
	transactionHandler := transaction.NewHandler(engine, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		UsersHandler:       usersHandler,
		AccountHandler:     accountHandler,
		TransactionHandler: transactionHandler,
		Metrics:            metrics,
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
