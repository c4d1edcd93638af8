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

	"github.com/esgari/balance360/internal/app"
	balancehttp "github.com/esgari/balance360/internal/balance/http"
	"github.com/esgari/balance360/internal/observability"
	"github.com/esgari/balance360/jobs"
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

	services, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}
	defer services.Close()

	metrics := observability.NewMetrics()
	if err := balancehttp.SetupCacheMetrics(metrics.Registerer()); err != nil {
		logger.Warn("register cache metrics", slog.Any("error", err))
	}

	handlerOpts := []balancehttp.Option{balancehttp.WithObserver(metrics)}
	if h := services.RunHistory(); h != nil {
		handlerOpts = append(handlerOpts, balancehttp.WithHistory(h))
	}
	if inv := services.CacheInvalidation(); inv != nil {
		handlerOpts = append(handlerOpts, balancehttp.WithInvalidation(inv))
	}
	balanceHandler, err := balancehttp.NewHandler(logger, services.Balance, handlerOpts...)
	if err != nil {
		logger.Error("init balance handler", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(cfg.QueueOptions())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		BalanceHandler: balanceHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
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
