package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetflow/internal/cli"
	apphttp "budgetflow/internal/http"
	"budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/middleware/ratelimit"
	"budgetflow/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	notifier, closeNotifier, err := cli.NewNotifier(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize notifier", log.FieldError, err)
		store.Close()
		os.Exit(1)
	}

	engine := cli.NewEngine(cfg, store, notifier, metrics.New())

	var scheduler *services.CheckScheduler
	if cfg.CheckInterval > 0 {
		scheduler = services.NewCheckScheduler(store, engine.Ledger, engine.Checks,
			services.CheckSchedulerConfig{Interval: cfg.CheckInterval, Clock: engine.Clock},
			logger.WithComponent(log.ComponentService))
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Transactions: engine.Transactions,
		Categories:   engine.Categories,
		Preferences:  engine.Preferences,
		Inbox:        engine.Inbox,
		Checks:       engine.Checks,
		Store:        store,
		Metrics:      engine.Metrics,
		Calendar:     cfg.Calendar(),
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		Logger: logger.WithComponent(log.ComponentHTTP),
		Clock:  engine.Clock,
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if scheduler != nil {
			if err := scheduler.Stop(shutdownCtx); err != nil {
				logger.Error("Check scheduler shutdown error", log.FieldError, err)
			}
		}
		if err := closeNotifier(); err != nil {
			logger.Warn("Notifier close error", log.FieldError, err)
		}
		if err := store.Close(); err != nil {
			logger.Warn("Store close error", log.FieldError, err)
		}
	})

	if scheduler != nil {
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("Failed to start check scheduler", log.FieldError, err)
		}
	} else {
		logger.Info("Scheduled checks disabled", "check_interval", cfg.CheckInterval.String())
	}

	logger.Info("Starting budgetflow server",
		"port", cfg.Port,
		"spend_source", cfg.SpendSource,
		"timezone", cfg.Timezone,
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
