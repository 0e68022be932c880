package main

import (
	"context"
	"errors"
	"os"
	"time"

	"budgetflow/internal/amqp"
	"budgetflow/internal/cli"
	"budgetflow/internal/log"
	"budgetflow/internal/notify"
	"budgetflow/internal/sheets"
	gsheet "budgetflow/internal/sheets/google"
	"budgetflow/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentNotifier)
	logger.Info("Starting budgetflow-notifier", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the notifier worker")
		os.Exit(1)
	}

	sinks := []notify.Sink{notify.NewLogSink(logger)}
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		sinks = append(sinks, sheets.NewAlertLog(client, cfg.GoogleAlertsSheetName))
		logger.Info("Google Sheets alert log enabled",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleAlertsSheetName)
	} else {
		logger.Info("Google Sheets alert log disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	fanout := notify.NewFanout(logger.WithComponent(log.ComponentNotifier), sinks...)
	notificationWorker := worker.NewNotificationWorker(fanout, logger)

	consumerDone := make(chan struct{})
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		select {
		case <-consumerDone:
		case <-shutdownCtx.Done():
		}
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", log.FieldError, err)
		}
	})

	go func() {
		defer close(consumerDone)
		err := amqpClient.ConsumeAlertNotifications(ctx, notificationWorker.HandleAlertNotification)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Notifier stopped")
}
