package cli

import (
	"context"
	"fmt"
	"time"

	"budgetflow/internal/alerts"
	"budgetflow/internal/amqp"
	"budgetflow/internal/config"
	"budgetflow/internal/ledger"
	"budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/notify"
	"budgetflow/internal/services"
	"budgetflow/internal/storage"
)

// Engine is the wired ledger and alert subsystem over one store.
type Engine struct {
	Store        *storage.SQLiteStore
	Metrics      *metrics.Registry
	Ledger       *ledger.Ledger
	Dispatcher   *alerts.Dispatcher
	Threshold    *alerts.ThresholdEvaluator
	Anomaly      *alerts.AnomalyDetector
	NetPosition  *alerts.NetPositionEvaluator
	Transactions *services.TransactionService
	Categories   *services.CategoryService
	Preferences  *services.PreferencesService
	Inbox        *services.AlertInbox
	Checks       *services.CheckService

	// Clock is the time source shared by every component.
	Clock func() time.Time
}

type EngineOption func(*Engine)

// WithClock replaces time.Now in the ledger and every service.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.Clock = now }
}

// Rules maps the alert settings of cfg.
func Rules(cfg *config.Config) alerts.Rules {
	return alerts.Rules{
		WarningPercent:        cfg.WarningPercent,
		ExceededPercent:       cfg.ExceededPercent,
		AnomalyFactor:         cfg.AnomalyFactor,
		AnomalyMinSamples:     cfg.AnomalyMinSamples,
		AnomalyLookbackMonths: cfg.AnomalyLookbackMonths,
		BurstThreshold:        cfg.BurstThreshold,
		BurstWindow:           cfg.BurstWindow,
		Concurrency:           cfg.EvalConcurrency,
	}
}

// NewEngine wires every component. A nil notifier stores alerts without
// delivering them.
func NewEngine(cfg *config.Config, store *storage.SQLiteStore, notifier alerts.Notifier, m *metrics.Registry,
	opts ...EngineOption) *Engine {
	e := &Engine{Store: store, Metrics: m, Clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	cal := cfg.Calendar()
	rules := Rules(cfg)

	l := ledger.New(store, cal,
		ledger.WithClock(e.Clock),
		ledger.WithMetrics(m),
		ledger.WithLogger(log.Default(log.ComponentLedger)))
	disp := alerts.NewDispatcher(store, store, notifier,
		alerts.WithDispatcherMetrics(m),
		alerts.WithDispatcherLogger(log.Default(log.ComponentAlerts)))

	var spend alerts.SpendSource = alerts.LedgerSpend{Ledger: l}
	if cfg.SpendSource == "live" {
		spend = alerts.LiveSpend{Transactions: store, Calendar: cal}
	}

	alertsLog := log.Default(log.ComponentAlerts)
	e.Ledger = l
	e.Dispatcher = disp
	e.Threshold = alerts.NewThresholdEvaluator(store, spend, disp, cal, rules, m, alertsLog)
	e.Anomaly = alerts.NewAnomalyDetector(store, store, disp, cal, rules, m, alertsLog)
	e.NetPosition = alerts.NewNetPositionEvaluator(store, store, disp, cal, rules, m, alertsLog)

	svcLog := log.Default(log.ComponentService)
	e.Transactions = services.NewTransactionService(store, l, e.Threshold, e.Anomaly,
		services.WithTransactionLogger(svcLog),
		services.WithTransactionClock(e.Clock))
	e.Categories = services.NewCategoryService(store, l, e.Threshold, svcLog,
		services.WithCategoryClock(e.Clock))
	e.Preferences = services.NewPreferencesService(store, services.WithPreferencesClock(e.Clock))
	e.Inbox = services.NewAlertInbox(store)
	e.Checks = services.NewCheckService(e.Threshold, e.NetPosition, svcLog)
	return e
}

// NewNotifier returns the outbound notifier: AMQP behind a circuit breaker
// when AMQP_URL is set, the log notifier otherwise. The returned close func
// releases the broker connection.
func NewNotifier(ctx context.Context, cfg *config.Config, logger *log.Logger) (alerts.Notifier, func() error, error) {
	notifierLog := logger.WithComponent(log.ComponentNotifier)
	if cfg.AMQPURL == "" {
		notifierLog.InfoContext(ctx, "AMQP disabled, alerts are delivered to the log")
		return notify.NewLogNotifier(notifierLog), func() error { return nil }, nil
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return nil, nil, fmt.Errorf("connect amqp: %w", err)
	}
	breaker := notify.NewBreakerNotifier(notify.NewAMQPNotifier(client), notify.BreakerSettings{
		Name:     "amqp-notifier",
		Failures: uint32(cfg.NotifyBreakerFailures),
		Timeout:  cfg.NotifyBreakerTimeout,
	}, notifierLog)
	return breaker, client.Close, nil
}
