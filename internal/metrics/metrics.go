// Package metrics exposes Prometheus counters for the ledger and alert engine.
// All methods are safe to call on a nil *Registry, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

type Registry struct {
	reg *prometheus.Registry

	AlertsCreated      *prometheus.CounterVec
	AlertsDeduplicated *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	LedgerUpdates      *prometheus.CounterVec
	EvaluatorErrors    *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		AlertsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budgetflow_alerts_created_total",
				Help: "Alerts persisted, by type",
			},
			[]string{"type"},
		),
		AlertsDeduplicated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budgetflow_alerts_deduplicated_total",
				Help: "Alert drafts dropped because an equivalent alert already existed, by type",
			},
			[]string{"type"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budgetflow_notifications_total",
				Help: "Outbound notification attempts, by result",
			},
			[]string{"result"},
		),
		LedgerUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budgetflow_ledger_updates_total",
				Help: "Ledger bucket increments, by result",
			},
			[]string{"result"},
		),
		EvaluatorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budgetflow_evaluator_errors_total",
				Help: "Swallowed evaluator failures, by evaluator",
			},
			[]string{"evaluator"},
		),
		EvaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "budgetflow_evaluation_duration_seconds",
				Help:    "Evaluator run time in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"evaluator"},
		),
	}

	r.reg.MustRegister(
		r.AlertsCreated,
		r.AlertsDeduplicated,
		r.Notifications,
		r.LedgerUpdates,
		r.EvaluatorErrors,
		r.EvaluationDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) AlertCreated(alertType string) {
	if r == nil {
		return
	}
	r.AlertsCreated.WithLabelValues(alertType).Inc()
}

func (r *Registry) AlertDeduplicated(alertType string) {
	if r == nil {
		return
	}
	r.AlertsDeduplicated.WithLabelValues(alertType).Inc()
}

func (r *Registry) Notification(result string) {
	if r == nil {
		return
	}
	r.Notifications.WithLabelValues(result).Inc()
}

func (r *Registry) LedgerUpdate(err error) {
	if r == nil {
		return
	}
	r.LedgerUpdates.WithLabelValues(resultOf(err)).Inc()
}

func (r *Registry) EvaluatorError(evaluator string) {
	if r == nil {
		return
	}
	r.EvaluatorErrors.WithLabelValues(evaluator).Inc()
}

// Time returns a func that records the elapsed time for evaluator when called.
func (r *Registry) Time(evaluator string) func() {
	if r == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		r.EvaluationDuration.WithLabelValues(evaluator).Observe(time.Since(start).Seconds())
	}
}

func resultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
