package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/period"
)

const evaluatorNet = "net_position"

// totalGuard bounds how often the all-time balance alert can repeat.
const totalGuard = 24 * time.Hour

// NetPositionEvaluator compares income minus expenses with the owner's
// ceiling over the current week, the current month and all time. The weekly
// ceiling is a quarter of the configured one.
type NetPositionEvaluator struct {
	prefs        PreferenceReader
	transactions TransactionAggregator
	dispatcher   *Dispatcher
	calendar     period.Calendar
	rules        Rules
	metrics      *metrics.Registry
	logger       *log.Logger
}

func NewNetPositionEvaluator(prefs PreferenceReader, transactions TransactionAggregator, dispatcher *Dispatcher,
	cal period.Calendar, rules Rules, m *metrics.Registry, logger *log.Logger) *NetPositionEvaluator {
	if logger == nil {
		logger = log.Default(log.ComponentAlerts)
	}
	return &NetPositionEvaluator{
		prefs:        prefs,
		transactions: transactions,
		dispatcher:   dispatcher,
		calendar:     cal,
		rules:        rules,
		metrics:      m,
		logger:       logger,
	}
}

type netWindow struct {
	scope   core.Scope
	window  period.Window // zero for all time
	ceiling core.Money
}

func (e *NetPositionEvaluator) windows(ceiling core.Money, now time.Time) []netWindow {
	return []netWindow{
		{scope: core.ScopeWeek, window: e.calendar.Week(now), ceiling: core.Cents(ceiling.Cents / 4)},
		{scope: core.ScopeMonth, window: e.calendar.Month(now), ceiling: ceiling},
		{scope: core.ScopeTotal, ceiling: ceiling},
	}
}

// Evaluate checks every window. Owners without a ceiling are skipped; a
// failing window is logged and does not stop the others.
func (e *NetPositionEvaluator) Evaluate(ctx context.Context, owner string, now time.Time) ([]core.Alert, error) {
	defer e.metrics.Time(evaluatorNet)()

	prefs, err := e.prefs.GetPreferences(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	if prefs.NetIncomeCeiling == nil || prefs.NetIncomeCeiling.Cents <= 0 {
		return nil, nil
	}

	var (
		mu     sync.Mutex
		raised []core.Alert
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.rules.concurrency())
	for _, w := range e.windows(*prefs.NetIncomeCeiling, now) {
		g.Go(func() error {
			a, err := e.evaluateWindow(gctx, owner, w, now)
			if err != nil {
				e.metrics.EvaluatorError(evaluatorNet)
				e.logger.ErrorContext(gctx, "Net position check failed",
					log.FieldOwner, owner,
					log.FieldScope, w.scope,
					log.FieldEvaluator, evaluatorNet,
					log.FieldError, err)
				return nil
			}
			if a != nil {
				mu.Lock()
				raised = append(raised, *a)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return raised, err
	}
	return raised, nil
}

func (e *NetPositionEvaluator) evaluateWindow(ctx context.Context, owner string, w netWindow, now time.Time) (*core.Alert, error) {
	income, expense, err := e.transactions.Totals(ctx, owner, w.window.Start, w.window.End)
	if err != nil {
		return nil, fmt.Errorf("sum %s totals: %w", w.scope, err)
	}
	net := income.Sub(expense)

	var (
		payload core.AlertPayload
		message string
	)
	switch {
	case net.Cents > w.ceiling.Cents:
		payload = core.NetIncomeCeiling{Scope: w.scope, Income: income, Expenses: expense, Net: net, Ceiling: w.ceiling}
		message = fmt.Sprintf("Your %s net income (%s) is above the ceiling of %s", scopeLabel(w.scope), euros(net), euros(w.ceiling))
	case net.Cents < w.ceiling.Cents:
		payload = core.InsufficientBalance{Scope: w.scope, Income: income, Expenses: expense, Net: net, Ceiling: w.ceiling}
		message = fmt.Sprintf("Your %s balance (%s) is below the ceiling of %s", scopeLabel(w.scope), euros(net), euros(w.ceiling))
	default:
		return nil, nil
	}

	draft := core.AlertDraft{
		Owner:    owner,
		Message:  message,
		Payload:  payload,
		DedupKey: "net:" + string(w.scope),
	}

	var (
		a       core.Alert
		created bool
	)
	if w.scope == core.ScopeTotal {
		draft.PeriodStart = now
		a, created, err = e.dispatcher.CreateUnlessRecent(ctx, draft, now.Add(-totalGuard), now)
	} else {
		draft.PeriodStart = w.window.Start
		a, created, err = e.dispatcher.Create(ctx, draft, now)
	}
	if err != nil || !created {
		return nil, err
	}
	return &a, nil
}

func scopeLabel(s core.Scope) string {
	switch s {
	case core.ScopeWeek:
		return "weekly"
	case core.ScopeMonth:
		return "monthly"
	default:
		return "total"
	}
}
