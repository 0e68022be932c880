package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetflow/internal/core"
	"budgetflow/internal/ledger"
	"budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/period"
)

const evaluatorThreshold = "threshold"

// SpendSource supplies a category's spend for the month containing now.
type SpendSource interface {
	CategorySpend(ctx context.Context, owner, categoryID string, now time.Time) (core.Money, error)
}

// LedgerSpend reads the ledger bucket.
type LedgerSpend struct {
	Ledger *ledger.Ledger
}

func (s LedgerSpend) CategorySpend(ctx context.Context, owner, categoryID string, now time.Time) (core.Money, error) {
	year, month := s.Ledger.Calendar().Bucket(now)
	return s.Ledger.Spend(ctx, owner, categoryID, year, month)
}

// LiveSpend aggregates the month's expense transactions on every call.
type LiveSpend struct {
	Transactions TransactionAggregator
	Calendar     period.Calendar
}

func (s LiveSpend) CategorySpend(ctx context.Context, owner, categoryID string, now time.Time) (core.Money, error) {
	w := s.Calendar.Month(now)
	return s.Transactions.SumExpenses(ctx, owner, categoryID, w.Start, w.End)
}

// ThresholdEvaluator compares each category's month-to-date spend with its
// limit. Exceeded supersedes warning within one evaluation.
type ThresholdEvaluator struct {
	categories CategoryReader
	spend      SpendSource
	dispatcher *Dispatcher
	calendar   period.Calendar
	rules      Rules
	metrics    *metrics.Registry
	logger     *log.Logger
}

func NewThresholdEvaluator(categories CategoryReader, spend SpendSource, dispatcher *Dispatcher,
	cal period.Calendar, rules Rules, m *metrics.Registry, logger *log.Logger) *ThresholdEvaluator {
	if logger == nil {
		logger = log.Default(log.ComponentAlerts)
	}
	return &ThresholdEvaluator{
		categories: categories,
		spend:      spend,
		dispatcher: dispatcher,
		calendar:   cal,
		rules:      rules,
		metrics:    m,
		logger:     logger,
	}
}

// EvaluateCategory raises at most one spend alert for c. Categories without
// a limit are skipped.
func (e *ThresholdEvaluator) EvaluateCategory(ctx context.Context, owner string, c core.Category, now time.Time) ([]core.Alert, error) {
	if !c.HasLimit() {
		return nil, nil
	}
	spent, err := e.spend.CategorySpend(ctx, owner, c.ID, now)
	if err != nil {
		return nil, fmt.Errorf("read category spend: %w", err)
	}

	pct := core.Percent(spent, c.Limit)
	var (
		payload core.AlertPayload
		band    string
		message string
	)
	switch {
	case pct >= e.rules.ExceededPercent:
		payload = core.SpendExceeded{CategoryID: c.ID, CategoryName: c.Name, Spent: spent, Limit: c.Limit, Percentage: pct}
		band = "exceeded"
		message = fmt.Sprintf("You have exceeded the %s limit for %s", euros(c.Limit), c.Name)
	case pct >= e.rules.WarningPercent:
		payload = core.SpendWarning{CategoryID: c.ID, CategoryName: c.Name, Spent: spent, Limit: c.Limit, Percentage: pct}
		band = "warning"
		message = fmt.Sprintf("You have reached %.0f%% of the limit for %s", pct, c.Name)
	default:
		return nil, nil
	}

	a, created, err := e.dispatcher.Create(ctx, core.AlertDraft{
		Owner:       owner,
		CategoryID:  c.ID,
		Message:     message,
		Payload:     payload,
		DedupKey:    "spend-limit:" + c.ID + ":" + band,
		PeriodStart: e.calendar.Month(now).Start,
	}, now)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}
	return []core.Alert{a}, nil
}

// EvaluateCategoryID loads the category and evaluates it.
func (e *ThresholdEvaluator) EvaluateCategoryID(ctx context.Context, owner, categoryID string, now time.Time) ([]core.Alert, error) {
	c, err := e.categories.GetCategory(ctx, owner, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load category %s: %w", categoryID, err)
	}
	return e.EvaluateCategory(ctx, owner, c, now)
}

// EvaluateAll evaluates every category of owner concurrently. A failing
// category is logged and does not stop the others.
func (e *ThresholdEvaluator) EvaluateAll(ctx context.Context, owner string, now time.Time) ([]core.Alert, error) {
	defer e.metrics.Time(evaluatorThreshold)()

	cats, err := e.categories.ListCategories(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	var (
		mu     sync.Mutex
		raised []core.Alert
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.rules.concurrency())
	for _, c := range cats {
		g.Go(func() error {
			alerts, err := e.EvaluateCategory(gctx, owner, c, now)
			if err != nil {
				e.metrics.EvaluatorError(evaluatorThreshold)
				e.logger.ErrorContext(gctx, "Category threshold check failed",
					log.FieldOwner, owner,
					log.FieldCategory, c.ID,
					log.FieldEvaluator, evaluatorThreshold,
					log.FieldError, err)
				return nil
			}
			mu.Lock()
			raised = append(raised, alerts...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return raised, err
	}
	return raised, nil
}
