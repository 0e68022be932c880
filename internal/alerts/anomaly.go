package alerts

import (
	"context"
	"fmt"
	"time"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/period"
)

const (
	evaluatorUnusual = "unusual"
	evaluatorBurst   = "burst"
)

// AnomalyDetector flags single expenses far above the category's recent
// mean, and bursts of expenses in a short window.
type AnomalyDetector struct {
	categories   CategoryReader
	transactions TransactionAggregator
	dispatcher   *Dispatcher
	calendar     period.Calendar
	rules        Rules
	metrics      *metrics.Registry
	logger       *log.Logger
}

func NewAnomalyDetector(categories CategoryReader, transactions TransactionAggregator, dispatcher *Dispatcher,
	cal period.Calendar, rules Rules, m *metrics.Registry, logger *log.Logger) *AnomalyDetector {
	if logger == nil {
		logger = log.Default(log.ComponentAlerts)
	}
	return &AnomalyDetector{
		categories:   categories,
		transactions: transactions,
		dispatcher:   dispatcher,
		calendar:     cal,
		rules:        rules,
		metrics:      m,
		logger:       logger,
	}
}

// IsUnusual applies the outlier rule: at least minSamples prior expenses and
// amount strictly above factor times their mean. It compares
// amount*count with factor*sum to stay on integer cents.
func IsUnusual(amount, sum core.Money, count, minSamples int, factor float64) bool {
	if count < minSamples || count == 0 {
		return false
	}
	return float64(amount.Cents)*float64(count) > factor*float64(sum.Cents)
}

// CheckUnusual compares tx with the same category's expenses dated in the
// lookback window before tx.Date.
func (d *AnomalyDetector) CheckUnusual(ctx context.Context, tx core.Transaction, now time.Time) ([]core.Alert, error) {
	defer d.metrics.Time(evaluatorUnusual)()
	if !tx.IsExpense() {
		return nil, nil
	}

	w := period.TrailingMonths(tx.Date, d.rules.AnomalyLookbackMonths)
	sum, count, err := d.transactions.ExpenseStats(ctx, tx.Owner, tx.CategoryID, tx.ID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("load category history: %w", err)
	}
	if !IsUnusual(tx.Amount, sum, count, d.rules.AnomalyMinSamples, d.rules.AnomalyFactor) {
		return nil, nil
	}

	name := tx.CategoryID
	if c, err := d.categories.GetCategory(ctx, tx.Owner, tx.CategoryID); err == nil {
		name = c.Name
	} else {
		d.logger.WarnContext(ctx, "Category lookup failed, using id in alert",
			log.FieldOwner, tx.Owner, log.FieldCategory, tx.CategoryID, log.FieldError, err)
	}

	avg := core.Cents(sum.Cents / int64(count))
	a, created, err := d.dispatcher.Create(ctx, core.AlertDraft{
		Owner:      tx.Owner,
		CategoryID: tx.CategoryID,
		Message:    fmt.Sprintf("Unusual expense of %s in %s", euros(tx.Amount), name),
		Payload: core.UnusualExpense{
			TransactionID: tx.ID,
			CategoryID:    tx.CategoryID,
			CategoryName:  name,
			Amount:        tx.Amount,
			Average:       avg,
			Samples:       count,
		},
		DedupKey:    "unusual:" + tx.ID,
		PeriodStart: d.calendar.Month(tx.Date).Start,
	}, now)
	if err != nil || !created {
		return nil, err
	}
	return []core.Alert{a}, nil
}

// CheckBurst raises one alert when more than BurstThreshold expenses are
// dated from now-BurstWindow onwards, unless one was raised within the window.
func (d *AnomalyDetector) CheckBurst(ctx context.Context, owner string, now time.Time) ([]core.Alert, error) {
	defer d.metrics.Time(evaluatorBurst)()

	w := period.Trailing(now, d.rules.BurstWindow)
	count, err := d.transactions.CountExpenses(ctx, owner, w.Start, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("count recent expenses: %w", err)
	}
	if count <= d.rules.BurstThreshold {
		return nil, nil
	}

	hours := int(d.rules.BurstWindow / time.Hour)
	a, created, err := d.dispatcher.CreateUnlessRecent(ctx, core.AlertDraft{
		Owner:       owner,
		Message:     fmt.Sprintf("More than %d expenses were recorded in the last %dh", d.rules.BurstThreshold, hours),
		Payload:     core.BurstExpense{Count: count, WindowHours: hours},
		DedupKey:    "burst",
		PeriodStart: now,
	}, w.Start, now)
	if err != nil || !created {
		return nil, err
	}
	return []core.Alert{a}, nil
}
