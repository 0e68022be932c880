// Package alerts evaluates spending against limits, history and income
// ceilings, and records the resulting alerts at most once per period.
package alerts

import (
	"context"
	"time"

	"budgetflow/internal/core"
)

type AlertStore interface {
	InsertAlert(ctx context.Context, a core.Alert) error
	AlertExists(ctx context.Context, owner string, t core.AlertType, dedupKey string, since time.Time) (bool, error)
}

type PreferenceReader interface {
	GetPreferences(ctx context.Context, owner string) (core.Preferences, error)
}

type CategoryReader interface {
	GetCategory(ctx context.Context, owner, id string) (core.Category, error)
	ListCategories(ctx context.Context, owner string) ([]core.Category, error)
}

// TransactionAggregator answers the aggregate queries the evaluators need.
// A zero time bound is open.
type TransactionAggregator interface {
	SumExpenses(ctx context.Context, owner, categoryID string, from, to time.Time) (core.Money, error)
	ExpenseStats(ctx context.Context, owner, categoryID, excludeID string, from, to time.Time) (core.Money, int, error)
	CountExpenses(ctx context.Context, owner string, from, to time.Time) (int, error)
	Totals(ctx context.Context, owner string, from, to time.Time) (income, expense core.Money, err error)
}

// Notifier delivers a rendered alert to the owner.
type Notifier interface {
	Send(ctx context.Context, n core.Notification) error
}

// Rules holds the tunable thresholds of every evaluator.
type Rules struct {
	WarningPercent        float64
	ExceededPercent       float64
	AnomalyFactor         float64
	AnomalyMinSamples     int
	AnomalyLookbackMonths int
	BurstThreshold        int
	BurstWindow           time.Duration
	Concurrency           int
}

func DefaultRules() Rules {
	return Rules{
		WarningPercent:        70,
		ExceededPercent:       100,
		AnomalyFactor:         1.5,
		AnomalyMinSamples:     3,
		AnomalyLookbackMonths: 3,
		BurstThreshold:        10,
		BurstWindow:           24 * time.Hour,
		Concurrency:           4,
	}
}

func (r Rules) concurrency() int {
	if r.Concurrency < 1 {
		return 1
	}
	return r.Concurrency
}
