// Package ledger maintains per-owner, per-category, per-month expense totals.
//
// Each bucket changes only through signed increments derived from transaction
// mutations, so for any bucket the stored amount equals the sum of expense
// transactions dated in that month. ResetAll and Rebuild are the explicit
// administrative exceptions.
package ledger

import (
	"context"
	"fmt"
	"time"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/period"
)

// Store is the persistence the ledger needs.
type Store interface {
	AddToLedger(ctx context.Context, owner, categoryID string, year, month int, delta core.Money, now time.Time) error
	SetLedger(ctx context.Context, owner, categoryID string, year, month int, amount core.Money, now time.Time) error
	LedgerAmount(ctx context.Context, owner, categoryID string, year, month int) (core.Money, error)
	LedgerMonth(ctx context.Context, owner string, year, month int) ([]core.LedgerEntry, error)
	EnsureLedgerMonth(ctx context.Context, owner string, year, month int, now time.Time) (int64, error)
	ZeroLedgerMonth(ctx context.Context, owner string, year, month int, now time.Time) (int64, error)
	SumExpenses(ctx context.Context, owner, categoryID string, from, to time.Time) (core.Money, error)
}

type Ledger struct {
	store    Store
	calendar period.Calendar
	metrics  *metrics.Registry
	logger   *log.Logger
	clock    func() time.Time
}

type Option func(*Ledger)

func WithMetrics(m *metrics.Registry) Option { return func(l *Ledger) { l.metrics = m } }
func WithLogger(lg *log.Logger) Option      { return func(l *Ledger) { l.logger = lg } }
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.clock = now } }

func New(store Store, cal period.Calendar, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		calendar: cal,
		logger:   log.Default(log.ComponentLedger),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Delta is one signed bucket increment.
type Delta struct {
	CategoryID string
	Amount     core.Money
	OccurredOn time.Time
}

// Apply adds delta to the bucket of occurredOn's month.
func (l *Ledger) Apply(ctx context.Context, owner, categoryID string, delta core.Money, occurredOn time.Time) error {
	if delta.IsZero() {
		return nil
	}
	year, month := l.calendar.Bucket(occurredOn)
	err := l.store.AddToLedger(ctx, owner, categoryID, year, month, delta, l.clock())
	l.metrics.LedgerUpdate(err)
	if err != nil {
		return fmt.Errorf("apply ledger delta: %w", err)
	}
	l.logger.DebugContext(ctx, "Ledger bucket updated",
		log.FieldOwner, owner,
		log.FieldCategory, categoryID,
		log.FieldYear, year,
		log.FieldMonth, month,
		log.FieldDeltaCents, delta.Cents)
	return nil
}

// Deltas derives the bucket increments a transaction mutation implies.
// Income never touches the ledger.
func (l *Ledger) Deltas(ev core.TransactionWritten) []Delta {
	cur := ev.Current
	switch ev.Change {
	case core.ChangeCreate:
		if !cur.IsExpense() {
			return nil
		}
		return []Delta{{CategoryID: cur.CategoryID, Amount: cur.Amount, OccurredOn: cur.Date}}

	case core.ChangeDelete:
		if !cur.IsExpense() {
			return nil
		}
		return []Delta{{CategoryID: cur.CategoryID, Amount: cur.Amount.Neg(), OccurredOn: cur.Date}}

	case core.ChangeUpdate:
		if ev.Previous == nil {
			return nil
		}
		prev := *ev.Previous
		if prev.IsExpense() && cur.IsExpense() && prev.CategoryID == cur.CategoryID && l.sameBucket(prev.Date, cur.Date) {
			diff := cur.Amount.Sub(prev.Amount)
			if diff.IsZero() {
				return nil
			}
			return []Delta{{CategoryID: cur.CategoryID, Amount: diff, OccurredOn: cur.Date}}
		}
		var out []Delta
		if prev.IsExpense() {
			out = append(out, Delta{CategoryID: prev.CategoryID, Amount: prev.Amount.Neg(), OccurredOn: prev.Date})
		}
		if cur.IsExpense() {
			out = append(out, Delta{CategoryID: cur.CategoryID, Amount: cur.Amount, OccurredOn: cur.Date})
		}
		return out
	}
	return nil
}

// ApplyMutation applies every delta of ev. The first failure is returned
// after the remaining deltas have been attempted.
func (l *Ledger) ApplyMutation(ctx context.Context, ev core.TransactionWritten) error {
	var firstErr error
	for _, d := range l.Deltas(ev) {
		if err := l.Apply(ctx, ev.Current.Owner, d.CategoryID, d.Amount, d.OccurredOn); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *Ledger) sameBucket(a, b time.Time) bool {
	ay, am := l.calendar.Bucket(a)
	by, bm := l.calendar.Bucket(b)
	return ay == by && am == bm
}

// EnsureMonth creates missing zero buckets for now's month without touching
// existing amounts. Read paths call it as the start-of-month hook.
func (l *Ledger) EnsureMonth(ctx context.Context, owner string, now time.Time) error {
	year, month := l.calendar.Bucket(now)
	n, err := l.store.EnsureLedgerMonth(ctx, owner, year, month, l.clock())
	if err != nil {
		return fmt.Errorf("ensure ledger month: %w", err)
	}
	if n > 0 {
		l.logger.InfoContext(ctx, "Opened ledger month",
			log.FieldOwner, owner, log.FieldYear, year, log.FieldMonth, month, "buckets", n)
	}
	return nil
}

// ResetAll zeroes every category bucket of now's month for owner.
func (l *Ledger) ResetAll(ctx context.Context, owner string, now time.Time) error {
	if err := l.EnsureMonth(ctx, owner, now); err != nil {
		return err
	}
	year, month := l.calendar.Bucket(now)
	n, err := l.store.ZeroLedgerMonth(ctx, owner, year, month, l.clock())
	if err != nil {
		return fmt.Errorf("reset ledger month: %w", err)
	}
	l.logger.WarnContext(ctx, "Ledger month reset",
		log.FieldOwner, owner, log.FieldYear, year, log.FieldMonth, month,
		log.FieldOperation, log.OpReset, "buckets", n)
	return nil
}

// Rebuild recomputes one bucket from the raw transactions and returns the
// corrected amount.
func (l *Ledger) Rebuild(ctx context.Context, owner, categoryID string, year, month int) (core.Money, error) {
	w := l.calendar.MonthOf(year, time.Month(month))
	sum, err := l.store.SumExpenses(ctx, owner, categoryID, w.Start, w.End)
	if err != nil {
		return core.Money{}, fmt.Errorf("rebuild ledger bucket: %w", err)
	}
	if err := l.store.SetLedger(ctx, owner, categoryID, year, month, sum, l.clock()); err != nil {
		return core.Money{}, fmt.Errorf("rebuild ledger bucket: %w", err)
	}
	l.logger.InfoContext(ctx, "Ledger bucket rebuilt",
		log.FieldOwner, owner, log.FieldCategory, categoryID,
		log.FieldYear, year, log.FieldMonth, month,
		log.FieldAmountCents, sum.Cents, log.FieldOperation, log.OpRebuild)
	return sum, nil
}

// Spend returns the bucket amount, zero when it does not exist.
func (l *Ledger) Spend(ctx context.Context, owner, categoryID string, year, month int) (core.Money, error) {
	m, err := l.store.LedgerAmount(ctx, owner, categoryID, year, month)
	if err != nil {
		return core.Money{}, fmt.Errorf("read ledger bucket: %w", err)
	}
	return m, nil
}

func (l *Ledger) MonthEntries(ctx context.Context, owner string, year, month int) ([]core.LedgerEntry, error) {
	entries, err := l.store.LedgerMonth(ctx, owner, year, month)
	if err != nil {
		return nil, fmt.Errorf("read ledger month: %w", err)
	}
	return entries, nil
}

// Calendar exposes the bucketing calendar.
func (l *Ledger) Calendar() period.Calendar {
	return l.calendar
}
