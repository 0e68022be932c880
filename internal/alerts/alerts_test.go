package alerts

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetflow/internal/core"
	"budgetflow/internal/ledger"
	"budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/period"
	"budgetflow/internal/storage"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []core.Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg core.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fixture struct {
	store    *storage.SQLiteStore
	ledger   *ledger.Ledger
	notifier *recordingNotifier
	disp     *Dispatcher
	cal      period.Calendar
	metrics  *metrics.Registry
	seq      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cal := period.NewCalendar(time.UTC, time.Monday)
	m := metrics.New()
	n := &recordingNotifier{}
	f := &fixture{
		store:    s,
		ledger:   ledger.New(s, cal, ledger.WithLogger(log.Discard())),
		notifier: n,
		cal:      cal,
		metrics:  m,
	}
	f.disp = NewDispatcher(s, s, n, WithDispatcherMetrics(m), WithDispatcherLogger(log.Discard()))

	require.NoError(t, s.SavePreferences(context.Background(), core.Preferences{
		Owner:         "u1",
		Email:         "u1@example.com",
		Notifications: core.DefaultNotificationSettings(),
	}, time.Now()))
	return f
}

func (f *fixture) threshold() *ThresholdEvaluator {
	return NewThresholdEvaluator(f.store, LedgerSpend{Ledger: f.ledger}, f.disp, f.cal, DefaultRules(), f.metrics, log.Discard())
}

func (f *fixture) anomaly() *AnomalyDetector {
	return NewAnomalyDetector(f.store, f.store, f.disp, f.cal, DefaultRules(), f.metrics, log.Discard())
}

func (f *fixture) net() *NetPositionEvaluator {
	return NewNetPositionEvaluator(f.store, f.store, f.disp, f.cal, DefaultRules(), f.metrics, log.Discard())
}

func (f *fixture) addTx(t *testing.T, cat string, kind core.Kind, cents int64, at time.Time) core.Transaction {
	t.Helper()
	f.seq++
	tx := core.Transaction{
		ID: fmt.Sprintf("t%d", f.seq), Owner: "u1", CategoryID: cat, Kind: kind,
		Amount: core.Cents(cents), Date: at, Description: "tx", CreatedAt: at, UpdatedAt: at,
	}
	ctx := context.Background()
	require.NoError(t, f.store.CreateTransaction(ctx, tx))
	require.NoError(t, f.ledger.ApplyMutation(ctx, core.TransactionWritten{Change: core.ChangeCreate, Current: tx}))
	return tx
}

func alertTypes(alerts []core.Alert) []core.AlertType {
	out := make([]core.AlertType, len(alerts))
	for i, a := range alerts {
		out[i] = a.Type
	}
	return out
}

var now = time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC) // a Wednesday

func TestThresholdWarningAtMostOncePerMonth(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.CreateCategory(ctx, core.Category{ID: "food", Owner: "u1", Name: "Food", Limit: core.Cents(10000), CreatedAt: now}))
	e := f.threshold()

	f.addTx(t, "food", core.KindExpense, 6000, now)
	got, err := e.EvaluateAll(ctx, "u1", now)
	require.NoError(t, err)
	assert.Empty(t, got, "60% is below the warning band")

	f.addTx(t, "food", core.KindExpense, 2000, now)
	got, err = e.EvaluateAll(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, []core.AlertType{core.AlertSpendWarning}, alertTypes(got))

	got, err = e.EvaluateAll(ctx, "u1", now)
	require.NoError(t, err)
	assert.Empty(t, got, "warning already raised this month")

	f.addTx(t, "food", core.KindExpense, 3000, now)
	got, err = e.EvaluateAll(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, []core.AlertType{core.AlertSpendExceeded}, alertTypes(got))
	exceeded := got[0].Payload.(core.SpendExceeded)
	assert.InDelta(t, 110.0, exceeded.Percentage, 0.001)

	all, err := f.store.ListAlerts(ctx, "u1", core.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "one warning and one exceeded")

	nextMonth := now.AddDate(0, 1, 0)
	f.addTx(t, "food", core.KindExpense, 7500, nextMonth)
	got, err = e.EvaluateAll(ctx, "u1", nextMonth)
	require.NoError(t, err)
	assert.Equal(t, []core.AlertType{core.AlertSpendWarning}, alertTypes(got), "new month, new period")

	assert.Equal(t, 3, f.notifier.count())
}

func TestThresholdSkipsUnlimitedCategories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.CreateCategory(ctx, core.Category{ID: "misc", Owner: "u1", Name: "Misc", CreatedAt: now}))
	f.addTx(t, "misc", core.KindExpense, 999999, now)

	got, err := f.threshold().EvaluateAll(ctx, "u1", now)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestThresholdLiveSpendMatchesLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTx(t, "food", core.KindExpense, 4000, now)
	f.addTx(t, "food", core.KindExpense, 1500, now.AddDate(0, -1, 0))

	live := LiveSpend{Transactions: f.store, Calendar: f.cal}
	fromLedger := LedgerSpend{Ledger: f.ledger}

	a, err := live.CategorySpend(ctx, "u1", "food", now)
	require.NoError(t, err)
	b, err := fromLedger.CategorySpend(ctx, "u1", "food", now)
	require.NoError(t, err)
	assert.Equal(t, core.Cents(4000), a)
	assert.Equal(t, a, b)
}

func TestIsUnusual(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		sum    int64
		count  int
		want   bool
	}{
		{"double the mean", 10000, 15000, 3, true},
		{"slightly above mean", 6000, 15000, 3, false},
		{"exactly 1.5x is not unusual", 7500, 15000, 3, false},
		{"too few samples", 10000, 10000, 2, false},
		{"no samples", 10000, 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := IsUnusual(core.Cents(tc.amount), core.Cents(tc.sum), tc.count, 3, 1.5)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCheckUnusual(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.CreateCategory(ctx, core.Category{ID: "food", Owner: "u1", Name: "Food", CreatedAt: now}))
	d := f.anomaly()

	for i := 1; i <= 3; i++ {
		f.addTx(t, "food", core.KindExpense, 5000, now.AddDate(0, 0, -7*i))
	}
	// Outside the three-month lookback.
	f.addTx(t, "food", core.KindExpense, 100, now.AddDate(0, -4, 0))

	normal := f.addTx(t, "food", core.KindExpense, 6000, now)
	got, err := d.CheckUnusual(ctx, normal, now)
	require.NoError(t, err)
	assert.Empty(t, got)

	big := f.addTx(t, "food", core.KindExpense, 10000, now)
	got, err = d.CheckUnusual(ctx, big, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	p := got[0].Payload.(core.UnusualExpense)
	assert.Equal(t, big.ID, p.TransactionID)
	assert.Equal(t, "Food", p.CategoryName)
	assert.Equal(t, 3, p.Samples, "same-day transaction is outside [date-3m, date)")
	assert.Equal(t, core.Cents(5000), p.Average)

	again, err := d.CheckUnusual(ctx, big, now)
	require.NoError(t, err)
	assert.Empty(t, again, "one unusual alert per transaction")

	income := big
	income.Kind = core.KindIncome
	got, err = d.CheckUnusual(ctx, income, now)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCheckBurst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.anomaly()

	for i := 0; i < 10; i++ {
		f.addTx(t, "food", core.KindExpense, 100, now.Add(-time.Duration(i)*time.Hour))
	}
	f.addTx(t, "food", core.KindExpense, 100, now.Add(-25*time.Hour))

	got, err := d.CheckBurst(ctx, "u1", now)
	require.NoError(t, err)
	assert.Empty(t, got, "ten expenses is not a burst")

	f.addTx(t, "food", core.KindExpense, 100, now)
	got, err = d.CheckBurst(ctx, "u1", now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 11, got[0].Payload.(core.BurstExpense).Count)

	later := now.Add(2 * time.Hour)
	f.addTx(t, "food", core.KindExpense, 100, later)
	got, err = d.CheckBurst(ctx, "u1", later)
	require.NoError(t, err)
	assert.Empty(t, got, "guarded for the trailing window")
}

func TestNetPositionWeeklyCeiling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ceiling := core.Cents(100000)
	p, err := f.store.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	p.NetIncomeCeiling = &ceiling
	require.NoError(t, f.store.SavePreferences(ctx, p, now))

	f.addTx(t, "salary", core.KindIncome, 30000, now)
	e := f.net()

	got, err := e.Evaluate(ctx, "u1", now)
	require.NoError(t, err)
	byScope := map[core.Scope]core.AlertType{}
	for _, a := range got {
		switch pl := a.Payload.(type) {
		case core.NetIncomeCeiling:
			byScope[pl.Scope] = a.Type
			assert.Equal(t, core.Cents(25000), pl.Ceiling)
		case core.InsufficientBalance:
			byScope[pl.Scope] = a.Type
		}
	}
	assert.Equal(t, map[core.Scope]core.AlertType{
		core.ScopeWeek:  core.AlertNetIncomeCeiling,
		core.ScopeMonth: core.AlertInsufficientBalance,
		core.ScopeTotal: core.AlertInsufficientBalance,
	}, byScope)

	got, err = e.Evaluate(ctx, "u1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got, "each window raises once")
}

func TestNetPositionSkipsWithoutCeiling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTx(t, "salary", core.KindIncome, 30000, now)

	got, err := f.net().Evaluate(ctx, "u1", now)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDispatcherRespectsPreferences(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	draft := func(key string) core.AlertDraft {
		return core.AlertDraft{
			Owner:       "u1",
			Message:     "test",
			Payload:     core.SpendWarning{CategoryID: "c", CategoryName: "C", Spent: core.Cents(80), Limit: core.Cents(100), Percentage: 80},
			DedupKey:    key,
			PeriodStart: f.cal.Month(now).Start,
		}
	}

	_, created, err := f.disp.Create(ctx, draft("k1"), now)
	require.NoError(t, err)
	assert.True(t, created)
	require.Equal(t, 1, f.notifier.count())
	sent := f.notifier.sent[0]
	assert.Equal(t, "u1@example.com", sent.Recipient)
	assert.Contains(t, sent.Subject, "80%")

	p, err := f.store.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	p.Notifications.BudgetAlerts = false
	require.NoError(t, f.store.SavePreferences(ctx, p, now))

	_, created, err = f.disp.Create(ctx, draft("k2"), now)
	require.NoError(t, err)
	assert.True(t, created, "stored even when delivery is disabled")
	assert.Equal(t, 1, f.notifier.count())
}

func TestDispatcherNotifierFailureKeepsAlert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")

	a, created, err := f.disp.Create(ctx, core.AlertDraft{
		Owner:       "u1",
		Message:     "burst",
		Payload:     core.BurstExpense{Count: 11, WindowHours: 24},
		DedupKey:    "burst",
		PeriodStart: now,
	}, now)
	require.NoError(t, err)
	assert.True(t, created)

	stored, err := f.store.GetAlert(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, core.AlertBurstExpense, stored.Type)
}

func TestDispatcherRejectsInvalidDraft(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.disp.Create(context.Background(), core.AlertDraft{Owner: "u1"}, now)
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	a := core.Alert{
		Type:    core.AlertInsufficientBalance,
		Message: "Your monthly balance is low",
		Payload: core.InsufficientBalance{Scope: core.ScopeMonth, Income: core.Cents(1000), Expenses: core.Cents(3000), Net: core.Cents(-2000), Ceiling: core.Cents(5000)},
	}
	subject, body := Render(a)
	assert.Equal(t, "BudgetFlow: insufficient balance (month)", subject)
	assert.Contains(t, body, "Net: €-20.00")

	lc := core.Alert{Type: core.AlertPaymentFailed, Message: "Card declined", Payload: core.Lifecycle{Kind: core.AlertPaymentFailed}}
	subject, body = Render(lc)
	assert.Equal(t, "BudgetFlow: Payment Failed", subject)
	assert.Equal(t, "Card declined", body)
}

func TestThresholdConcurrentEvaluationCreatesOneAlert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.CreateCategory(ctx, core.Category{ID: "food", Owner: "u1", Name: "Food", Limit: core.Cents(10000), CreatedAt: now}))
	f.addTx(t, "food", core.KindExpense, 8000, now)
	e := f.threshold()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := e.EvaluateAll(ctx, "u1", now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			created += len(got)
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, created, "exactly one evaluation reports the alert as new")

	all, err := f.store.ListAlerts(ctx, "u1", core.AlertFilter{})
	require.NoError(t, err)
	assert.Equal(t, []core.AlertType{core.AlertSpendWarning}, alertTypes(all))
	assert.Equal(t, 1, f.notifier.count())
}
