package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetflow/internal/alerts"
	"budgetflow/internal/core"
	"budgetflow/internal/ledger"
	"budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/period"
	"budgetflow/internal/storage"
)

var now = time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []core.Notification
}

func (n *recordingNotifier) Send(_ context.Context, msg core.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

// failingLedgerStore accepts every ledger call except increments.
type failingLedgerStore struct {
	*storage.SQLiteStore
}

func (failingLedgerStore) AddToLedger(context.Context, string, string, int, int, core.Money, time.Time) error {
	return errors.New("disk full")
}

type env struct {
	store     *storage.SQLiteStore
	ledger    *ledger.Ledger
	notifier  *recordingNotifier
	threshold *alerts.ThresholdEvaluator
	net       *alerts.NetPositionEvaluator
	tx        *TransactionService
	checks    *CheckService
}

func newEnv(t *testing.T, ledgerStore ledger.Store) *env {
	t.Helper()
	s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	if ledgerStore == nil {
		ledgerStore = s
	} else if fl, ok := ledgerStore.(failingLedgerStore); ok {
		fl.SQLiteStore = s
		ledgerStore = fl
	}

	cal := period.NewCalendar(time.UTC, time.Monday)
	m := metrics.New()
	quiet := log.Discard()
	l := ledger.New(ledgerStore, cal, ledger.WithLogger(quiet), ledger.WithClock(func() time.Time { return now }))
	n := &recordingNotifier{}
	disp := alerts.NewDispatcher(s, s, n, alerts.WithDispatcherMetrics(m), alerts.WithDispatcherLogger(quiet))
	rules := alerts.DefaultRules()

	e := &env{store: s, ledger: l, notifier: n}
	e.threshold = alerts.NewThresholdEvaluator(s, alerts.LedgerSpend{Ledger: l}, disp, cal, rules, m, quiet)
	e.net = alerts.NewNetPositionEvaluator(s, s, disp, cal, rules, m, quiet)
	anomaly := alerts.NewAnomalyDetector(s, s, disp, cal, rules, m, quiet)
	e.tx = NewTransactionService(s, l, e.threshold, anomaly,
		WithTransactionLogger(quiet), WithTransactionClock(func() time.Time { return now }))
	e.checks = NewCheckService(e.threshold, e.net, quiet)

	ctx := context.Background()
	require.NoError(t, s.SavePreferences(ctx, core.Preferences{
		Owner: "u1", Email: "u1@example.com", Notifications: core.DefaultNotificationSettings(),
	}, now))
	require.NoError(t, s.CreateCategory(ctx, core.Category{ID: "food", Owner: "u1", Name: "Food", Limit: core.Cents(10000), CreatedAt: now}))
	require.NoError(t, s.CreateCategory(ctx, core.Category{ID: "fun", Owner: "u1", Name: "Fun", CreatedAt: now}))
	return e
}

func (e *env) spend(t *testing.T, cat string) int64 {
	t.Helper()
	m, err := e.ledger.Spend(context.Background(), "u1", cat, 2025, 3)
	require.NoError(t, err)
	return m.Cents
}

func (e *env) alertTypes(t *testing.T) []core.AlertType {
	t.Helper()
	list, err := e.store.ListAlerts(context.Background(), "u1", core.AlertFilter{})
	require.NoError(t, err)
	out := make([]core.AlertType, len(list))
	for i, a := range list {
		out[i] = a.Type
	}
	return out
}

func expense(cat string, cents int64, at time.Time) TransactionInput {
	return TransactionInput{CategoryID: cat, Kind: core.KindExpense, Amount: core.Cents(cents), Date: at, Description: "groceries"}
}

func TestCreateUpdatesLedgerAndRaisesWarning(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	tx, err := e.tx.Create(ctx, "u1", expense("food", 8000, now))
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, now, tx.CreatedAt)

	assert.Equal(t, int64(8000), e.spend(t, "food"))
	assert.Equal(t, []core.AlertType{core.AlertSpendWarning}, e.alertTypes(t))
	require.Len(t, e.notifier.sent, 1)
	assert.Equal(t, "u1@example.com", e.notifier.sent[0].Recipient)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	_, err := e.tx.Create(ctx, "u1", expense("food", 0, now))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	in := expense("food", 100, now)
	in.Description = "   "
	_, err = e.tx.Create(ctx, "u1", in)
	assert.ErrorIs(t, err, core.ErrEmptyDescription)

	_, err = e.tx.Create(ctx, "u1", expense("missing", 100, now))
	assert.ErrorIs(t, err, core.ErrNotFound)

	list, err := e.tx.List(ctx, "u1", core.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, e.spend(t, "food"))
}

func TestIncomeDoesNotTouchLedger(t *testing.T) {
	e := newEnv(t, nil)
	in := expense("food", 5000, now)
	in.Kind = core.KindIncome
	_, err := e.tx.Create(context.Background(), "u1", in)
	require.NoError(t, err)
	assert.Zero(t, e.spend(t, "food"))
	assert.Empty(t, e.alertTypes(t))
}

func TestUpdateMovesSpendBetweenCategories(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	tx, err := e.tx.Create(ctx, "u1", expense("fun", 5000, now))
	require.NoError(t, err)
	require.Equal(t, int64(5000), e.spend(t, "fun"))

	updated, err := e.tx.Update(ctx, "u1", tx.ID, expense("food", 7000, now))
	require.NoError(t, err)
	assert.Equal(t, "food", updated.CategoryID)
	assert.Equal(t, tx.CreatedAt, updated.CreatedAt)

	assert.Zero(t, e.spend(t, "fun"))
	assert.Equal(t, int64(7000), e.spend(t, "food"))
	assert.Equal(t, []core.AlertType{core.AlertSpendWarning}, e.alertTypes(t), "threshold runs on update")

	_, err = e.tx.Update(ctx, "u1", "nope", expense("food", 1, now))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDeleteReversesLedger(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	a, err := e.tx.Create(ctx, "u1", expense("fun", 3000, now))
	require.NoError(t, err)
	_, err = e.tx.Create(ctx, "u1", expense("fun", 2000, now))
	require.NoError(t, err)
	require.NoError(t, e.tx.Delete(ctx, "u1", a.ID))

	assert.Equal(t, int64(2000), e.spend(t, "fun"))
	_, err = e.tx.Get(ctx, "u1", a.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, e.tx.Delete(ctx, "u1", a.ID), core.ErrNotFound)
}

func TestLedgerFailureDoesNotFailWrite(t *testing.T) {
	e := newEnv(t, failingLedgerStore{})
	tx, err := e.tx.Create(context.Background(), "u1", expense("food", 9000, now))
	require.NoError(t, err)

	got, err := e.tx.Get(context.Background(), "u1", tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.Amount, got.Amount)
	assert.Zero(t, e.spend(t, "food"))
}

func TestCreateFlagsUnusualExpense(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	for _, d := range []time.Time{
		time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC),
	} {
		_, err := e.tx.Create(ctx, "u1", expense("fun", 5000, d))
		require.NoError(t, err)
	}
	assert.Empty(t, e.alertTypes(t))

	tx, err := e.tx.Create(ctx, "u1", expense("fun", 10000, now))
	require.NoError(t, err)
	list, err := e.store.ListAlerts(ctx, "u1", core.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, core.AlertUnusualExpense, list[0].Type)
	assert.Equal(t, tx.ID, list[0].Payload.(core.UnusualExpense).TransactionID)
}

func TestListRejectsUnknownKind(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.tx.List(context.Background(), "u1", core.TransactionFilter{Kind: "refund"})
	assert.ErrorIs(t, err, core.ErrInvalidKind)
}

func TestRunChecks(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	ceiling := core.Cents(100000)
	require.NoError(t, e.store.SavePreferences(ctx, core.Preferences{
		Owner: "u1", Email: "u1@example.com", NetIncomeCeiling: &ceiling,
		Notifications: core.DefaultNotificationSettings(),
	}, now))
	income := expense("fun", 30000, now)
	income.Kind = core.KindIncome
	_, err := e.tx.Create(ctx, "u1", income)
	require.NoError(t, err)

	report, err := e.checks.RunChecks(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, "u1", report.Owner)
	assert.Len(t, report.Alerts, 3, "week over ceiling/4, month and total below ceiling")

	again, err := e.checks.RunChecks(ctx, "u1", now)
	require.NoError(t, err)
	assert.Empty(t, again.Alerts)

	_, err = e.checks.RunChecks(ctx, "", now)
	assert.ErrorIs(t, err, core.ErrEmptyOwner)
}

func TestAlertInbox(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	_, err := e.tx.Create(ctx, "u1", expense("food", 12000, now))
	require.NoError(t, err)

	inbox := NewAlertInbox(e.store)
	list, err := inbox.List(ctx, "u1", core.AlertFilter{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	id := list[0].ID

	require.NoError(t, inbox.MarkRead(ctx, "u1", id))
	list, err = inbox.List(ctx, "u1", core.AlertFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, inbox.MarkResolved(ctx, "u1", id))
	a, err := inbox.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.True(t, a.Read)
	assert.True(t, a.Resolved)

	n, err := inbox.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, inbox.Delete(ctx, "u1", id))
	assert.ErrorIs(t, inbox.Delete(ctx, "u1", id), core.ErrNotFound)
	assert.ErrorIs(t, inbox.MarkRead(ctx, "u1", "missing"), core.ErrNotFound)
	_, err = inbox.List(ctx, "", core.AlertFilter{})
	assert.ErrorIs(t, err, core.ErrEmptyOwner)
}

func TestCategoryService(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	svc := NewCategoryService(e.store, e.ledger, e.threshold, log.Discard(),
		WithCategoryClock(func() time.Time { return now }))

	c, err := svc.Create(ctx, "u1", "  Travel ", core.Cents(20000))
	require.NoError(t, err)
	assert.Equal(t, "Travel", c.Name)

	_, err = svc.Create(ctx, "u1", "", core.Cents(1))
	assert.ErrorIs(t, err, core.ErrEmptyName)

	_, err = e.tx.Create(ctx, "u1", expense(c.ID, 10000, now))
	require.NoError(t, err)
	assert.Empty(t, e.alertTypes(t), "50% of the limit")

	updated, err := svc.SetLimit(ctx, "u1", c.ID, core.Cents(12000))
	require.NoError(t, err)
	assert.Equal(t, core.Cents(12000), updated.Limit)
	assert.Equal(t, []core.AlertType{core.AlertSpendWarning}, e.alertTypes(t), "lowering the limit re-evaluates")

	_, err = svc.SetLimit(ctx, "u1", c.ID, core.Cents(-1))
	assert.ErrorIs(t, err, core.ErrInvalidLimit)
	_, err = svc.SetLimit(ctx, "u1", "missing", core.Cents(1))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSpendingOpensCurrentMonth(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	svc := NewCategoryService(e.store, e.ledger, nil, log.Discard(),
		WithCategoryClock(func() time.Time { return now }))

	_, err := e.tx.Create(ctx, "u1", expense("fun", 2500, now))
	require.NoError(t, err)

	entries, err := svc.Spending(ctx, "u1", 2025, 3)
	require.NoError(t, err)
	byCat := map[string]int64{}
	for _, le := range entries {
		byCat[le.CategoryID] = le.Amount.Cents
	}
	assert.Equal(t, map[string]int64{"food": 0, "fun": 2500}, byCat)

	past, err := svc.Spending(ctx, "u1", 2024, 12)
	require.NoError(t, err)
	assert.Empty(t, past, "past months are not opened")

	_, err = svc.Spending(ctx, "u1", 2025, 13)
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}

func TestPreferencesService(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	svc := NewPreferencesService(e.store, WithPreferencesClock(func() time.Time { return now }))

	fresh, err := svc.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, core.DefaultPreferences("u2"), fresh)

	ceiling := core.Cents(50000)
	saved, err := svc.Save(ctx, core.Preferences{
		Owner: "u2", Email: " u2@example.com ", NetIncomeCeiling: &ceiling,
		Notifications: core.NotificationSettings{Email: true, BudgetAlerts: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "u2@example.com", saved.Email)

	got, err := svc.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	neg := core.Cents(-1)
	_, err = svc.Save(ctx, core.Preferences{Owner: "u2", NetIncomeCeiling: &neg})
	assert.ErrorIs(t, err, core.ErrInvalidCeiling)
	_, err = svc.Get(ctx, "")
	assert.ErrorIs(t, err, core.ErrEmptyOwner)
}
