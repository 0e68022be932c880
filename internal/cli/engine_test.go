package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"budgetflow/internal/config"
	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/notify"
	"budgetflow/internal/services"
	"budgetflow/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "engine.db"))
	t.Setenv("AMQP_URL", "")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestRules(t *testing.T) {
	cfg := testConfig(t)
	cfg.BurstThreshold = 25
	cfg.EvalConcurrency = 8
	r := Rules(cfg)
	if r.BurstThreshold != 25 || r.Concurrency != 8 || r.WarningPercent != 70 || r.BurstWindow != 24*time.Hour {
		t.Fatalf("unexpected rules %+v", r)
	}
}

func TestNewNotifierWithoutAMQP(t *testing.T) {
	cfg := testConfig(t)
	n, closeFn, err := NewNotifier(context.Background(), cfg, log.Discard())
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	if _, ok := n.(*notify.LogNotifier); !ok {
		t.Fatalf("expected log notifier, got %T", n)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewEngine(t *testing.T) {
	for _, source := range []string{"ledger", "live"} {
		t.Run(source, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.SpendSource = source
			store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
			if err != nil {
				t.Fatalf("store: %v", err)
			}
			defer store.Close()

			e := NewEngine(cfg, store, notify.NewLogNotifier(log.Discard()), metrics.New())
			ctx := context.Background()

			c, err := e.Categories.Create(ctx, "u1", "Food", core.Cents(10000))
			if err != nil {
				t.Fatalf("create category: %v", err)
			}
			_, err = e.Transactions.Create(ctx, "u1", services.TransactionInput{
				CategoryID: c.ID, Kind: core.KindExpense, Amount: core.Cents(10500),
				Date: time.Now(), Description: "weekly shop",
			})
			if err != nil {
				t.Fatalf("create transaction: %v", err)
			}

			list, err := e.Inbox.List(ctx, "u1", core.AlertFilter{})
			if err != nil {
				t.Fatalf("list alerts: %v", err)
			}
			if len(list) != 1 || list[0].Type != core.AlertSpendExceeded {
				t.Fatalf("expected one exceeded alert, got %+v", list)
			}
		})
	}
}

func TestNewEngineSharesClock(t *testing.T) {
	cfg := testConfig(t)
	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer store.Close()

	fixed := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	e := NewEngine(cfg, store, nil, metrics.New(), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	c, err := e.Categories.Create(ctx, "u1", "Food", core.Cents(10000))
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if !c.CreatedAt.Equal(fixed) {
		t.Errorf("category created at %v, want %v", c.CreatedAt, fixed)
	}

	// March 2025 is the current month only under the injected clock, so
	// reading it opens the bucket.
	entries, err := e.Categories.Spending(ctx, "u1", 2025, 3)
	if err != nil {
		t.Fatalf("spending: %v", err)
	}
	if len(entries) != 1 || entries[0].CategoryID != c.ID || entries[0].Amount.Cents != 0 {
		t.Fatalf("expected one opened bucket, got %+v", entries)
	}
}
