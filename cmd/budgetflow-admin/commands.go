package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"budgetflow/internal/cli"
	"budgetflow/internal/config"
	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/storage"
)

// app opens the store and engine on first use so that help and flag errors
// never touch the database.
type app struct {
	out    io.Writer
	logger *log.Logger
	now    func() time.Time

	cfg           *config.Config
	store         *storage.SQLiteStore
	engine        *cli.Engine
	closeNotifier func() error
}

func newApp(out io.Writer, logger *log.Logger) *app {
	return &app{out: out, logger: logger, now: time.Now}
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) open(ctx context.Context) (*cli.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	notifier, closeNotifier, err := cli.NewNotifier(ctx, cfg, a.logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.store = store
	a.closeNotifier = closeNotifier
	a.engine = cli.NewEngine(cfg, store, notifier, metrics.New())
	return a.engine, nil
}

func (a *app) close() {
	if a.closeNotifier != nil {
		if err := a.closeNotifier(); err != nil {
			a.logger.Warn("Notifier close error", log.FieldError, err)
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "budgetflow-admin",
		Short: "Operate the budgetflow ledger and alert engine",
		Long: `Administrative commands for the budgetflow spending ledger.

Configuration is read from the environment (and .env), the same as the server.

Examples:
  budgetflow-admin check --owner 42
  budgetflow-admin ledger rebuild --owner 42 --category 9f1c... --year 2025 --month 3
  budgetflow-admin alerts list --owner 42 --unread`,
		SilenceUsage: true,
	}
	root.SetOut(a.out)
	root.SetErr(a.out)

	root.AddCommand(newCheckCmd(a), newLedgerCmd(a), newAlertsCmd(a), newOwnersCmd(a), newMigrateCmd(a))
	return root
}

func requireOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return core.ErrEmptyOwner
	}
	return nil
}

func newCheckCmd(a *app) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Open the current ledger month and run the threshold and net position checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireOwner(owner); err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := a.open(ctx)
			if err != nil {
				return err
			}
			now := a.now()
			if err := e.Ledger.EnsureMonth(ctx, owner, now); err != nil {
				a.logger.Warn("Failed to open ledger month", log.FieldOwner, owner, log.FieldError, err)
			}
			report, runErr := e.Checks.RunChecks(ctx, owner, now)

			fmt.Fprintf(a.out, "%d alert(s) created for %s\n", len(report.Alerts), owner)
			tw := a.table()
			for _, al := range report.Alerts {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", al.ID, al.Type, al.Message)
			}
			tw.Flush()
			return runErr
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner to check (required)")
	return cmd
}

func newLedgerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and repair monthly spending buckets",
	}

	var (
		owner    string
		category string
		year     int
		month    int
		confirm  bool
	)

	show := &cobra.Command{
		Use:   "show",
		Short: "Print one month of buckets (defaults to the current month)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireOwner(owner); err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			cy, cm := e.Ledger.Calendar().Bucket(a.now())
			y, m := resolveMonth(cy, cm, year, month)
			entries, err := e.Ledger.MonthEntries(cmd.Context(), owner, y, m)
			if err != nil {
				return err
			}
			tw := a.table()
			fmt.Fprintln(tw, "CATEGORY\tYEAR\tMONTH\tAMOUNT")
			for _, en := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", en.CategoryID, en.Year, en.Month, en.Amount)
			}
			return tw.Flush()
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Zero every bucket of the current month for an owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireOwner(owner); err != nil {
				return err
			}
			if !confirm {
				return fmt.Errorf("refusing to reset without --yes")
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := e.Ledger.ResetAll(cmd.Context(), owner, a.now()); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "ledger reset for %s\n", owner)
			return nil
		},
	}
	reset.Flags().BoolVar(&confirm, "yes", false, "Confirm the reset")

	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute one bucket from the recorded expenses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireOwner(owner); err != nil {
				return err
			}
			if category == "" {
				return core.ErrEmptyCategory
			}
			if month < 1 || month > 12 || year < 1900 {
				return fmt.Errorf("%w: --year and --month are required", core.ErrInvalidDate)
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := a.store.GetCategory(cmd.Context(), owner, category); err != nil {
				return fmt.Errorf("category %s: %w", category, err)
			}
			sum, err := e.Ledger.Rebuild(cmd.Context(), owner, category, year, month)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "bucket %s %04d-%02d rebuilt: %s\n", category, year, month, sum)
			return nil
		},
	}
	rebuild.Flags().StringVar(&category, "category", "", "Category id (required)")

	for _, c := range []*cobra.Command{show, reset, rebuild} {
		c.Flags().StringVar(&owner, "owner", "", "Owner (required)")
		cmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{show, rebuild} {
		c.Flags().IntVar(&year, "year", 0, "Bucket year")
		c.Flags().IntVar(&month, "month", 0, "Bucket month (1-12)")
	}
	return cmd
}

// resolveMonth fills zero flags from the current bucket.
func resolveMonth(curYear, curMonth, year, month int) (int, int) {
	if year == 0 {
		year = curYear
	}
	if month == 0 {
		month = curMonth
	}
	return year, month
}

func newAlertsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect an owner's alert inbox",
	}

	var (
		owner      string
		unread     bool
		unresolved bool
		limit      int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireOwner(owner); err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			list, err := e.Inbox.List(cmd.Context(), owner, core.AlertFilter{
				UnreadOnly:     unread,
				UnresolvedOnly: unresolved,
				Limit:          limit,
			})
			if err != nil {
				return err
			}
			tw := a.table()
			fmt.Fprintln(tw, "ID\tTYPE\tCREATED\tREAD\tRESOLVED\tMESSAGE")
			for _, al := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\t%s\n",
					al.ID, al.Type, al.CreatedAt.Format(time.RFC3339), al.Read, al.Resolved, al.Message)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&owner, "owner", "", "Owner (required)")
	list.Flags().BoolVar(&unread, "unread", false, "Only unread alerts")
	list.Flags().BoolVar(&unresolved, "unresolved", false, "Only unresolved alerts")
	list.Flags().IntVar(&limit, "limit", 50, "Maximum number of alerts")

	var (
		kind    string
		subject string
		detail  string
		key     string
	)
	raise := &cobra.Command{
		Use:   "raise",
		Short: "Raise an informational alert (subscription events, reports)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireOwner(owner); err != nil {
				return err
			}
			t := core.AlertType(kind)
			if !t.Informational() {
				return fmt.Errorf("alert type %q cannot be raised manually", kind)
			}
			if strings.TrimSpace(subject) == "" {
				return fmt.Errorf("--subject is required")
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if key == "" {
				key = subject
			}
			now := a.now()
			al, created, err := e.Dispatcher.Create(cmd.Context(), core.AlertDraft{
				Owner:       owner,
				Message:     subject,
				Payload:     core.Lifecycle{Kind: t, Subject: subject, Detail: detail},
				DedupKey:    key,
				PeriodStart: e.Ledger.Calendar().Month(now).Start,
			}, now)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(a.out, "%s already raised this month for %s\n", t, owner)
				return nil
			}
			fmt.Fprintf(a.out, "alert %s raised for %s\n", al.ID, owner)
			return nil
		},
	}
	raise.Flags().StringVar(&owner, "owner", "", "Owner (required)")
	raise.Flags().StringVar(&kind, "type", "", "Informational alert type, e.g. payment_failed")
	raise.Flags().StringVar(&subject, "subject", "", "Alert message (required)")
	raise.Flags().StringVar(&detail, "detail", "", "Optional detail")
	raise.Flags().StringVar(&key, "key", "", "Deduplication key within the month (default: subject)")

	cmd.AddCommand(list, raise)
	return cmd
}

func newOwnersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "owners",
		Short: "List owners with categories or transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.open(cmd.Context()); err != nil {
				return err
			}
			owners, err := a.store.Owners(cmd.Context())
			if err != nil {
				return err
			}
			for _, o := range owners {
				fmt.Fprintln(a.out, o)
			}
			return nil
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "migrations applied")
			return nil
		},
	}, &cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			version, dirty, err := storage.MigrationVersion(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	})
	return cmd
}
