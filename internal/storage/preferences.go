package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"budgetflow/internal/core"
)

type preferencesRow struct {
	Owner               string        `db:"owner"`
	Email               string        `db:"email"`
	AlertEmail          string        `db:"alert_email"`
	NetIncomeCeiling    sql.NullInt64 `db:"net_income_ceiling_cents"`
	WeeklyReportEmail   bool          `db:"weekly_report_email"`
	NotifyEmail         bool          `db:"notify_email"`
	NotifyBudget        bool          `db:"notify_budget"`
	NotifyUnusual       bool          `db:"notify_unusual"`
	NotifySubscriptions bool          `db:"notify_subscriptions"`
	NotifyReports       bool          `db:"notify_reports"`
	UpdatedAt           int64         `db:"updated_at"`
}

// GetPreferences returns the owner's preferences, or the defaults when none
// were saved.
func (s *SQLiteStore) GetPreferences(ctx context.Context, owner string) (core.Preferences, error) {
	var row preferencesRow
	err := s.db.GetContext(ctx, &row, `
		SELECT owner, email, alert_email, net_income_ceiling_cents, weekly_report_email,
			notify_email, notify_budget, notify_unusual, notify_subscriptions, notify_reports, updated_at
		FROM preferences WHERE owner = ?`, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultPreferences(owner), nil
	}
	if err != nil {
		return core.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}

	p := core.Preferences{
		Owner:             row.Owner,
		Email:             row.Email,
		AlertEmail:        row.AlertEmail,
		WeeklyReportEmail: row.WeeklyReportEmail,
		Notifications: core.NotificationSettings{
			Email:                row.NotifyEmail,
			BudgetAlerts:         row.NotifyBudget,
			UnusualExpenses:      row.NotifyUnusual,
			SubscriptionPayments: row.NotifySubscriptions,
			MonthlyReports:       row.NotifyReports,
		},
	}
	if row.NetIncomeCeiling.Valid {
		c := core.Cents(row.NetIncomeCeiling.Int64)
		p.NetIncomeCeiling = &c
	}
	return p, nil
}

func (s *SQLiteStore) SavePreferences(ctx context.Context, p core.Preferences, now time.Time) error {
	var ceiling sql.NullInt64
	if p.NetIncomeCeiling != nil {
		ceiling = sql.NullInt64{Int64: p.NetIncomeCeiling.Cents, Valid: true}
	}
	n := p.Notifications
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (owner, email, alert_email, net_income_ceiling_cents, weekly_report_email,
			notify_email, notify_budget, notify_unusual, notify_subscriptions, notify_reports, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner) DO UPDATE SET
			email = excluded.email,
			alert_email = excluded.alert_email,
			net_income_ceiling_cents = excluded.net_income_ceiling_cents,
			weekly_report_email = excluded.weekly_report_email,
			notify_email = excluded.notify_email,
			notify_budget = excluded.notify_budget,
			notify_unusual = excluded.notify_unusual,
			notify_subscriptions = excluded.notify_subscriptions,
			notify_reports = excluded.notify_reports,
			updated_at = excluded.updated_at`,
		p.Owner, p.Email, p.AlertEmail, ceiling, p.WeeklyReportEmail,
		n.Email, n.BudgetAlerts, n.UnusualExpenses, n.SubscriptionPayments, n.MonthlyReports, toMillis(now))
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
