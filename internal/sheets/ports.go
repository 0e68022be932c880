// Package sheets keeps a spreadsheet log of every delivered alert.
package sheets

import (
	"context"
	"fmt"
	"time"

	"budgetflow/internal/core"
)

// RowAppender appends one row at the end of a sheet tab and returns the
// reference of the written range.
type RowAppender interface {
	AppendRow(ctx context.Context, sheet string, row []any) (rowRef string, err error)
}

// Header is the column layout of the alert log tab.
var Header = []any{"Delivered at", "Alert ID", "Owner", "Type", "Recipient", "Subject", "Body"}

// AlertLog is a notification sink writing one row per alert.
type AlertLog struct {
	rows  RowAppender
	sheet string
	now   func() time.Time
}

func NewAlertLog(rows RowAppender, sheet string) *AlertLog {
	if sheet == "" {
		sheet = "Alerts"
	}
	return &AlertLog{rows: rows, sheet: sheet, now: time.Now}
}

func (l *AlertLog) Name() string { return "sheets" }

func (l *AlertLog) Deliver(ctx context.Context, n core.Notification) error {
	if _, err := l.rows.AppendRow(ctx, l.sheet, AlertRow(n, l.now())); err != nil {
		return fmt.Errorf("append alert row: %w", err)
	}
	return nil
}

// AlertRow lays out a notification in Header order.
func AlertRow(n core.Notification, deliveredAt time.Time) []any {
	return []any{
		deliveredAt.UTC().Format(time.RFC3339),
		n.AlertID,
		n.Owner,
		string(n.Type),
		n.Recipient,
		n.Subject,
		n.Body,
	}
}
