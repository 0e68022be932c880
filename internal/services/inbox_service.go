package services

import (
	"context"
	"fmt"

	"budgetflow/internal/core"
)

type AlertInboxStore interface {
	GetAlert(ctx context.Context, owner, id string) (core.Alert, error)
	ListAlerts(ctx context.Context, owner string, f core.AlertFilter) ([]core.Alert, error)
	MarkAlertRead(ctx context.Context, owner, id string) error
	MarkAllAlertsRead(ctx context.Context, owner string) (int64, error)
	MarkAlertResolved(ctx context.Context, owner, id string) error
	DeleteAlert(ctx context.Context, owner, id string) error
}

// AlertInbox is the owner-facing view of stored alerts. Read and resolved
// flags only move from false to true.
type AlertInbox struct {
	store AlertInboxStore
}

func NewAlertInbox(store AlertInboxStore) *AlertInbox {
	return &AlertInbox{store: store}
}

func (b *AlertInbox) List(ctx context.Context, owner string, f core.AlertFilter) ([]core.Alert, error) {
	if owner == "" {
		return nil, core.ErrEmptyOwner
	}
	out, err := b.store.ListAlerts(ctx, owner, f)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return out, nil
}

func (b *AlertInbox) Get(ctx context.Context, owner, id string) (core.Alert, error) {
	a, err := b.store.GetAlert(ctx, owner, id)
	if err != nil {
		return core.Alert{}, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (b *AlertInbox) MarkRead(ctx context.Context, owner, id string) error {
	if err := b.store.MarkAlertRead(ctx, owner, id); err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	return nil
}

// MarkAllRead returns the number of alerts that were unread.
func (b *AlertInbox) MarkAllRead(ctx context.Context, owner string) (int64, error) {
	n, err := b.store.MarkAllAlertsRead(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("mark all alerts read: %w", err)
	}
	return n, nil
}

func (b *AlertInbox) MarkResolved(ctx context.Context, owner, id string) error {
	if err := b.store.MarkAlertResolved(ctx, owner, id); err != nil {
		return fmt.Errorf("mark alert resolved: %w", err)
	}
	return nil
}

func (b *AlertInbox) Delete(ctx context.Context, owner, id string) error {
	if err := b.store.DeleteAlert(ctx, owner, id); err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return nil
}
