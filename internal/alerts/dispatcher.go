package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/metrics"
)

// Deduplicator answers whether an equivalent alert was raised recently.
type Deduplicator struct {
	store AlertStore
}

func NewDeduplicator(store AlertStore) *Deduplicator {
	return &Deduplicator{store: store}
}

// Exists reports whether an alert with the type and key was created at or after since.
func (d *Deduplicator) Exists(ctx context.Context, owner string, t core.AlertType, dedupKey string, since time.Time) (bool, error) {
	ok, err := d.store.AlertExists(ctx, owner, t, dedupKey, since)
	if err != nil {
		return false, fmt.Errorf("check duplicate alert: %w", err)
	}
	return ok, nil
}

// Dispatcher persists alerts and hands them to the notifier when the owner's
// preferences allow it. Delivery failures never undo the stored alert.
type Dispatcher struct {
	store    AlertStore
	dedup    *Deduplicator
	prefs    PreferenceReader
	notifier Notifier
	metrics  *metrics.Registry
	logger   *log.Logger
	newID    func() string
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherMetrics(m *metrics.Registry) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithDispatcherLogger(l *log.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

func WithIDGenerator(f func() string) DispatcherOption {
	return func(d *Dispatcher) { d.newID = f }
}

// NewDispatcher builds a dispatcher. A nil notifier disables delivery.
func NewDispatcher(store AlertStore, prefs PreferenceReader, notifier Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		dedup:    NewDeduplicator(store),
		prefs:    prefs,
		notifier: notifier,
		logger:   log.Default(log.ComponentAlerts),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Create stores the alert unless one with the same owner, type, key and
// period already exists, in which case created is false and no
// notification is sent.
func (d *Dispatcher) Create(ctx context.Context, draft core.AlertDraft, now time.Time) (core.Alert, bool, error) {
	if err := draft.Validate(); err != nil {
		return core.Alert{}, false, fmt.Errorf("invalid alert draft: %w", err)
	}

	a := core.Alert{
		ID:          d.newID(),
		Owner:       draft.Owner,
		Type:        draft.Payload.AlertType(),
		CategoryID:  draft.CategoryID,
		Message:     draft.Message,
		Payload:     draft.Payload,
		DedupKey:    draft.DedupKey,
		PeriodStart: draft.PeriodStart,
		CreatedAt:   now,
	}

	err := d.store.InsertAlert(ctx, a)
	if errors.Is(err, core.ErrDuplicateAlert) {
		d.metrics.AlertDeduplicated(string(a.Type))
		d.logger.DebugContext(ctx, "Alert already raised for period",
			log.FieldOwner, a.Owner, log.FieldAlertType, a.Type, log.FieldDedupKey, a.DedupKey)
		return core.Alert{}, false, nil
	}
	if err != nil {
		return core.Alert{}, false, fmt.Errorf("store alert: %w", err)
	}

	d.metrics.AlertCreated(string(a.Type))
	d.logger.InfoContext(ctx, "Alert created",
		NewAlertFields(a).WithOperation(log.OpDispatch).ToSlice()...)

	d.deliver(ctx, a)
	return a, true, nil
}

// CreateUnlessRecent guards rolling-window alerts, which have no calendar
// period to key on: nothing is created when an alert with the same type and
// key exists since the given instant.
func (d *Dispatcher) CreateUnlessRecent(ctx context.Context, draft core.AlertDraft, since, now time.Time) (core.Alert, bool, error) {
	exists, err := d.dedup.Exists(ctx, draft.Owner, draft.Payload.AlertType(), draft.DedupKey, since)
	if err != nil {
		return core.Alert{}, false, err
	}
	if exists {
		d.metrics.AlertDeduplicated(string(draft.Payload.AlertType()))
		return core.Alert{}, false, nil
	}
	return d.Create(ctx, draft, now)
}

func (d *Dispatcher) deliver(ctx context.Context, a core.Alert) {
	if d.notifier == nil {
		d.metrics.Notification(metrics.ResultSkipped)
		return
	}

	prefs, err := d.prefs.GetPreferences(ctx, a.Owner)
	if err != nil {
		d.metrics.Notification(metrics.ResultError)
		d.logger.ErrorContext(ctx, "Failed to load preferences for notification",
			NewAlertFields(a).WithError(err).ToSlice()...)
		return
	}
	if !prefs.Notifications.Allows(a.Type) {
		d.metrics.Notification(metrics.ResultSkipped)
		return
	}
	recipient := prefs.Recipient()
	if strings.TrimSpace(recipient) == "" {
		d.metrics.Notification(metrics.ResultSkipped)
		d.logger.WarnContext(ctx, "No recipient for alert notification",
			NewAlertFields(a).ToSlice()...)
		return
	}

	subject, body := Render(a)
	n := core.Notification{
		AlertID:   a.ID,
		Owner:     a.Owner,
		Type:      a.Type,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		CreatedAt: a.CreatedAt,
	}
	if err := d.notifier.Send(ctx, n); err != nil {
		d.metrics.Notification(metrics.ResultError)
		d.logger.ErrorContext(ctx, "Failed to send alert notification",
			NewAlertFields(a).WithError(err).WithOperation(log.OpNotify).ToSlice()...)
		return
	}
	d.metrics.Notification(metrics.ResultOK)
}

// NewAlertFields returns the log fields identifying a.
func NewAlertFields(a core.Alert) log.LogFields {
	return log.NewFields().WithOwner(a.Owner).WithAlert(a.ID, string(a.Type), a.DedupKey)
}
