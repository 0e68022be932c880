package worker

import (
	"context"
	"fmt"
	"time"

	"budgetflow/internal/amqp"
	"budgetflow/internal/cache"
	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/notify"
)

// Deliverer hands one notification to the sinks the delivery log has not
// already claimed for it.
type Deliverer interface {
	DeliverOnce(ctx context.Context, n core.Notification, dl notify.DeliveryLog) error
}

// NotificationWorker handles alert notifications consumed from AMQP.
// Deliveries are remembered per (alert, sink) so a broker redelivery only
// reaches the sinks that failed the previous attempt.
type NotificationWorker struct {
	sinks  Deliverer
	seen   *cache.LRUCache[time.Time]
	logger *log.Logger
}

const (
	defaultSeenSize = 10000
	defaultSeenTTL  = 24 * time.Hour
)

func NewNotificationWorker(sinks Deliverer, logger *log.Logger) *NotificationWorker {
	if logger == nil {
		logger = log.Default(log.ComponentNotifier)
	}
	return &NotificationWorker{
		sinks:  sinks,
		seen:   cache.NewLRUCache[time.Time](defaultSeenSize, defaultSeenTTL),
		logger: logger,
	}
}

func deliveryKey(alertID, sink string) string {
	return alertID + "|" + sink
}

// Claim implements notify.DeliveryLog.
func (w *NotificationWorker) Claim(alertID, sink string) bool {
	return w.seen.SetIfAbsent(deliveryKey(alertID, sink), time.Now())
}

// Release implements notify.DeliveryLog.
func (w *NotificationWorker) Release(alertID, sink string) {
	w.seen.Delete(deliveryKey(alertID, sink))
}

// HandleAlertNotification processes a single alert notification message from AMQP.
// A returned error makes the consumer requeue the message once.
func (w *NotificationWorker) HandleAlertNotification(ctx context.Context, msg *amqp.AlertNotificationMessage) error {
	w.logger.InfoContext(ctx, "Processing alert notification",
		log.FieldAlertID, msg.AlertID,
		log.FieldAlertType, msg.Type,
		log.FieldOwner, msg.Owner)

	if err := w.sinks.DeliverOnce(ctx, msg.Notification(), w); err != nil {
		return fmt.Errorf("deliver alert %s: %w", msg.AlertID, err)
	}

	w.logger.InfoContext(ctx, "Alert notification delivered",
		log.FieldAlertID, msg.AlertID,
		log.FieldRecipient, msg.Recipient)
	return nil
}
