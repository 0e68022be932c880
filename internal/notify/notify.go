// Package notify delivers rendered alerts. The API side publishes through a
// Notifier; the worker side fans each consumed notification out to Sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
)

// ErrCircuitOpen is returned while the breaker rejects sends.
var ErrCircuitOpen = errors.New("notifier circuit breaker is open")

// Publisher is the transport an AMQPNotifier sends through.
type Publisher interface {
	PublishAlertNotification(ctx context.Context, n core.Notification) error
}

// AMQPNotifier hands notifications to the message broker for the worker.
type AMQPNotifier struct {
	publisher Publisher
}

func NewAMQPNotifier(p Publisher) *AMQPNotifier {
	return &AMQPNotifier{publisher: p}
}

func (n *AMQPNotifier) Send(ctx context.Context, msg core.Notification) error {
	if err := n.publisher.PublishAlertNotification(ctx, msg); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default(log.ComponentNotifier)
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg core.Notification) error {
	n.logger.InfoContext(ctx, "Alert notification",
		log.FieldAlertID, msg.AlertID,
		log.FieldAlertType, msg.Type,
		log.FieldOwner, msg.Owner,
		log.FieldRecipient, msg.Recipient,
		"subject", msg.Subject)
	return nil
}

type sender interface {
	Send(ctx context.Context, msg core.Notification) error
}

type BreakerSettings struct {
	Name     string
	Failures uint32        // consecutive failures that open the circuit
	Timeout  time.Duration // open-state duration before a probe
}

// BreakerNotifier stops calling a failing notifier until the open timeout elapses.
type BreakerNotifier struct {
	next    sender
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerNotifier(next sender, s BreakerSettings, logger *log.Logger) *BreakerNotifier {
	if logger == nil {
		logger = log.Default(log.ComponentNotifier)
	}
	if s.Failures == 0 {
		s.Failures = 5
	}
	if s.Name == "" {
		s.Name = "notifier"
	}
	settings := gobreaker.Settings{
		Name:    s.Name,
		Timeout: s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Notifier circuit state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerNotifier{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerNotifier) Send(ctx context.Context, msg core.Notification) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

// State reports the breaker state, e.g. "closed" or "open".
func (b *BreakerNotifier) State() string {
	return b.breaker.State().String()
}
