package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
)

// Sink is a delivery target on the worker side.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n core.Notification) error
}

// DeliveryLog records which sinks already hold a notification. Claim
// returns false when the sink has the alert or is delivering it now; a
// failed attempt is released so a redelivery can retry that sink alone.
type DeliveryLog interface {
	Claim(alertID, sink string) bool
	Release(alertID, sink string)
}

// Fanout delivers to every sink concurrently and joins their failures.
type Fanout struct {
	sinks  []Sink
	logger *log.Logger
}

func NewFanout(logger *log.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = log.Default(log.ComponentNotifier)
	}
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) Deliver(ctx context.Context, n core.Notification) error {
	return f.DeliverOnce(ctx, n, nil)
}

// DeliverOnce skips sinks the delivery log has already claimed for n.
// A nil log delivers to every sink.
func (f *Fanout) DeliverOnce(ctx context.Context, n core.Notification, dl DeliveryLog) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	for _, s := range f.sinks {
		if dl != nil && !dl.Claim(n.AlertID, s.Name()) {
			f.logger.DebugContext(ctx, "Sink already holds alert",
				log.FieldSink, s.Name(),
				log.FieldAlertID, n.AlertID)
			continue
		}
		g.Go(func() error {
			if err := s.Deliver(ctx, n); err != nil {
				if dl != nil {
					dl.Release(n.AlertID, s.Name())
				}
				f.logger.ErrorContext(ctx, "Sink delivery failed",
					log.FieldSink, s.Name(),
					log.FieldAlertID, n.AlertID,
					log.FieldError, err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// LogSink records delivered notifications in the worker log.
type LogSink struct {
	notifier *LogNotifier
}

func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{notifier: NewLogNotifier(logger)}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, n core.Notification) error {
	return s.notifier.Send(ctx, n)
}
