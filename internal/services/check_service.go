package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetflow/internal/alerts"
	"budgetflow/internal/core"
	"budgetflow/internal/log"
)

// CheckReport lists the alerts a manual check created.
type CheckReport struct {
	Owner  string       `json:"owner"`
	RanAt  time.Time    `json:"ran_at"`
	Alerts []core.Alert `json:"-"`
}

// CheckService runs the periodic evaluators on demand.
type CheckService struct {
	threshold *alerts.ThresholdEvaluator
	net       *alerts.NetPositionEvaluator
	logger    *log.Logger
}

func NewCheckService(threshold *alerts.ThresholdEvaluator, net *alerts.NetPositionEvaluator, logger *log.Logger) *CheckService {
	if logger == nil {
		logger = log.Default(log.ComponentService)
	}
	return &CheckService{threshold: threshold, net: net, logger: logger}
}

// RunChecks evaluates every category limit and the net position windows for
// owner concurrently. Alerts created by one evaluator are reported even when
// the other fails.
func (s *CheckService) RunChecks(ctx context.Context, owner string, now time.Time) (CheckReport, error) {
	if owner == "" {
		return CheckReport{}, core.ErrEmptyOwner
	}
	report := CheckReport{Owner: owner, RanAt: now}

	var (
		mu   sync.Mutex
		errs []error
	)
	collect := func(name string, created []core.Alert, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Alerts = append(report.Alerts, created...)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		created, err := s.threshold.EvaluateAll(ctx, owner, now)
		collect("threshold", created, err)
		return nil
	})
	g.Go(func() error {
		created, err := s.net.Evaluate(ctx, owner, now)
		collect("net position", created, err)
		return nil
	})
	g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		s.logger.ErrorContext(ctx, "Manual check finished with errors",
			log.FieldOwner, owner, log.FieldError, err)
	}
	s.logger.InfoContext(ctx, "Manual check completed",
		log.FieldOwner, owner,
		log.FieldOperation, log.OpEvaluate,
		"alerts_created", len(report.Alerts))
	return report, err
}
