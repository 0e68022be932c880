package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"budgetflow/internal/ledger"
	"budgetflow/internal/log"
)

// OwnerLister enumerates the owners known to the store.
type OwnerLister interface {
	Owners(ctx context.Context) ([]string, error)
}

// CheckSchedulerConfig holds configuration for the check scheduler
type CheckSchedulerConfig struct {
	// Interval is how often every owner is checked (default: 1h)
	Interval time.Duration
	// Clock supplies the check time (default: time.Now)
	Clock func() time.Time
}

func DefaultCheckSchedulerConfig() CheckSchedulerConfig {
	return CheckSchedulerConfig{Interval: time.Hour}
}

// CheckScheduler periodically opens the current ledger month and runs the
// manual checks for every owner.
type CheckScheduler struct {
	owners OwnerLister
	ledger *ledger.Ledger
	checks *CheckService
	config CheckSchedulerConfig
	logger *log.Logger
	clock  func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewCheckScheduler(owners OwnerLister, l *ledger.Ledger, checks *CheckService, config CheckSchedulerConfig, logger *log.Logger) *CheckScheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultCheckSchedulerConfig().Interval
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if logger == nil {
		logger = log.Default(log.ComponentService)
	}
	return &CheckScheduler{
		owners: owners,
		ledger: l,
		checks: checks,
		config: config,
		logger: logger,
		clock:  config.Clock,
	}
}

// Start begins the check loop. Returns an error if already running.
func (s *CheckScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("check scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	s.logger.InfoContext(ctx, "Check scheduler started", "interval", s.config.Interval)
	return nil
}

// Stop signals the loop and waits for the current pass to finish.
func (s *CheckScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Check scheduler stopped")
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Check scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *CheckScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *CheckScheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce checks every owner once and returns how many alerts were created.
func (s *CheckScheduler) RunOnce(ctx context.Context) int {
	owners, err := s.owners.Owners(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list owners", log.FieldError, err)
		return 0
	}

	created := 0
	for _, owner := range owners {
		select {
		case <-s.stopCh:
			return created
		case <-ctx.Done():
			return created
		default:
		}

		now := s.clock()
		if err := s.ledger.EnsureMonth(ctx, owner, now); err != nil {
			s.logger.WarnContext(ctx, "Failed to open ledger month",
				log.FieldOwner, owner, log.FieldError, err)
		}
		report, err := s.checks.RunChecks(ctx, owner, now)
		if err != nil {
			// already logged by RunChecks
			s.logger.DebugContext(ctx, "Scheduled check incomplete", log.FieldOwner, owner)
		}
		created += len(report.Alerts)
	}

	if created > 0 {
		s.logger.InfoContext(ctx, "Scheduled checks created alerts",
			"owners", len(owners), "alerts_created", created)
	}
	return created
}
