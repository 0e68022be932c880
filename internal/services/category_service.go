package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"budgetflow/internal/alerts"
	"budgetflow/internal/core"
	"budgetflow/internal/ledger"
	"budgetflow/internal/log"
)

type CategoryStore interface {
	CreateCategory(ctx context.Context, c core.Category) error
	GetCategory(ctx context.Context, owner, id string) (core.Category, error)
	ListCategories(ctx context.Context, owner string) ([]core.Category, error)
	SetCategoryLimit(ctx context.Context, owner, id string, limit core.Money) error
}

type PreferencesStore interface {
	GetPreferences(ctx context.Context, owner string) (core.Preferences, error)
	SavePreferences(ctx context.Context, p core.Preferences, now time.Time) error
}

// CategoryService manages categories and their monthly limits, and serves
// the ledger view of a month.
type CategoryService struct {
	store     CategoryStore
	ledger    *ledger.Ledger
	threshold *alerts.ThresholdEvaluator
	logger    *log.Logger
	clock     func() time.Time
}

type CategoryServiceOption func(*CategoryService)

func WithCategoryClock(now func() time.Time) CategoryServiceOption {
	return func(s *CategoryService) { s.clock = now }
}

func NewCategoryService(store CategoryStore, l *ledger.Ledger, threshold *alerts.ThresholdEvaluator, logger *log.Logger,
	opts ...CategoryServiceOption) *CategoryService {
	if logger == nil {
		logger = log.Default(log.ComponentService)
	}
	s := &CategoryService{store: store, ledger: l, threshold: threshold, logger: logger, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CategoryService) Create(ctx context.Context, owner, name string, limit core.Money) (core.Category, error) {
	c := core.Category{
		ID:        uuid.NewString(),
		Owner:     owner,
		Name:      strings.TrimSpace(name),
		Limit:     limit,
		CreatedAt: s.clock(),
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *CategoryService) List(ctx context.Context, owner string) ([]core.Category, error) {
	cs, err := s.store.ListCategories(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cs, nil
}

// SetLimit changes a category's monthly limit and re-evaluates it against
// the current month's spend.
func (s *CategoryService) SetLimit(ctx context.Context, owner, id string, limit core.Money) (core.Category, error) {
	if limit.Cents < 0 {
		return core.Category{}, core.ErrInvalidLimit
	}
	if err := s.store.SetCategoryLimit(ctx, owner, id, limit); err != nil {
		return core.Category{}, fmt.Errorf("set category limit: %w", err)
	}
	c, err := s.store.GetCategory(ctx, owner, id)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	if s.threshold != nil {
		if _, err := s.threshold.EvaluateCategory(ctx, owner, c, s.clock()); err != nil {
			s.logger.ErrorContext(ctx, "Threshold evaluation failed after limit change",
				log.FieldOwner, owner, log.FieldCategory, id, log.FieldError, err)
		}
	}
	return c, nil
}

// Spending returns the ledger buckets of one month. Reading the current
// month opens any missing buckets first.
func (s *CategoryService) Spending(ctx context.Context, owner string, year, month int) ([]core.LedgerEntry, error) {
	if month < 1 || month > 12 {
		return nil, core.ErrInvalidDate
	}
	now := s.clock()
	if y, m := s.ledger.Calendar().Bucket(now); y == year && m == month {
		if err := s.ledger.EnsureMonth(ctx, owner, now); err != nil {
			s.logger.WarnContext(ctx, "Failed to open ledger month",
				log.FieldOwner, owner, log.FieldError, err)
		}
	}
	return s.ledger.MonthEntries(ctx, owner, year, month)
}

// PreferencesService reads and writes notification preferences.
type PreferencesService struct {
	store PreferencesStore
	clock func() time.Time
}

type PreferencesServiceOption func(*PreferencesService)

func WithPreferencesClock(now func() time.Time) PreferencesServiceOption {
	return func(s *PreferencesService) { s.clock = now }
}

func NewPreferencesService(store PreferencesStore, opts ...PreferencesServiceOption) *PreferencesService {
	s := &PreferencesService{store: store, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PreferencesService) Get(ctx context.Context, owner string) (core.Preferences, error) {
	if owner == "" {
		return core.Preferences{}, core.ErrEmptyOwner
	}
	p, err := s.store.GetPreferences(ctx, owner)
	if err != nil {
		return core.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	return p, nil
}

func (s *PreferencesService) Save(ctx context.Context, p core.Preferences) (core.Preferences, error) {
	p.Email = strings.TrimSpace(p.Email)
	p.AlertEmail = strings.TrimSpace(p.AlertEmail)
	if err := p.Validate(); err != nil {
		return core.Preferences{}, err
	}
	if err := s.store.SavePreferences(ctx, p, s.clock()); err != nil {
		return core.Preferences{}, fmt.Errorf("save preferences: %w", err)
	}
	return p, nil
}
