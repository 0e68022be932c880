package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"budgetflow/internal/alerts"
	"budgetflow/internal/core"
	"budgetflow/internal/ledger"
	"budgetflow/internal/log"
)

type TransactionStore interface {
	CreateTransaction(ctx context.Context, t core.Transaction) error
	GetTransaction(ctx context.Context, owner, id string) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, owner, id string) error
	ListTransactions(ctx context.Context, owner string, f core.TransactionFilter) ([]core.Transaction, error)
	GetCategory(ctx context.Context, owner, id string) (core.Category, error)
}

// TransactionInput carries the caller-editable fields of a transaction.
type TransactionInput struct {
	CategoryID  string
	Kind        core.Kind
	Amount      core.Money
	Date        time.Time
	Description string
}

// TransactionService orchestrates transaction writes with the spending ledger
// and the alert evaluators. The write is the only step whose failure reaches
// the caller; ledger and evaluator failures are logged.
type TransactionService struct {
	store     TransactionStore
	ledger    *ledger.Ledger
	threshold *alerts.ThresholdEvaluator
	anomaly   *alerts.AnomalyDetector
	logger    *log.Logger
	newID     func() string
	clock     func() time.Time
}

type TransactionServiceOption func(*TransactionService)

func WithTransactionLogger(l *log.Logger) TransactionServiceOption {
	return func(s *TransactionService) { s.logger = l }
}

func WithTransactionClock(now func() time.Time) TransactionServiceOption {
	return func(s *TransactionService) { s.clock = now }
}

func NewTransactionService(store TransactionStore, l *ledger.Ledger, threshold *alerts.ThresholdEvaluator,
	anomaly *alerts.AnomalyDetector, opts ...TransactionServiceOption) *TransactionService {
	s := &TransactionService{
		store:     store,
		ledger:    l,
		threshold: threshold,
		anomaly:   anomaly,
		logger:    log.Default(log.ComponentService),
		newID:     uuid.NewString,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create saves a transaction, then updates the ledger and runs the evaluators.
func (s *TransactionService) Create(ctx context.Context, owner string, in TransactionInput) (core.Transaction, error) {
	now := s.clock()
	t := core.Transaction{
		ID:          s.newID(),
		Owner:       owner,
		CategoryID:  in.CategoryID,
		Kind:        in.Kind,
		Amount:      in.Amount,
		Date:        in.Date,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.requireCategory(ctx, owner, t.CategoryID); err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.afterWrite(ctx, core.TransactionWritten{Change: core.ChangeCreate, Current: t}, now)
	return t, nil
}

// Update replaces the editable fields of an existing transaction.
func (s *TransactionService) Update(ctx context.Context, owner, id string, in TransactionInput) (core.Transaction, error) {
	prev, err := s.store.GetTransaction(ctx, owner, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	now := s.clock()
	t := prev
	t.CategoryID = in.CategoryID
	t.Kind = in.Kind
	t.Amount = in.Amount
	t.Date = in.Date
	t.Description = strings.TrimSpace(in.Description)
	t.UpdatedAt = now
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if t.CategoryID != prev.CategoryID {
		if err := s.requireCategory(ctx, owner, t.CategoryID); err != nil {
			return core.Transaction{}, err
		}
	}
	if err := s.store.UpdateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	s.afterWrite(ctx, core.TransactionWritten{Change: core.ChangeUpdate, Current: t, Previous: &prev}, now)
	return t, nil
}

// Delete removes a transaction and reverses its ledger contribution.
func (s *TransactionService) Delete(ctx context.Context, owner, id string) error {
	prev, err := s.store.GetTransaction(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	if err := s.store.DeleteTransaction(ctx, owner, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	s.afterWrite(ctx, core.TransactionWritten{Change: core.ChangeDelete, Current: prev}, s.clock())
	return nil
}

func (s *TransactionService) Get(ctx context.Context, owner, id string) (core.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, owner, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (s *TransactionService) List(ctx context.Context, owner string, f core.TransactionFilter) ([]core.Transaction, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, core.ErrInvalidKind
	}
	ts, err := s.store.ListTransactions(ctx, owner, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return ts, nil
}

func (s *TransactionService) requireCategory(ctx context.Context, owner, id string) error {
	if _, err := s.store.GetCategory(ctx, owner, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
		}
		return fmt.Errorf("get category: %w", err)
	}
	return nil
}

// afterWrite runs the side effects of a committed write. Nothing here fails
// the request.
func (s *TransactionService) afterWrite(ctx context.Context, ev core.TransactionWritten, now time.Time) {
	cur := ev.Current
	if err := s.ledger.ApplyMutation(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to update spending ledger",
			log.FieldOwner, cur.Owner,
			log.FieldTransaction, cur.ID,
			log.FieldOperation, string(ev.Change),
			log.FieldError, err)
	}

	if ev.Change == core.ChangeDelete {
		return
	}

	if s.threshold != nil {
		for _, categoryID := range affectedCategories(ev) {
			if _, err := s.threshold.EvaluateCategoryID(ctx, cur.Owner, categoryID, now); err != nil {
				s.logger.ErrorContext(ctx, "Threshold evaluation failed",
					log.FieldOwner, cur.Owner,
					log.FieldCategory, categoryID,
					log.FieldError, err)
			}
		}
	}

	if ev.Change != core.ChangeCreate || !cur.IsExpense() || s.anomaly == nil {
		return
	}
	if _, err := s.anomaly.CheckUnusual(ctx, cur, now); err != nil {
		s.logger.ErrorContext(ctx, "Unusual expense check failed",
			log.FieldOwner, cur.Owner,
			log.FieldTransaction, cur.ID,
			log.FieldError, err)
	}
	if _, err := s.anomaly.CheckBurst(ctx, cur.Owner, now); err != nil {
		s.logger.ErrorContext(ctx, "Burst check failed",
			log.FieldOwner, cur.Owner,
			log.FieldError, err)
	}
}

// affectedCategories lists the expense categories whose spend a write may have
// raised. A category that only lost spend cannot cross a threshold.
func affectedCategories(ev core.TransactionWritten) []string {
	if !ev.Current.IsExpense() {
		return nil
	}
	return []string{ev.Current.CategoryID}
}
