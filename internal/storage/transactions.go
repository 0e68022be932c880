package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"budgetflow/internal/core"
)

type transactionRow struct {
	ID          string `db:"id"`
	Owner       string `db:"owner"`
	CategoryID  string `db:"category_id"`
	Kind        string `db:"kind"`
	AmountCents int64  `db:"amount_cents"`
	OccurredAt  int64  `db:"occurred_at"`
	Description string `db:"description"`
	CreatedAt   int64  `db:"created_at"`
	UpdatedAt   int64  `db:"updated_at"`
}

const transactionColumns = `id, owner, category_id, kind, amount_cents, occurred_at, description, created_at, updated_at`

func (r transactionRow) toCore() core.Transaction {
	return core.Transaction{
		ID:          r.ID,
		Owner:       r.Owner,
		CategoryID:  r.CategoryID,
		Kind:        core.Kind(r.Kind),
		Amount:      core.Cents(r.AmountCents),
		Date:        fromMillis(r.OccurredAt),
		Description: r.Description,
		CreatedAt:   fromMillis(r.CreatedAt),
		UpdatedAt:   fromMillis(r.UpdatedAt),
	}
}

func (s *SQLiteStore) CreateTransaction(ctx context.Context, t core.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Owner, t.CategoryID, string(t.Kind), t.Amount.Cents,
		toMillis(t.Date), t.Description, toMillis(t.CreatedAt), toMillis(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, owner, id string) (core.Transaction, error) {
	var row transactionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+transactionColumns+` FROM transactions WHERE owner = ? AND id = ?`, owner, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return row.toCore(), nil
}

func (s *SQLiteStore) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category_id = ?, kind = ?, amount_cents = ?, occurred_at = ?, description = ?, updated_at = ?
		WHERE owner = ? AND id = ?`,
		t.CategoryID, string(t.Kind), t.Amount.Cents, toMillis(t.Date), t.Description,
		toMillis(t.UpdatedAt), t.Owner, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return expectAffected(res)
}

func (s *SQLiteStore) DeleteTransaction(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return expectAffected(res)
}

// ListTransactions returns the owner's transactions newest first.
func (s *SQLiteStore) ListTransactions(ctx context.Context, owner string, f core.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE owner = ?`
	args := []any{owner}
	if f.CategoryID != "" {
		query += ` AND category_id = ?`
		args = append(args, f.CategoryID)
	}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	clause, args := rangeClause("occurred_at", f.From, f.To, args)
	query += clause + ` ORDER BY occurred_at DESC, created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	var rows []transactionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.toCore()
	}
	return out, nil
}

// SumExpenses totals expense amounts dated in [from, to). An empty
// categoryID sums across categories.
func (s *SQLiteStore) SumExpenses(ctx context.Context, owner, categoryID string, from, to time.Time) (core.Money, error) {
	query := `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE owner = ? AND kind = 'expense'`
	args := []any{owner}
	if categoryID != "" {
		query += ` AND category_id = ?`
		args = append(args, categoryID)
	}
	clause, args := rangeClause("occurred_at", from, to, args)

	var sum int64
	if err := s.db.GetContext(ctx, &sum, query+clause, args...); err != nil {
		return core.Money{}, fmt.Errorf("sum expenses: %w", err)
	}
	return core.Cents(sum), nil
}

// ExpenseStats returns the sum and count of a category's expenses dated in
// [from, to), leaving out excludeID.
func (s *SQLiteStore) ExpenseStats(ctx context.Context, owner, categoryID, excludeID string, from, to time.Time) (core.Money, int, error) {
	query := `SELECT COALESCE(SUM(amount_cents), 0) AS total, COUNT(*) AS n
		FROM transactions
		WHERE owner = ? AND kind = 'expense' AND category_id = ? AND id <> ?`
	clause, args := rangeClause("occurred_at", from, to, []any{owner, categoryID, excludeID})

	var stats struct {
		Total int64 `db:"total"`
		N     int   `db:"n"`
	}
	if err := s.db.GetContext(ctx, &stats, query+clause, args...); err != nil {
		return core.Money{}, 0, fmt.Errorf("expense stats: %w", err)
	}
	return core.Cents(stats.Total), stats.N, nil
}

// CountExpenses counts expense transactions dated in [from, to).
func (s *SQLiteStore) CountExpenses(ctx context.Context, owner string, from, to time.Time) (int, error) {
	clause, args := rangeClause("occurred_at", from, to, []any{owner})
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM transactions WHERE owner = ? AND kind = 'expense'`+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("count expenses: %w", err)
	}
	return n, nil
}

// Totals returns income and expense sums dated in [from, to).
func (s *SQLiteStore) Totals(ctx context.Context, owner string, from, to time.Time) (core.Money, core.Money, error) {
	clause, args := rangeClause("occurred_at", from, to, []any{owner})
	var totals struct {
		Income  int64 `db:"income"`
		Expense int64 `db:"expense"`
	}
	err := s.db.GetContext(ctx, &totals, `
		SELECT
			COALESCE(SUM(CASE WHEN kind = 'income' THEN amount_cents END), 0) AS income,
			COALESCE(SUM(CASE WHEN kind = 'expense' THEN amount_cents END), 0) AS expense
		FROM transactions WHERE owner = ?`+clause, args...)
	if err != nil {
		return core.Money{}, core.Money{}, fmt.Errorf("sum totals: %w", err)
	}
	return core.Cents(totals.Income), core.Cents(totals.Expense), nil
}
