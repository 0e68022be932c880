package storage

import (
	"context"
	"fmt"
	"time"

	"budgetflow/internal/core"
)

type ledgerRow struct {
	Owner       string `db:"owner"`
	CategoryID  string `db:"category_id"`
	Year        int    `db:"year"`
	Month       int    `db:"month"`
	AmountCents int64  `db:"amount_cents"`
	UpdatedAt   int64  `db:"updated_at"`
}

// AddToLedger atomically increments a bucket, creating it when missing.
func (s *SQLiteStore) AddToLedger(ctx context.Context, owner, categoryID string, year, month int, delta core.Money, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (owner, category_id, year, month, amount_cents, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, category_id, year, month) DO UPDATE SET
			amount_cents = ledger_entries.amount_cents + excluded.amount_cents,
			updated_at = excluded.updated_at`,
		owner, categoryID, year, month, delta.Cents, toMillis(now))
	if err != nil {
		return fmt.Errorf("increment ledger: %w", err)
	}
	return nil
}

// SetLedger overwrites a bucket.
func (s *SQLiteStore) SetLedger(ctx context.Context, owner, categoryID string, year, month int, amount core.Money, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (owner, category_id, year, month, amount_cents, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, category_id, year, month) DO UPDATE SET
			amount_cents = excluded.amount_cents,
			updated_at = excluded.updated_at`,
		owner, categoryID, year, month, amount.Cents, toMillis(now))
	if err != nil {
		return fmt.Errorf("set ledger: %w", err)
	}
	return nil
}

// LedgerAmount returns a bucket's amount, zero when the bucket does not exist.
func (s *SQLiteStore) LedgerAmount(ctx context.Context, owner, categoryID string, year, month int) (core.Money, error) {
	var cents int64
	err := s.db.GetContext(ctx, &cents, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries
		WHERE owner = ? AND category_id = ? AND year = ? AND month = ?`,
		owner, categoryID, year, month)
	if err != nil {
		return core.Money{}, fmt.Errorf("get ledger amount: %w", err)
	}
	return core.Cents(cents), nil
}

func (s *SQLiteStore) LedgerMonth(ctx context.Context, owner string, year, month int) ([]core.LedgerEntry, error) {
	var rows []ledgerRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT owner, category_id, year, month, amount_cents, updated_at
		FROM ledger_entries
		WHERE owner = ? AND year = ? AND month = ?
		ORDER BY category_id`, owner, year, month)
	if err != nil {
		return nil, fmt.Errorf("list ledger month: %w", err)
	}
	out := make([]core.LedgerEntry, len(rows))
	for i, r := range rows {
		out[i] = core.LedgerEntry{
			Owner:      r.Owner,
			CategoryID: r.CategoryID,
			Year:       r.Year,
			Month:      r.Month,
			Amount:     core.Cents(r.AmountCents),
			UpdatedAt:  fromMillis(r.UpdatedAt),
		}
	}
	return out, nil
}

// EnsureLedgerMonth creates zero buckets for every category of the owner
// that has none for the month. Existing buckets are left untouched.
func (s *SQLiteStore) EnsureLedgerMonth(ctx context.Context, owner string, year, month int, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (owner, category_id, year, month, amount_cents, updated_at)
		SELECT owner, id, ?, ?, 0, ? FROM categories WHERE owner = ?
		ON CONFLICT (owner, category_id, year, month) DO NOTHING`,
		year, month, toMillis(now), owner)
	if err != nil {
		return 0, fmt.Errorf("ensure ledger month: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ZeroLedgerMonth sets every bucket of the owner's month to zero.
func (s *SQLiteStore) ZeroLedgerMonth(ctx context.Context, owner string, year, month int, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledger_entries SET amount_cents = 0, updated_at = ?
		WHERE owner = ? AND year = ? AND month = ?`,
		toMillis(now), owner, year, month)
	if err != nil {
		return 0, fmt.Errorf("zero ledger month: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
