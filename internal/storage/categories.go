package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"budgetflow/internal/core"
)

type categoryRow struct {
	ID         string `db:"id"`
	Owner      string `db:"owner"`
	Name       string `db:"name"`
	LimitCents int64  `db:"limit_cents"`
	CreatedAt  int64  `db:"created_at"`
}

func (r categoryRow) toCore() core.Category {
	return core.Category{
		ID:        r.ID,
		Owner:     r.Owner,
		Name:      r.Name,
		Limit:     core.Cents(r.LimitCents),
		CreatedAt: fromMillis(r.CreatedAt),
	}
}

func (s *SQLiteStore) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, owner, name, limit_cents, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Owner, c.Name, c.Limit.Cents, toMillis(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCategory(ctx context.Context, owner, id string) (core.Category, error) {
	var row categoryRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, owner, name, limit_cents, created_at
		FROM categories WHERE owner = ? AND id = ?`, owner, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return row.toCore(), nil
}

func (s *SQLiteStore) ListCategories(ctx context.Context, owner string) ([]core.Category, error) {
	var rows []categoryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, owner, name, limit_cents, created_at
		FROM categories WHERE owner = ? ORDER BY name`, owner)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, len(rows))
	for i, r := range rows {
		out[i] = r.toCore()
	}
	return out, nil
}

func (s *SQLiteStore) SetCategoryLimit(ctx context.Context, owner, id string, limit core.Money) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET limit_cents = ? WHERE owner = ? AND id = ?`,
		limit.Cents, owner, id)
	if err != nil {
		return fmt.Errorf("update category limit: %w", err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
