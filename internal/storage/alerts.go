package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"budgetflow/internal/core"
)

type alertRow struct {
	ID          string `db:"id"`
	Owner       string `db:"owner"`
	Type        string `db:"type"`
	CategoryID  string `db:"category_id"`
	Message     string `db:"message"`
	Payload     string `db:"payload"`
	DedupKey    string `db:"dedup_key"`
	PeriodStart int64  `db:"period_start"`
	Read        bool   `db:"is_read"`
	Resolved    bool   `db:"is_resolved"`
	CreatedAt   int64  `db:"created_at"`
}

const alertColumns = `id, owner, type, category_id, message, payload, dedup_key, period_start, is_read, is_resolved, created_at`

func (r alertRow) toCore() (core.Alert, error) {
	payload, err := core.DecodePayload(core.AlertType(r.Type), []byte(r.Payload))
	if err != nil {
		return core.Alert{}, err
	}
	return core.Alert{
		ID:          r.ID,
		Owner:       r.Owner,
		Type:        core.AlertType(r.Type),
		CategoryID:  r.CategoryID,
		Message:     r.Message,
		Payload:     payload,
		DedupKey:    r.DedupKey,
		PeriodStart: fromMillis(r.PeriodStart),
		Read:        r.Read,
		Resolved:    r.Resolved,
		CreatedAt:   fromMillis(r.CreatedAt),
	}, nil
}

// InsertAlert stores a new alert. It returns core.ErrDuplicateAlert when an
// alert with the same owner, type, dedup key and period already exists.
func (s *SQLiteStore) InsertAlert(ctx context.Context, a core.Alert) error {
	payload, err := core.EncodePayload(a.Payload)
	if err != nil {
		return fmt.Errorf("encode alert payload: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)
		ON CONFLICT (owner, type, dedup_key, period_start) DO NOTHING`,
		a.ID, a.Owner, string(a.Type), a.CategoryID, a.Message, string(payload),
		a.DedupKey, toMillis(a.PeriodStart), toMillis(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrDuplicateAlert
	}
	return nil
}

// AlertExists reports whether an alert of the given type and dedup key was
// created at or after since.
func (s *SQLiteStore) AlertExists(ctx context.Context, owner string, t core.AlertType, dedupKey string, since time.Time) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM alerts
		WHERE owner = ? AND type = ? AND dedup_key = ? AND created_at >= ?`,
		owner, string(t), dedupKey, toMillis(since))
	if err != nil {
		return false, fmt.Errorf("check alert exists: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetAlert(ctx context.Context, owner, id string) (core.Alert, error) {
	var row alertRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+alertColumns+` FROM alerts WHERE owner = ? AND id = ?`, owner, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Alert{}, core.ErrNotFound
	}
	if err != nil {
		return core.Alert{}, fmt.Errorf("get alert: %w", err)
	}
	return row.toCore()
}

// ListAlerts returns the owner's alerts newest first.
func (s *SQLiteStore) ListAlerts(ctx context.Context, owner string, f core.AlertFilter) ([]core.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE owner = ?`
	args := []any{owner}
	if f.UnreadOnly {
		query += ` AND is_read = 0`
	}
	if f.UnresolvedOnly {
		query += ` AND is_resolved = 0`
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	var rows []alertRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	out := make([]core.Alert, 0, len(rows))
	for _, r := range rows {
		a, err := r.toCore()
		if err != nil {
			return nil, fmt.Errorf("alert %s: %w", r.ID, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// MarkAlertRead sets the read flag. Flags never go back to false.
func (s *SQLiteStore) MarkAlertRead(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET is_read = 1 WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	return expectAffected(res)
}

func (s *SQLiteStore) MarkAllAlertsRead(ctx context.Context, owner string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET is_read = 1 WHERE owner = ? AND is_read = 0`, owner)
	if err != nil {
		return 0, fmt.Errorf("mark all alerts read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) MarkAlertResolved(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET is_resolved = 1 WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("mark alert resolved: %w", err)
	}
	return expectAffected(res)
}

func (s *SQLiteStore) DeleteAlert(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return expectAffected(res)
}
