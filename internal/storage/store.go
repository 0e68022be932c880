package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists categories, transactions, ledger buckets, alerts and
// preferences in one SQLite file. Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db *sqlx.DB
}

func dsn(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sqlx.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer connection serialises statements; busy_timeout covers
	// the migration connection and external readers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Owners lists every owner with at least one category or saved preferences.
func (s *SQLiteStore) Owners(ctx context.Context) ([]string, error) {
	var owners []string
	err := s.db.SelectContext(ctx, &owners, `
		SELECT owner FROM categories
		UNION
		SELECT owner FROM preferences
		ORDER BY owner`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	return owners, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// rangeClause appends half-open bounds on column; a zero bound is open.
func rangeClause(column string, from, to time.Time, args []any) (string, []any) {
	var b strings.Builder
	if !from.IsZero() {
		b.WriteString(" AND " + column + " >= ?")
		args = append(args, toMillis(from))
	}
	if !to.IsZero() {
		b.WriteString(" AND " + column + " < ?")
		args = append(args, toMillis(to))
	}
	return b.String(), args
}
