package quota

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists quota state and debounce marks in sqlite, sharing the
// database the ledger writes to.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the store and runs its migration.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS quota_state (
		tenant_id TEXT PRIMARY KEY,
		monthly_quota INTEGER NOT NULL,
		monthly_used INTEGER NOT NULL,
		burst_remaining INTEGER NOT NULL,
		reset_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS quota_admissions (
		tenant_id TEXT NOT NULL,
		context_key TEXT NOT NULL,
		admitted_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, context_key)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) GetState(ctx context.Context, tenantID string) (*State, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, monthly_quota, monthly_used, burst_remaining, reset_at
		 FROM quota_state WHERE tenant_id = ?`, tenantID)

	var st State
	var resetAt string
	err := row.Scan(&st.TenantID, &st.MonthlyQuota, &st.MonthlyUsed, &st.BurstRemaining, &resetAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, resetAt)
	if err != nil {
		return nil, fmt.Errorf("parse reset_at: %w", err)
	}
	st.ResetAt = ts
	return &st, nil
}

func (s *SQLiteStore) PutState(ctx context.Context, st *State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_state (tenant_id, monthly_quota, monthly_used, burst_remaining, reset_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			monthly_quota = excluded.monthly_quota,
			monthly_used = excluded.monthly_used,
			burst_remaining = excluded.burst_remaining,
			reset_at = excluded.reset_at`,
		st.TenantID, st.MonthlyQuota, st.MonthlyUsed, st.BurstRemaining,
		st.ResetAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) Seen(ctx context.Context, tenantID, contextKey string, now time.Time) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT admitted_at FROM quota_admissions WHERE tenant_id = ? AND context_key = ?`,
		tenantID, contextKey)

	var admittedAt string
	err := row.Scan(&admittedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	last, err := time.Parse(time.RFC3339Nano, admittedAt)
	if err != nil {
		return false, fmt.Errorf("parse admitted_at: %w", err)
	}
	return now.Sub(last) < DebounceTTL, nil
}

func (s *SQLiteStore) Mark(ctx context.Context, tenantID, contextKey string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_admissions (tenant_id, context_key, admitted_at)
		VALUES (?, ?, ?)
		ON CONFLICT (tenant_id, context_key) DO UPDATE SET admitted_at = excluded.admitted_at`,
		tenantID, contextKey, now.UTC().Format(time.RFC3339Nano))
	return err
}
