package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ordgate/core/pkg/fdc"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists commits in sqlite. modernc sqlite serializes writers,
// so the ledger's in-process company lock is the concurrency control here.
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
	CREATE TABLE IF NOT EXISTS fdc_commits (
		company_id TEXT NOT NULL,
		fdc_id TEXT NOT NULL,
		generated_at TEXT NOT NULL,
		decision_ref TEXT,
		financial_intent TEXT,
		decision_layer TEXT,
		budget_owner TEXT,
		budget_limit INTEGER NOT NULL DEFAULT 0,
		approval_mode TEXT,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		scope JSON,
		ord_status TEXT,
		policy_version TEXT,
		system_signature TEXT,
		human_signature TEXT,
		idempotency_key TEXT NOT NULL,
		previous_fdc_id TEXT NOT NULL,
		previous_chain_hash TEXT NOT NULL,
		chain_hash TEXT NOT NULL,
		PRIMARY KEY (company_id, fdc_id)
	);
	CREATE INDEX IF NOT EXISTS idx_fdc_commits_idem ON fdc_commits(company_id, idempotency_key);
	CREATE INDEX IF NOT EXISTS idx_fdc_commits_time ON fdc_commits(company_id, generated_at);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

const commitColumns = `company_id, fdc_id, generated_at, decision_ref, financial_intent, decision_layer,
	budget_owner, budget_limit, approval_mode, amount, currency, status, scope,
	ord_status, policy_version, system_signature, human_signature, idempotency_key,
	previous_fdc_id, previous_chain_hash, chain_hash`

func (s *SQLiteStore) GetByIdempotencyKey(ctx context.Context, companyID, key string) (*fdc.Commit, error) {
	query := `SELECT ` + commitColumns + ` FROM fdc_commits WHERE company_id = ? AND idempotency_key = ?`
	return s.queryOne(ctx, query, companyID, key)
}

func (s *SQLiteStore) Head(ctx context.Context, companyID string) (*fdc.Commit, error) {
	query := `SELECT ` + commitColumns + ` FROM fdc_commits
		WHERE company_id = ?
		ORDER BY generated_at DESC, rowid DESC
		LIMIT 1`
	return s.queryOne(ctx, query, companyID)
}

func (s *SQLiteStore) Insert(ctx context.Context, c *fdc.Commit) error {
	scopeJSON, err := json.Marshal(c.Scope)
	if err != nil {
		return fmt.Errorf("marshal scope: %w", err)
	}
	query := `INSERT INTO fdc_commits (` + commitColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		c.CompanyID, c.FdcID, c.GeneratedAt.UTC().Format(time.RFC3339Nano),
		c.DecisionRef, c.FinancialIntent, c.DecisionLayer,
		c.BudgetAuthority.Owner, c.BudgetAuthority.Limit, string(c.BudgetAuthority.ApprovalMode),
		c.Amount, c.Currency, string(c.Status), string(scopeJSON),
		c.Trace.ORDStatus, c.Trace.PolicyVersion,
		c.Signatures.System, c.Signatures.Human, c.IdempotencyKey,
		c.PreviousFdcID, c.PreviousChainHash, c.ChainHash,
	)
	return err
}

func (s *SQLiteStore) ListByCompany(ctx context.Context, companyID string) ([]*fdc.Commit, error) {
	query := `SELECT ` + commitColumns + ` FROM fdc_commits
		WHERE company_id = ?
		ORDER BY generated_at ASC, rowid ASC`
	rows, err := s.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var commits []*fdc.Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return commits, nil
}

func (s *SQLiteStore) GetByFdcID(ctx context.Context, companyID, fdcID string) (*fdc.Commit, error) {
	query := `SELECT ` + commitColumns + ` FROM fdc_commits WHERE company_id = ? AND fdc_id = ?`
	return s.queryOne(ctx, query, companyID, fdcID)
}

func (s *SQLiteStore) queryOne(ctx context.Context, query string, args ...any) (*fdc.Commit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanCommit(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommit(row rowScanner) (*fdc.Commit, error) {
	var c fdc.Commit
	var generatedAt, approvalMode, status, scopeJSON string
	if err := row.Scan(
		&c.CompanyID, &c.FdcID, &generatedAt, &c.DecisionRef, &c.FinancialIntent, &c.DecisionLayer,
		&c.BudgetAuthority.Owner, &c.BudgetAuthority.Limit, &approvalMode,
		&c.Amount, &c.Currency, &status, &scopeJSON,
		&c.Trace.ORDStatus, &c.Trace.PolicyVersion,
		&c.Signatures.System, &c.Signatures.Human, &c.IdempotencyKey,
		&c.PreviousFdcID, &c.PreviousChainHash, &c.ChainHash,
	); err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339Nano, generatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse generated_at: %w", err)
	}
	c.GeneratedAt = ts
	c.BudgetAuthority.ApprovalMode = fdc.ApprovalMode(approvalMode)
	c.Status = fdc.Status(status)
	if scopeJSON != "" && scopeJSON != "null" {
		if err := json.Unmarshal([]byte(scopeJSON), &c.Scope); err != nil {
			return nil, fmt.Errorf("parse scope: %w", err)
		}
	}
	return &c, nil
}
