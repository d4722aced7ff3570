package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ordgate/core/pkg/fdc"

	_ "github.com/lib/pq"
)

// PostgresStore persists commits in PostgreSQL. It implements TxStore so the
// ledger can run the whole check-then-insert sequence inside a serializable
// transaction, which is what makes concurrent appends from multiple
// processes safe.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection. Migration is explicit.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the commits table.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS fdc_commits (
		company_id TEXT NOT NULL,
		fdc_id TEXT NOT NULL,
		generated_at TIMESTAMPTZ NOT NULL,
		decision_ref TEXT,
		financial_intent TEXT,
		decision_layer TEXT,
		budget_owner TEXT,
		budget_limit BIGINT NOT NULL DEFAULT 0,
		approval_mode TEXT,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		scope JSONB,
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
	CREATE INDEX IF NOT EXISTS idx_fdc_commits_time ON fdc_commits(company_id, generated_at);`)
	return err
}

// RunInCompanyTx executes fn against a transaction-scoped store view at
// SERIALIZABLE isolation. Two concurrent appends for the same company cannot
// both miss the idempotency check and fork the chain.
func (s *PostgresStore) RunInCompanyTx(ctx context.Context, _ string, fn func(Store) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTxStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) GetByIdempotencyKey(ctx context.Context, companyID, key string) (*fdc.Commit, error) {
	return pgGetByIdempotencyKey(ctx, s.db, companyID, key)
}

func (s *PostgresStore) Head(ctx context.Context, companyID string) (*fdc.Commit, error) {
	return pgHead(ctx, s.db, companyID)
}

func (s *PostgresStore) Insert(ctx context.Context, c *fdc.Commit) error {
	return pgInsert(ctx, s.db, c)
}

func (s *PostgresStore) ListByCompany(ctx context.Context, companyID string) ([]*fdc.Commit, error) {
	return pgList(ctx, s.db, companyID)
}

func (s *PostgresStore) GetByFdcID(ctx context.Context, companyID, fdcID string) (*fdc.Commit, error) {
	return pgGetByFdcID(ctx, s.db, companyID, fdcID)
}

// pgTxStore is the transaction-scoped view handed to RunInCompanyTx callbacks.
type pgTxStore struct {
	tx *sql.Tx
}

func (s *pgTxStore) GetByIdempotencyKey(ctx context.Context, companyID, key string) (*fdc.Commit, error) {
	return pgGetByIdempotencyKey(ctx, s.tx, companyID, key)
}

func (s *pgTxStore) Head(ctx context.Context, companyID string) (*fdc.Commit, error) {
	return pgHead(ctx, s.tx, companyID)
}

func (s *pgTxStore) Insert(ctx context.Context, c *fdc.Commit) error {
	return pgInsert(ctx, s.tx, c)
}

func (s *pgTxStore) ListByCompany(ctx context.Context, companyID string) ([]*fdc.Commit, error) {
	return pgList(ctx, s.tx, companyID)
}

func (s *pgTxStore) GetByFdcID(ctx context.Context, companyID, fdcID string) (*fdc.Commit, error) {
	return pgGetByFdcID(ctx, s.tx, companyID, fdcID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const pgCommitColumns = `company_id, fdc_id, generated_at, decision_ref, financial_intent, decision_layer,
	budget_owner, budget_limit, approval_mode, amount, currency, status, scope,
	ord_status, policy_version, system_signature, human_signature, idempotency_key,
	previous_fdc_id, previous_chain_hash, chain_hash`

func pgGetByIdempotencyKey(ctx context.Context, q querier, companyID, key string) (*fdc.Commit, error) {
	query := `SELECT ` + pgCommitColumns + ` FROM fdc_commits WHERE company_id = $1 AND idempotency_key = $2`
	return pgQueryOne(ctx, q, query, companyID, key)
}

func pgHead(ctx context.Context, q querier, companyID string) (*fdc.Commit, error) {
	query := `SELECT ` + pgCommitColumns + ` FROM fdc_commits
		WHERE company_id = $1 ORDER BY generated_at DESC LIMIT 1`
	return pgQueryOne(ctx, q, query, companyID)
}

func pgInsert(ctx context.Context, q querier, c *fdc.Commit) error {
	scopeJSON, err := json.Marshal(c.Scope)
	if err != nil {
		return fmt.Errorf("marshal scope: %w", err)
	}
	query := `INSERT INTO fdc_commits (` + pgCommitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err = q.ExecContext(ctx, query,
		c.CompanyID, c.FdcID, c.GeneratedAt.UTC(),
		c.DecisionRef, c.FinancialIntent, c.DecisionLayer,
		c.BudgetAuthority.Owner, c.BudgetAuthority.Limit, string(c.BudgetAuthority.ApprovalMode),
		c.Amount, c.Currency, string(c.Status), scopeJSON,
		c.Trace.ORDStatus, c.Trace.PolicyVersion,
		c.Signatures.System, c.Signatures.Human, c.IdempotencyKey,
		c.PreviousFdcID, c.PreviousChainHash, c.ChainHash,
	)
	return err
}

func pgList(ctx context.Context, q querier, companyID string) ([]*fdc.Commit, error) {
	query := `SELECT ` + pgCommitColumns + ` FROM fdc_commits
		WHERE company_id = $1 ORDER BY generated_at ASC`
	rows, err := q.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var commits []*fdc.Commit
	for rows.Next() {
		c, err := pgScanCommit(rows)
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

func pgGetByFdcID(ctx context.Context, q querier, companyID, fdcID string) (*fdc.Commit, error) {
	query := `SELECT ` + pgCommitColumns + ` FROM fdc_commits WHERE company_id = $1 AND fdc_id = $2`
	return pgQueryOne(ctx, q, query, companyID, fdcID)
}

func pgQueryOne(ctx context.Context, q querier, query string, args ...any) (*fdc.Commit, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return pgScanCommit(rows)
}

func pgScanCommit(rows *sql.Rows) (*fdc.Commit, error) {
	var c fdc.Commit
	var generatedAt time.Time
	var approvalMode, status string
	var scopeJSON []byte
	if err := rows.Scan(
		&c.CompanyID, &c.FdcID, &generatedAt, &c.DecisionRef, &c.FinancialIntent, &c.DecisionLayer,
		&c.BudgetAuthority.Owner, &c.BudgetAuthority.Limit, &approvalMode,
		&c.Amount, &c.Currency, &status, &scopeJSON,
		&c.Trace.ORDStatus, &c.Trace.PolicyVersion,
		&c.Signatures.System, &c.Signatures.Human, &c.IdempotencyKey,
		&c.PreviousFdcID, &c.PreviousChainHash, &c.ChainHash,
	); err != nil {
		return nil, err
	}

	c.GeneratedAt = generatedAt.UTC()
	c.BudgetAuthority.ApprovalMode = fdc.ApprovalMode(approvalMode)
	c.Status = fdc.Status(status)
	if len(scopeJSON) > 0 && string(scopeJSON) != "null" {
		if err := json.Unmarshal(scopeJSON, &c.Scope); err != nil {
			return nil, fmt.Errorf("parse scope: %w", err)
		}
	}
	return &c, nil
}
