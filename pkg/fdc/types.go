// Package fdc defines the Financial Decision Commit record — the unit the
// ledger persists — and the monetary value type it carries. The validation
// gate and the ledger both consume these types.
package fdc

import "time"

// Status is the lifecycle state of a commit.
// PROPOSED -> APPROVED -> COMMITTED -> EXECUTED, with REVOKED/EXPIRED
// possible at any gated point. Once appended to the ledger a record is never
// mutated; lifecycle progression appends new records.
type Status string

const (
	StatusProposed  Status = "PROPOSED"
	StatusApproved  Status = "APPROVED"
	StatusCommitted Status = "COMMITTED"
	StatusExecuted  Status = "EXECUTED"
	StatusRevoked   Status = "REVOKED"
	StatusExpired   Status = "EXPIRED"
)

// Genesis is the sentinel chain link for a company's first record.
const Genesis = "GENESIS"

// ApprovalMode describes how budget authority is exercised.
type ApprovalMode string

const (
	ApprovalManual    ApprovalMode = "MANUAL"
	ApprovalDelegated ApprovalMode = "DELEGATED"
	ApprovalAutomatic ApprovalMode = "AUTOMATIC"
)

// BudgetAuthority states who owns the budget this commit draws on and the
// hard limit it may not exceed.
type BudgetAuthority struct {
	Owner        string       `json:"owner"`
	Limit        int64        `json:"limit"`
	ApprovalMode ApprovalMode `json:"approval_mode"`
}

// Trace links the commit back to the governance evaluation that produced it.
type Trace struct {
	ORDStatus     string `json:"ord_status"`
	PolicyVersion string `json:"policy_version"`
}

// Signatures holds the dual sign-off. System is the machine attestation,
// Human the operator approval. Both travel with the record.
type Signatures struct {
	System string `json:"system,omitempty"`
	Human  string `json:"human,omitempty"`
}

// Commit is the ledger record. Identity is (CompanyID, FdcID).
type Commit struct {
	CompanyID       string          `json:"company_id"`
	FdcID           string          `json:"fdc_id"`
	GeneratedAt     time.Time       `json:"generated_at"`
	DecisionRef     string          `json:"decision_ref"`
	FinancialIntent string          `json:"financial_intent"`
	DecisionLayer   string          `json:"decision_layer"`
	BudgetAuthority BudgetAuthority `json:"budget_authority"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Status          Status          `json:"status"`
	Scope           []string        `json:"scope,omitempty"`
	Trace           Trace           `json:"trace"`
	Signatures      Signatures      `json:"signatures"`
	IdempotencyKey  string          `json:"idempotency_key"`

	// Chain link, filled in by the ledger on append.
	PreviousFdcID     string `json:"previous_fdc_id"`
	PreviousChainHash string `json:"previous_chain_hash"`
	ChainHash         string `json:"chain_hash"`
}

// ChainPayload is the canonical subset of a commit that the chain hash
// covers. Idempotency key and budget authority are deliberately outside the
// hash: they are lookup/validation inputs, not committed financial facts.
type ChainPayload struct {
	CompanyID         string     `json:"companyId"`
	FdcID             string     `json:"fdcId"`
	GeneratedAt       string     `json:"generatedAt"`
	DecisionRef       string     `json:"decisionRef"`
	FinancialIntent   string     `json:"financialIntent"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	Status            Status     `json:"status"`
	Scope             []string   `json:"scope"`
	Trace             Trace      `json:"trace"`
	Signatures        Signatures `json:"signatures"`
	PreviousFdcID     string     `json:"previousFdcId"`
	PreviousChainHash string     `json:"previousChainHash"`
}

// Payload assembles the canonical chain payload for this commit given the
// previous link.
func (c *Commit) Payload(previousFdcID, previousChainHash string) ChainPayload {
	scope := c.Scope
	if scope == nil {
		scope = []string{}
	}
	return ChainPayload{
		CompanyID:         c.CompanyID,
		FdcID:             c.FdcID,
		GeneratedAt:       c.GeneratedAt.UTC().Format(time.RFC3339Nano),
		DecisionRef:       c.DecisionRef,
		FinancialIntent:   c.FinancialIntent,
		Amount:            c.Amount,
		Currency:          c.Currency,
		Status:            c.Status,
		Scope:             scope,
		Trace:             c.Trace,
		Signatures:        c.Signatures,
		PreviousFdcID:     previousFdcID,
		PreviousChainHash: previousChainHash,
	}
}
