// Package fdv is the financial decision validation gate. Validate is pure:
// it inspects a proposed commit, collects every applicable rejection reason,
// and names the single most actionable human remediation. The ledger refuses
// to write anything this gate rejects.
package fdv

import (
	"regexp"

	"github.com/ordgate/core/pkg/fdc"
)

// Reason is a machine-readable rejection code. Any number of reasons may
// apply to one commit; all are collected, never just the first.
type Reason string

const (
	ReasonMissingCompanyID      Reason = "MISSING_COMPANY_ID"
	ReasonMissingIdempotencyKey Reason = "MISSING_IDEMPOTENCY_KEY"
	ReasonMissingPolicyVersion  Reason = "MISSING_POLICY_VERSION"
	ReasonMissingHumanSignature Reason = "MISSING_HUMAN_SIGNATURE"
	ReasonInvalidAmount         Reason = "INVALID_AMOUNT"
	ReasonInvalidCurrency       Reason = "INVALID_CURRENCY"
	ReasonBudgetLimitExceeded   Reason = "BUDGET_LIMIT_EXCEEDED"
	ReasonORDNotOperational     Reason = "ORD_NOT_OPERATIONAL"
)

// HumanAction is the remediation the operator should perform first.
type HumanAction string

const (
	ActionNone          HumanAction = ""
	ActionSignCommit    HumanAction = "SIGN_COMMIT"
	ActionLinkPolicy    HumanAction = "LINK_POLICY_VERSION"
	ActionCorrectCommit HumanAction = "CORRECT_COMMIT_FIELDS"
)

// Trace status required before elevated layers may commit.
const ordOperational = "OPERATIONAL"

// Decision layers that demand an OPERATIONAL readiness trace.
var elevatedLayers = map[string]bool{
	"SENIOR": true,
	"SSC":    true,
	"AGI":    true,
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Result is the outcome of a validation pass.
type Result struct {
	Allow bool `json:"allow"`
	// Reasons lists every rejection that applies, in a stable order.
	Reasons []Reason `json:"reasons,omitempty"`
	// RequiredHumanAction is the single most actionable remediation.
	// A missing signature outranks a missing policy link.
	RequiredHumanAction HumanAction `json:"required_human_action,omitempty"`
	// UnknownISOCurrency is advisory: the code is well-formed but absent
	// from the ISO 4217 registry. It never blocks a commit on its own.
	UnknownISOCurrency bool `json:"unknown_iso_currency,omitempty"`
}

// Validate inspects a proposed commit. Pure, no I/O.
func Validate(c *fdc.Commit) Result {
	var reasons []Reason

	if c.CompanyID == "" {
		reasons = append(reasons, ReasonMissingCompanyID)
	}
	if c.IdempotencyKey == "" {
		reasons = append(reasons, ReasonMissingIdempotencyKey)
	}
	if c.Trace.PolicyVersion == "" {
		reasons = append(reasons, ReasonMissingPolicyVersion)
	}
	if c.Signatures.Human == "" {
		reasons = append(reasons, ReasonMissingHumanSignature)
	}
	if c.Amount < 0 {
		reasons = append(reasons, ReasonInvalidAmount)
	}

	unknownISO := false
	if !currencyPattern.MatchString(c.Currency) {
		reasons = append(reasons, ReasonInvalidCurrency)
	} else if !fdc.KnownISOCurrency(c.Currency) {
		unknownISO = true
	}

	if c.BudgetAuthority.Limit > 0 && c.Amount > c.BudgetAuthority.Limit {
		reasons = append(reasons, ReasonBudgetLimitExceeded)
	}
	if elevatedLayers[c.DecisionLayer] && c.Trace.ORDStatus != ordOperational {
		reasons = append(reasons, ReasonORDNotOperational)
	}

	return Result{
		Allow:               len(reasons) == 0,
		Reasons:             reasons,
		RequiredHumanAction: requiredAction(reasons),
		UnknownISOCurrency:  unknownISO,
	}
}

func requiredAction(reasons []Reason) HumanAction {
	if len(reasons) == 0 {
		return ActionNone
	}
	has := func(r Reason) bool {
		for _, v := range reasons {
			if v == r {
				return true
			}
		}
		return false
	}
	switch {
	case has(ReasonMissingHumanSignature):
		return ActionSignCommit
	case has(ReasonMissingPolicyVersion):
		return ActionLinkPolicy
	default:
		return ActionCorrectCommit
	}
}
