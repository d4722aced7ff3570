// Package policy implements the declarative governance rule engine. A bundle
// is loaded exactly once per engine lifetime, validated, deep-copied and
// frozen; evaluation is a short-circuiting pass of hard legal gate, budget
// guardrail, then an ordered first-match-wins rule scan.
package policy

import "errors"

var (
	// ErrPolicyAlreadyLoaded is returned when Load is called a second time.
	ErrPolicyAlreadyLoaded = errors.New("policy: bundle already loaded")
	// ErrPolicyNotLoaded is returned when the engine is read before a
	// successful Load. This is a sequencing bug in the caller, not a
	// recoverable business outcome.
	ErrPolicyNotLoaded = errors.New("policy: bundle not loaded")
)

// Enforcement is a rule's verdict.
type Enforcement string

const (
	EnforcementAllowed   Enforcement = "ALLOWED"
	EnforcementBlocked   Enforcement = "BLOCKED"
	EnforcementEscalated Enforcement = "ESCALATED"
)

// Reserved rule ids for the built-in checks that precede the rule scan.
const (
	RuleIDLegalGate       = "LEGAL-GATE"
	RuleIDBudgetGuardrail = "BUDGET-GUARDRAIL"
)

// ExecutionState values with special meaning to the hard legal gate.
const ExecutionDisabled = "DISABLED"

// Meta identifies a bundle.
type Meta struct {
	PolicyID    string `json:"policy_id" yaml:"policy_id"`
	Version     string `json:"version" yaml:"version"`
	GeneratedAt string `json:"generated_at,omitempty" yaml:"generated_at,omitempty"`
}

// LegalGate is the hard legal-entity boundary. A tenant whose legal entity is
// not RequiredEntity is blocked outright unless execution is disabled.
type LegalGate struct {
	RequiredEntity string   `json:"required_entity" yaml:"required_entity"`
	EscalateTo     []string `json:"escalate_to,omitempty" yaml:"escalate_to,omitempty"`
}

// BudgetGuardrail escalates when monthly spend exceeds the cap.
type BudgetGuardrail struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	MonthlyCap int64    `json:"monthly_cap" yaml:"monthly_cap"`
	EscalateTo []string `json:"escalate_to,omitempty" yaml:"escalate_to,omitempty"`
}

// Match is a conjunctive set-membership predicate. A nil field is a wildcard.
type Match struct {
	LegalEntity    []string `json:"legal_entity,omitempty" yaml:"legal_entity,omitempty"`
	Layer          []string `json:"layer,omitempty" yaml:"layer,omitempty"`
	AuthorityMode  []string `json:"authority_mode,omitempty" yaml:"authority_mode,omitempty"`
	AuthorityScope []string `json:"authority_scope,omitempty" yaml:"authority_scope,omitempty"`
	ExecutionState []string `json:"execution_state,omitempty" yaml:"execution_state,omitempty"`
	EventType      []string `json:"event_type,omitempty" yaml:"event_type,omitempty"`
}

// Outcome is the consequence of a matched rule.
type Outcome struct {
	Enforcement Enforcement `json:"enforcement" yaml:"enforcement"`
	EmitEvent   string      `json:"emit_event,omitempty" yaml:"emit_event,omitempty"`
	EscalateTo  []string    `json:"escalate_to,omitempty" yaml:"escalate_to,omitempty"`
	ReasonKey   string      `json:"reason_key,omitempty" yaml:"reason_key,omitempty"`
}

// Rule pairs a match predicate with its outcome. Expression is an optional CEL
// predicate over the same context; when both When and Expression are present,
// both must hold for the rule to match.
type Rule struct {
	RuleID     string  `json:"rule_id" yaml:"rule_id"`
	When       Match   `json:"when,omitempty" yaml:"when,omitempty"`
	Expression string  `json:"expression,omitempty" yaml:"expression,omitempty"`
	Then       Outcome `json:"then" yaml:"then"`
}

// Bundle is a versioned, ordered rule set plus the built-in guards.
type Bundle struct {
	Meta            Meta            `json:"meta" yaml:"meta"`
	LegalGate       LegalGate       `json:"legal_gate" yaml:"legal_gate"`
	BudgetGuardrail BudgetGuardrail `json:"budget_guardrail,omitempty" yaml:"budget_guardrail,omitempty"`
	Rules           []Rule          `json:"rules" yaml:"rules"`
}

// RuleContext is the evaluation input.
type RuleContext struct {
	LegalEntity       string         `json:"legal_entity"`
	Layer             string         `json:"layer"`
	AuthorityMode     string         `json:"authority_mode"`
	AuthorityScope    string         `json:"authority_scope"`
	ExecutionState    string         `json:"execution_state"`
	EventType         string         `json:"event_type"`
	MonthlyBudgetUsed int64          `json:"monthly_budget_used"`
	Attributes        map[string]any `json:"attributes,omitempty"`
}

// Decision is the evaluation result.
type Decision struct {
	Enforcement   Enforcement `json:"enforcement"`
	RuleID        string      `json:"rule_id,omitempty"`
	ReasonKey     string      `json:"reason_key,omitempty"`
	EscalateTo    []string    `json:"escalate_to,omitempty"`
	EmitEvent     string      `json:"emit_event,omitempty"`
	PolicyID      string      `json:"policy_id"`
	PolicyVersion string      `json:"policy_version"`
}
