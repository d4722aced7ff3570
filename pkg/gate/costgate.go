// Package gate implements the cost and legal eligibility checks that run after
// pressure scoring admits a situation. Both evaluators are state-free decision
// tables; refusals carry a reason so every denial is explainable.
package gate

// AuthorityLevel is the autonomous authority tier of the requesting agent.
type AuthorityLevel string

const (
	AuthorityBasic  AuthorityLevel = "BASIC"
	AuthorityJunior AuthorityLevel = "JUNIOR"
	AuthoritySenior AuthorityLevel = "SENIOR"
	AuthoritySSC    AuthorityLevel = "SSC"
	AuthorityAGI    AuthorityLevel = "AGI"
)

// ContextType classifies what the agent is about to do.
type ContextType string

const (
	ContextAnalysis  ContextType = "ANALYSIS"
	ContextPlanning  ContextType = "PLANNING"
	ContextExecution ContextType = "EXECUTION"
)

// Tier is the intelligence tier the gate recommends.
type Tier string

const (
	TierOSS  Tier = "OSS"
	TierPaid Tier = "PAID"
)

// Expected-value weighting for the paid-spend decision.
const (
	weightAmbiguity       = 0.4
	weightHistoricPayoff  = 0.3
	weightActionProximity = 0.2
	weightUrgency         = 0.1
)

// Per-level expected-value thresholds. SENIOR agents clear a lower bar.
const (
	thresholdSenior = 0.35
	thresholdJunior = 0.55
)

// CostGateInput carries the request-specific spend signals.
type CostGateInput struct {
	Authority        AuthorityLevel `json:"authority"`
	Context          ContextType    `json:"context"`
	Ambiguity        float64        `json:"ambiguity"`
	HistoricalPayoff float64        `json:"historical_payoff"`
	ActionProximity  float64        `json:"action_proximity"`
	Urgency          float64        `json:"urgency"`
	EstimatedCost    int64          `json:"estimated_cost"`
	RemainingBudget  int64          `json:"remaining_budget"`
}

// CostGateDecision is derived per call and never persisted.
type CostGateDecision struct {
	AllowPaidSpend  bool   `json:"allow_paid_spend"`
	RecommendedTier Tier   `json:"recommended_tier"`
	Reason          string `json:"reason"`
}

// EvaluateCostGate decides whether paid intelligence may be used for this call.
// EXECUTION contexts deliberately override the expected-value formula: clarity
// is required before irreversible action, so spend is always allowed there
// (budget permitting).
func EvaluateCostGate(in CostGateInput) CostGateDecision {
	if in.Authority == AuthorityBasic {
		return CostGateDecision{
			AllowPaidSpend:  false,
			RecommendedTier: TierOSS,
			Reason:          "basic authority never spends",
		}
	}
	if in.RemainingBudget <= 0 {
		return CostGateDecision{
			AllowPaidSpend:  false,
			RecommendedTier: TierOSS,
			Reason:          "no remaining budget",
		}
	}
	if in.Context == ContextExecution {
		return CostGateDecision{
			AllowPaidSpend:  true,
			RecommendedTier: TierPaid,
			Reason:          "execution context requires clarity before irreversible action",
		}
	}

	expectedValue := in.Ambiguity*weightAmbiguity +
		in.HistoricalPayoff*weightHistoricPayoff +
		in.ActionProximity*weightActionProximity +
		in.Urgency*weightUrgency
	if in.EstimatedCost > in.RemainingBudget {
		expectedValue = 0
	}

	threshold := thresholdJunior
	if in.Authority == AuthoritySenior {
		threshold = thresholdSenior
	}

	if expectedValue >= threshold {
		return CostGateDecision{
			AllowPaidSpend:  true,
			RecommendedTier: TierPaid,
			Reason:          "expected value clears threshold",
		}
	}
	return CostGateDecision{
		AllowPaidSpend:  false,
		RecommendedTier: TierOSS,
		Reason:          "expected value below threshold",
	}
}
