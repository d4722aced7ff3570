package scoring

import "errors"

// ErrCorrectionOverflow is returned when correctionCount exceeds executionCount.
// That combination is a data-integrity violation upstream; the penalty formula
// would go negative, so it is rejected instead of clamped.
var ErrCorrectionOverflow = errors.New("scoring: correction_count exceeds execution_count")

// Confidence weighting.
const (
	weightSuccessRate          = 0.35
	weightCorrectionPenalty    = 0.25
	weightEscalationCompliance = 0.15
	weightReversibilityHandled = 0.15
	weightScopeStability       = 0.10
)

// Confidence level thresholds.
const (
	confidenceHigh   = 0.80
	confidenceMedium = 0.55
	confidenceLow    = 0.30
)

// ConfidenceInput carries the agent's operational track record.
type ConfidenceInput struct {
	ExecutionCount           int     `json:"execution_count"`
	SuccessCount             int     `json:"success_count"`
	CorrectionCount          int     `json:"correction_count"`
	EscalationComplianceRate float64 `json:"escalation_compliance_rate"`
	ReversibilityHandledRate float64 `json:"reversibility_handled_rate"`
	ScopeStabilityScore      float64 `json:"scope_stability_score"`
}

// ConfidenceAssessment is the result of an operational-confidence evaluation.
type ConfidenceAssessment struct {
	Score              float64 `json:"score"`
	Level              Level   `json:"level"`
	OperationallyReady bool    `json:"operationally_ready"`
}

// EvaluateConfidence scores whether the agent's track record justifies
// autonomous action. An agent with zero executions is NONE and not ready,
// unconditionally; the guard also keeps the rate math away from division
// by zero.
func EvaluateConfidence(in ConfidenceInput) (ConfidenceAssessment, error) {
	if in.ExecutionCount == 0 {
		return ConfidenceAssessment{Score: 0, Level: LevelNone, OperationallyReady: false}, nil
	}
	if in.CorrectionCount > in.ExecutionCount {
		return ConfidenceAssessment{}, ErrCorrectionOverflow
	}

	successRate := float64(in.SuccessCount) / float64(in.ExecutionCount)
	correctionPenalty := 1.0
	if in.CorrectionCount > 0 {
		correctionPenalty = 1 - float64(in.CorrectionCount)/float64(in.ExecutionCount)
	}

	score := successRate*weightSuccessRate +
		correctionPenalty*weightCorrectionPenalty +
		in.EscalationComplianceRate*weightEscalationCompliance +
		in.ReversibilityHandledRate*weightReversibilityHandled +
		in.ScopeStabilityScore*weightScopeStability
	score = round3(score)

	level := confidenceLevel(score)
	return ConfidenceAssessment{
		Score:              score,
		Level:              level,
		OperationallyReady: level == LevelMedium || level == LevelHigh,
	}, nil
}

func confidenceLevel(score float64) Level {
	switch {
	case score >= confidenceHigh:
		return LevelHigh
	case score >= confidenceMedium:
		return LevelMedium
	case score >= confidenceLow:
		return LevelLow
	default:
		return LevelNone
	}
}
