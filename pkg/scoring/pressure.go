// Package scoring provides the pure decision-pressure and operational-confidence
// evaluators that front the governance pipeline. Both are deterministic,
// perform no I/O, and are safe for unsynchronized concurrent use.
package scoring

import "math"

// Level is the categorical band a normalized score falls into.
type Level string

const (
	LevelNone   Level = "NONE"
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Responsibility is the declared accountability tier of the situation.
type Responsibility string

const (
	ResponsibilityLow    Responsibility = "LOW"
	ResponsibilityMedium Responsibility = "MEDIUM"
	ResponsibilityHigh   Responsibility = "HIGH"
)

// Pressure weighting. Irreversibility is derived as 1 - reversibility.
const (
	weightNovelty        = 0.20
	weightImpact         = 0.30
	weightUrgency        = 0.25
	weightIrreversible   = 0.15
	weightResponsibility = 0.10
)

// Pressure level thresholds.
const (
	pressureHigh   = 0.75
	pressureMedium = 0.45
	pressureLow    = 0.20
)

// PressureInput carries the per-situation signals, each normalized to [0,1].
type PressureInput struct {
	Novelty              float64        `json:"novelty"`
	Impact               float64        `json:"impact"`
	Urgency              float64        `json:"urgency"`
	Reversibility        float64        `json:"reversibility"`
	Responsibility       Responsibility `json:"responsibility"`
	HistoricalConfidence float64        `json:"historical_confidence,omitempty"`
}

// PressureAssessment is the result of a pressure evaluation. It has no
// persisted identity; a fresh assessment is computed per request.
type PressureAssessment struct {
	Score       float64 `json:"score"`
	Level       Level   `json:"level"`
	ShouldEnter bool    `json:"should_enter"`
}

// EvaluatePressure scores whether a situation deserves pipeline attention.
// A HIGH responsibility with all other signals at zero still yields 0.100;
// the score only bottoms out at 0 when responsibility is LOW as well.
func EvaluatePressure(in PressureInput) PressureAssessment {
	score := in.Novelty*weightNovelty +
		in.Impact*weightImpact +
		in.Urgency*weightUrgency +
		(1-in.Reversibility)*weightIrreversible +
		responsibilityWeight(in.Responsibility)*weightResponsibility
	score = round3(score)

	level := pressureLevel(score)
	return PressureAssessment{
		Score:       score,
		Level:       level,
		ShouldEnter: level == LevelMedium || level == LevelHigh,
	}
}

func pressureLevel(score float64) Level {
	switch {
	case score >= pressureHigh:
		return LevelHigh
	case score >= pressureMedium:
		return LevelMedium
	case score >= pressureLow:
		return LevelLow
	default:
		return LevelNone
	}
}

func responsibilityWeight(r Responsibility) float64 {
	switch r {
	case ResponsibilityHigh:
		return 1.0
	case ResponsibilityMedium:
		return 0.6
	default:
		return 0.2
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
