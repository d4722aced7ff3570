package scoring

import (
	"errors"
	"testing"
)

func TestPressureResponsibilityOnlyLow(t *testing.T) {
	// All signal scores zero (reversibility 1 => irreversibility 0).
	out := EvaluatePressure(PressureInput{
		Reversibility:  1,
		Responsibility: ResponsibilityLow,
	})
	if out.Score != 0.02 {
		t.Fatalf("expected responsibility-only contribution 0.02, got %v", out.Score)
	}
	if out.Level != LevelNone {
		t.Fatalf("expected NONE, got %s", out.Level)
	}
	if out.ShouldEnter {
		t.Fatal("NONE must not enter the pipeline")
	}
}

func TestPressureResponsibilityOnlyHigh(t *testing.T) {
	out := EvaluatePressure(PressureInput{
		Reversibility:  1,
		Responsibility: ResponsibilityHigh,
	})
	if out.Score != 0.10 {
		t.Fatalf("expected 0.10, got %v", out.Score)
	}
	if out.Level != LevelNone {
		t.Fatalf("expected NONE, got %s", out.Level)
	}
}

func TestPressureLevels(t *testing.T) {
	cases := []struct {
		name  string
		in    PressureInput
		level Level
		enter bool
	}{
		{
			name: "max everything is HIGH",
			in: PressureInput{
				Novelty: 1, Impact: 1, Urgency: 1,
				Reversibility:  0,
				Responsibility: ResponsibilityHigh,
			},
			level: LevelHigh,
			enter: true,
		},
		{
			name: "moderate impact and urgency is MEDIUM",
			in: PressureInput{
				Novelty: 0.4, Impact: 0.6, Urgency: 0.5,
				Reversibility:  0.5,
				Responsibility: ResponsibilityMedium,
			},
			level: LevelMedium,
			enter: true,
		},
		{
			name: "weak signals are LOW",
			in: PressureInput{
				Novelty: 0.3, Impact: 0.3, Urgency: 0.2,
				Reversibility:  0.8,
				Responsibility: ResponsibilityLow,
			},
			level: LevelLow,
			enter: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := EvaluatePressure(tc.in)
			if out.Level != tc.level {
				t.Fatalf("score %v: expected %s, got %s", out.Score, tc.level, out.Level)
			}
			if out.ShouldEnter != tc.enter {
				t.Fatalf("expected ShouldEnter=%v", tc.enter)
			}
		})
	}
}

func TestPressureRounding(t *testing.T) {
	out := EvaluatePressure(PressureInput{
		Novelty: 0.333, Impact: 0.333, Urgency: 0.333,
		Reversibility:  0.333,
		Responsibility: ResponsibilityMedium,
	})
	// 0.333*0.2 + 0.333*0.3 + 0.333*0.25 + 0.667*0.15 + 0.6*0.1 = 0.40978 -> 0.41
	if out.Score != 0.41 {
		t.Fatalf("expected 0.41 after 3-decimal rounding, got %v", out.Score)
	}
}

func TestConfidenceZeroExecutions(t *testing.T) {
	// A spotless record with zero executions is still NONE and not ready.
	out, err := EvaluateConfidence(ConfidenceInput{
		ExecutionCount:           0,
		SuccessCount:             0,
		EscalationComplianceRate: 1,
		ReversibilityHandledRate: 1,
		ScopeStabilityScore:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Score != 0 || out.Level != LevelNone || out.OperationallyReady {
		t.Fatalf("zero executions must force NONE/not-ready, got %+v", out)
	}
}

func TestConfidenceCorrectionOverflow(t *testing.T) {
	_, err := EvaluateConfidence(ConfidenceInput{
		ExecutionCount:  2,
		SuccessCount:    2,
		CorrectionCount: 5,
	})
	if !errors.Is(err, ErrCorrectionOverflow) {
		t.Fatalf("expected ErrCorrectionOverflow, got %v", err)
	}
}

func TestConfidencePerfectRecord(t *testing.T) {
	out, err := EvaluateConfidence(ConfidenceInput{
		ExecutionCount:           10,
		SuccessCount:             10,
		CorrectionCount:          0,
		EscalationComplianceRate: 1,
		ReversibilityHandledRate: 1,
		ScopeStabilityScore:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Score != 1.0 {
		t.Fatalf("expected 1.0, got %v", out.Score)
	}
	if out.Level != LevelHigh || !out.OperationallyReady {
		t.Fatalf("expected HIGH/ready, got %+v", out)
	}
}

func TestConfidenceCorrectionsDragScore(t *testing.T) {
	out, err := EvaluateConfidence(ConfidenceInput{
		ExecutionCount:           10,
		SuccessCount:             6,
		CorrectionCount:          4,
		EscalationComplianceRate: 0.5,
		ReversibilityHandledRate: 0.5,
		ScopeStabilityScore:      0.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	// 0.6*0.35 + 0.6*0.25 + 0.5*0.15 + 0.5*0.15 + 0.5*0.10 = 0.56
	if out.Score != 0.56 {
		t.Fatalf("expected 0.56, got %v", out.Score)
	}
	if out.Level != LevelMedium || !out.OperationallyReady {
		t.Fatalf("expected MEDIUM/ready, got %+v", out)
	}
}
