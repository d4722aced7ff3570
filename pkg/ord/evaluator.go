// Package ord implements the operational readiness evaluator: the composition
// of pressure scoring, the cost gate, the legal readiness monitor and the
// policy rule engine into a single visibility decision. Pressure runs first
// and acts as a hard filter; the other checks never execute for situations
// that fail it.
package ord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ordgate/core/pkg/events"
	"github.com/ordgate/core/pkg/gate"
	"github.com/ordgate/core/pkg/observability"
	"github.com/ordgate/core/pkg/policy"
	"github.com/ordgate/core/pkg/scoring"
)

// Status is the evaluator's visibility verdict.
type Status string

const (
	// StatusHidden means pressure was insufficient; no further checks ran.
	StatusHidden Status = "HIDDEN"
	// StatusVisible means the situation cleared the pressure filter and the
	// composed results are populated.
	StatusVisible Status = "VISIBLE"
)

// Input bundles the signals for one evaluation. ContextKey identifies the
// situation for event correlation; it is never interpreted. Confidence and
// Policy are optional sub-evaluations, skipped when nil.
type Input struct {
	ContextKey string                   `json:"context_key"`
	Pressure   scoring.PressureInput    `json:"pressure"`
	Cost       gate.CostGateInput       `json:"cost"`
	Legal      gate.LegalInput          `json:"legal"`
	Confidence *scoring.ConfidenceInput `json:"confidence,omitempty"`
	Policy     *policy.RuleContext      `json:"policy,omitempty"`
}

// Result is the composed decision. Everything below Pressure is nil when the
// status is HIDDEN, making "we never looked" distinguishable from "we looked
// and said no".
type Result struct {
	Status     Status                        `json:"status"`
	Pressure   scoring.PressureAssessment    `json:"pressure"`
	Cost       *gate.CostGateDecision        `json:"cost,omitempty"`
	Legal      *gate.LegalReadiness          `json:"legal,omitempty"`
	Confidence *scoring.ConfidenceAssessment `json:"confidence,omitempty"`
	Policy     *policy.Decision              `json:"policy,omitempty"`
}

// Evaluator runs the composed pipeline. It holds no per-request state and is
// safe for concurrent use.
type Evaluator struct {
	events  *events.Log
	policy  *policy.Engine
	logger  *slog.Logger
	metrics *observability.Provider
}

// NewEvaluator creates an evaluator emitting into the given event log.
func NewEvaluator(log *events.Log, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{events: log, logger: logger}
}

// WithPolicy attaches a loaded policy engine. Inputs carrying a rule context
// are then checked against it as part of the composed decision.
func (e *Evaluator) WithPolicy(engine *policy.Engine) *Evaluator {
	e.policy = engine
	return e
}

// WithMetrics attaches an observability provider. Without one the evaluator
// records nothing.
func (e *Evaluator) WithMetrics(p *observability.Provider) *Evaluator {
	e.metrics = p
	return e
}

// Evaluate runs pressure scoring and, if the situation earns attention, the
// cost gate, the legal readiness monitor and the optional confidence and
// policy checks. A legal result asking for founder notification emits a
// governance event; the evaluator itself never notifies anyone directly.
// Policy blocks and escalations are likewise emitted as events and returned
// as first-class outcomes, not errors.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (Result, error) {
	if e.metrics != nil {
		var end func()
		ctx, end = e.startSpan(ctx)
		defer end()
	}

	pressure := scoring.EvaluatePressure(in.Pressure)
	if !pressure.ShouldEnter {
		e.logger.Debug("situation hidden",
			slog.String("context_key", in.ContextKey),
			slog.Float64("pressure_score", pressure.Score),
		)
		e.recordDecision(ctx, StatusHidden)
		return Result{Status: StatusHidden, Pressure: pressure}, nil
	}

	cost := gate.EvaluateCostGate(in.Cost)
	legal := gate.EvaluateLegalReadiness(in.Legal)

	if legal.NotifyFounder {
		e.events.Emit(events.TypeFounderNotice, in.ContextKey, map[string]any{
			"legal_status": string(legal.Status),
			"reason":       legal.Reason,
		})
	}
	if legal.Status != gate.LegalNoAction {
		e.events.Emit(events.TypeLegalReadiness, in.ContextKey, map[string]any{
			"legal_status": string(legal.Status),
			"reason":       legal.Reason,
		})
	}

	result := Result{
		Status:   StatusVisible,
		Pressure: pressure,
		Cost:     &cost,
		Legal:    &legal,
	}

	if in.Confidence != nil {
		conf, err := scoring.EvaluateConfidence(*in.Confidence)
		if err != nil {
			return Result{}, fmt.Errorf("ord: confidence: %w", err)
		}
		result.Confidence = &conf
	}

	if e.policy != nil && in.Policy != nil {
		decision, err := e.policy.Evaluate(*in.Policy)
		if err != nil {
			return Result{}, fmt.Errorf("ord: policy: %w", err)
		}
		result.Policy = &decision

		switch decision.Enforcement {
		case policy.EnforcementBlocked:
			e.events.Emit(events.TypePolicyBlocked, in.ContextKey, map[string]any{
				"rule_id":    decision.RuleID,
				"reason_key": decision.ReasonKey,
			})
			e.recordBlocked(ctx, decision.RuleID)
		case policy.EnforcementEscalated:
			e.events.Emit(events.TypePolicyEscalated, in.ContextKey, map[string]any{
				"rule_id":     decision.RuleID,
				"reason_key":  decision.ReasonKey,
				"escalate_to": decision.EscalateTo,
			})
			e.recordBlocked(ctx, decision.RuleID)
		}
	}

	e.logger.Info("situation visible",
		slog.String("context_key", in.ContextKey),
		slog.String("pressure_level", string(pressure.Level)),
		slog.Bool("allow_paid_spend", cost.AllowPaidSpend),
		slog.String("legal_status", string(legal.Status)),
	)
	e.recordDecision(ctx, StatusVisible)
	return result, nil
}

func (e *Evaluator) recordDecision(ctx context.Context, s Status) {
	if e.metrics != nil {
		e.metrics.RecordDecision(ctx, string(s))
	}
}

func (e *Evaluator) recordBlocked(ctx context.Context, ruleID string) {
	if e.metrics != nil {
		e.metrics.RecordBlocked(ctx, ruleID)
	}
}

func (e *Evaluator) startSpan(ctx context.Context) (context.Context, func()) {
	ctx, span := e.metrics.StartSpan(ctx, "ord.evaluate")
	return ctx, func() { span.End() }
}
