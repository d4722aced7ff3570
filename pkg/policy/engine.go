package policy

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"github.com/google/cel-go/common/types"
)

// Engine evaluates governance decisions against a frozen rule bundle.
// Load may be called exactly once; after a successful Load the bundle is
// immutable and Evaluate is safe for unsynchronized concurrent use.
type Engine struct {
	mu       sync.Mutex
	loaded   bool
	bundle   *Bundle
	programs map[string]cel.Program
}

// NewEngine creates an empty engine. Evaluate fails until Load succeeds.
func NewEngine() *Engine {
	return &Engine{}
}

// Load validates, freezes and activates a bundle. A second call fails with
// ErrPolicyAlreadyLoaded regardless of whether the first bundle differed; a
// new policy generation requires a new engine.
func (e *Engine) Load(b *Bundle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return ErrPolicyAlreadyLoaded
	}
	if b == nil {
		return fmt.Errorf("policy: nil bundle")
	}
	if err := validateSemantics(b); err != nil {
		return err
	}

	frozen := clone(b)
	programs, err := compileExpressions(frozen)
	if err != nil {
		return err
	}

	e.bundle = frozen
	e.programs = programs
	e.loaded = true
	return nil
}

// Loaded reports whether a bundle is active.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Version returns the active bundle's policy id and version.
func (e *Engine) Version() (policyID, version string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return "", "", ErrPolicyNotLoaded
	}
	return e.bundle.Meta.PolicyID, e.bundle.Meta.Version, nil
}

// Evaluate runs the short-circuiting decision pass:
//  1. hard legal gate
//  2. budget guardrail
//  3. ordered rule scan, first match wins
//  4. default ALLOWED
func (e *Engine) Evaluate(rc RuleContext) (Decision, error) {
	// loaded flips once and never back; the bundle behind it is frozen, so a
	// plain check under the mutex then lock-free reads is sufficient.
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return Decision{}, ErrPolicyNotLoaded
	}
	b := e.bundle
	programs := e.programs
	e.mu.Unlock()

	base := Decision{PolicyID: b.Meta.PolicyID, PolicyVersion: b.Meta.Version}

	// 1. Hard legal gate. Precedes and overrides ordinary rule matching.
	if rc.LegalEntity != b.LegalGate.RequiredEntity && rc.ExecutionState != ExecutionDisabled {
		d := base
		d.Enforcement = EnforcementBlocked
		d.RuleID = RuleIDLegalGate
		d.ReasonKey = "legal.entity_mismatch"
		d.EscalateTo = escalationTargets(b.LegalGate.EscalateTo, []string{"FOUNDER", "LEGAL"})
		return d, nil
	}

	// 2. Budget guardrail.
	if b.BudgetGuardrail.Enabled && rc.MonthlyBudgetUsed > b.BudgetGuardrail.MonthlyCap {
		d := base
		d.Enforcement = EnforcementEscalated
		d.RuleID = RuleIDBudgetGuardrail
		d.ReasonKey = "budget.monthly_cap_exceeded"
		d.EscalateTo = escalationTargets(b.BudgetGuardrail.EscalateTo, []string{"FOUNDER"})
		return d, nil
	}

	// 3. Ordered rule scan.
	for _, r := range b.Rules {
		matched, err := e.ruleMatches(r, programs, rc)
		if err != nil {
			return Decision{}, err
		}
		if matched {
			d := base
			d.Enforcement = r.Then.Enforcement
			d.RuleID = r.RuleID
			d.ReasonKey = r.Then.ReasonKey
			d.EscalateTo = append([]string(nil), r.Then.EscalateTo...)
			d.EmitEvent = r.Then.EmitEvent
			return d, nil
		}
	}

	// 4. Default.
	d := base
	d.Enforcement = EnforcementAllowed
	return d, nil
}

func (e *Engine) ruleMatches(r Rule, programs map[string]cel.Program, rc RuleContext) (bool, error) {
	if !matchField(r.When.LegalEntity, rc.LegalEntity) ||
		!matchField(r.When.Layer, rc.Layer) ||
		!matchField(r.When.AuthorityMode, rc.AuthorityMode) ||
		!matchField(r.When.AuthorityScope, rc.AuthorityScope) ||
		!matchField(r.When.ExecutionState, rc.ExecutionState) ||
		!matchField(r.When.EventType, rc.EventType) {
		return false, nil
	}

	prg, ok := programs[r.RuleID]
	if !ok {
		return true, nil
	}
	out, _, err := prg.Eval(map[string]any{
		"legal_entity":    rc.LegalEntity,
		"layer":           rc.Layer,
		"authority_mode":  rc.AuthorityMode,
		"authority_scope": rc.AuthorityScope,
		"execution_state": rc.ExecutionState,
		"event_type":      rc.EventType,
		"attributes":      attributesOrEmpty(rc.Attributes),
	})
	if err != nil {
		return false, fmt.Errorf("policy: rule %s expression failed: %w", r.RuleID, err)
	}
	verdict, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy: rule %s expression is not boolean", r.RuleID)
	}
	return verdict, nil
}

// matchField is a set-membership test; an empty set is a wildcard.
func matchField(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, value)
}

func escalationTargets(configured, fallback []string) []string {
	if len(configured) > 0 {
		return append([]string(nil), configured...)
	}
	return append([]string(nil), fallback...)
}

func attributesOrEmpty(attrs map[string]any) map[string]any {
	if attrs == nil {
		return map[string]any{}
	}
	return attrs
}

// compileExpressions builds CEL programs for every rule carrying an
// expression. Compilation failures surface at load time, never at evaluate.
func compileExpressions(b *Bundle) (map[string]cel.Program, error) {
	programs := make(map[string]cel.Program)

	var env *cel.Env
	for _, r := range b.Rules {
		if r.Expression == "" {
			continue
		}
		if env == nil {
			var err error
			env, err = cel.NewEnv(
				cel.VariableDecls(
					decls.NewVariable("legal_entity", types.StringType),
					decls.NewVariable("layer", types.StringType),
					decls.NewVariable("authority_mode", types.StringType),
					decls.NewVariable("authority_scope", types.StringType),
					decls.NewVariable("execution_state", types.StringType),
					decls.NewVariable("event_type", types.StringType),
					decls.NewVariable("attributes", types.NewMapType(types.StringType, types.DynType)),
				),
			)
			if err != nil {
				return nil, fmt.Errorf("policy: cel env: %w", err)
			}
		}

		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("policy: rule %s expression compile: %w", r.RuleID, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("policy: rule %s program: %w", r.RuleID, err)
		}
		programs[r.RuleID] = prg
	}
	return programs, nil
}
