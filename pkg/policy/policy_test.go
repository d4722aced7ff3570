package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBundle() *Bundle {
	return &Bundle{
		Meta:      Meta{PolicyID: "gov-main", Version: "1.2.0"},
		LegalGate: LegalGate{RequiredEntity: "SRL"},
		BudgetGuardrail: BudgetGuardrail{
			Enabled:    true,
			MonthlyCap: 10_000,
			EscalateTo: []string{"FOUNDER", "FINANCE"},
		},
		Rules: []Rule{
			{
				RuleID: "BLOCK-AGI-EXECUTION",
				When: Match{
					Layer:          []string{"AGI"},
					ExecutionState: []string{"ENABLED"},
				},
				Then: Outcome{Enforcement: EnforcementBlocked, ReasonKey: "agi.execution_forbidden"},
			},
			{
				RuleID: "ESCALATE-DELEGATED-SENIOR",
				When: Match{
					Layer:         []string{"SENIOR"},
					AuthorityMode: []string{"DELEGATED"},
				},
				Then: Outcome{
					Enforcement: EnforcementEscalated,
					EscalateTo:  []string{"FOUNDER"},
					EmitEvent:   "senior.delegation",
				},
			},
			{
				RuleID: "ALLOW-ANALYSIS",
				When:   Match{EventType: []string{"ANALYSIS"}},
				Then:   Outcome{Enforcement: EnforcementAllowed},
			},
		},
	}
}

func loadedEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	require.NoError(t, e.Load(testBundle()))
	return e
}

// Context that passes the legal gate and budget guardrail.
func cleanContext() RuleContext {
	return RuleContext{
		LegalEntity:    "SRL",
		Layer:          "JUNIOR",
		AuthorityMode:  "SUPERVISED",
		ExecutionState: "DISABLED",
		EventType:      "PLANNING",
	}
}

func TestLoadTwiceFails(t *testing.T) {
	e := loadedEngine(t)
	err := e.Load(testBundle())
	assert.ErrorIs(t, err, ErrPolicyAlreadyLoaded)
}

func TestEvaluateBeforeLoadFails(t *testing.T) {
	e := NewEngine()
	_, err := e.Evaluate(cleanContext())
	assert.ErrorIs(t, err, ErrPolicyNotLoaded)

	_, _, err = e.Version()
	assert.ErrorIs(t, err, ErrPolicyNotLoaded)
}

func TestLoadRejectsBadBundles(t *testing.T) {
	cases := map[string]func(*Bundle){
		"missing policy id": func(b *Bundle) { b.Meta.PolicyID = "" },
		"bad version":       func(b *Bundle) { b.Meta.Version = "not-semver" },
		"unsupported major": func(b *Bundle) { b.Meta.Version = "2.0.0" },
		"empty rules":       func(b *Bundle) { b.Rules = nil },
		"duplicate rule id": func(b *Bundle) { b.Rules = append(b.Rules, b.Rules[0]) },
		"bad enforcement":   func(b *Bundle) { b.Rules[0].Then.Enforcement = "MAYBE" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := testBundle()
			mutate(b)
			assert.Error(t, NewEngine().Load(b))
		})
	}
}

func TestLegalGatePrecedence(t *testing.T) {
	e := loadedEngine(t)

	// Entity mismatch with execution enabled is blocked even though the
	// ALLOW-ANALYSIS rule would otherwise match.
	rc := cleanContext()
	rc.LegalEntity = "NONE"
	rc.ExecutionState = "ENABLED"
	rc.EventType = "ANALYSIS"

	d, err := e.Evaluate(rc)
	require.NoError(t, err)
	assert.Equal(t, EnforcementBlocked, d.Enforcement)
	assert.Equal(t, RuleIDLegalGate, d.RuleID)
	assert.Equal(t, []string{"FOUNDER", "LEGAL"}, d.EscalateTo)
}

func TestLegalGateSparesDisabledExecution(t *testing.T) {
	e := loadedEngine(t)

	rc := cleanContext()
	rc.LegalEntity = "NONE" // mismatch, but execution is DISABLED
	d, err := e.Evaluate(rc)
	require.NoError(t, err)
	assert.NotEqual(t, RuleIDLegalGate, d.RuleID)
}

func TestBudgetGuardrail(t *testing.T) {
	e := loadedEngine(t)

	rc := cleanContext()
	rc.MonthlyBudgetUsed = 10_001
	d, err := e.Evaluate(rc)
	require.NoError(t, err)
	assert.Equal(t, EnforcementEscalated, d.Enforcement)
	assert.Equal(t, RuleIDBudgetGuardrail, d.RuleID)
	assert.Equal(t, []string{"FOUNDER", "FINANCE"}, d.EscalateTo)

	// At exactly the cap the guardrail stays quiet.
	rc.MonthlyBudgetUsed = 10_000
	d, err = e.Evaluate(rc)
	require.NoError(t, err)
	assert.NotEqual(t, RuleIDBudgetGuardrail, d.RuleID)
}

func TestFirstMatchWins(t *testing.T) {
	e := loadedEngine(t)

	rc := cleanContext()
	rc.Layer = "AGI"
	rc.ExecutionState = "ENABLED"
	rc.EventType = "ANALYSIS" // also matches ALLOW-ANALYSIS, but later in order

	d, err := e.Evaluate(rc)
	require.NoError(t, err)
	assert.Equal(t, EnforcementBlocked, d.Enforcement)
	assert.Equal(t, "BLOCK-AGI-EXECUTION", d.RuleID)
	assert.Equal(t, "agi.execution_forbidden", d.ReasonKey)
}

func TestAbsentFieldIsWildcard(t *testing.T) {
	e := loadedEngine(t)

	rc := cleanContext()
	rc.EventType = "ANALYSIS"
	rc.AuthorityScope = "anything-at-all"

	d, err := e.Evaluate(rc)
	require.NoError(t, err)
	assert.Equal(t, "ALLOW-ANALYSIS", d.RuleID)
	assert.Equal(t, EnforcementAllowed, d.Enforcement)
}

func TestDefaultAllowed(t *testing.T) {
	e := loadedEngine(t)

	d, err := e.Evaluate(cleanContext())
	require.NoError(t, err)
	assert.Equal(t, EnforcementAllowed, d.Enforcement)
	assert.Empty(t, d.RuleID)
	assert.Equal(t, "gov-main", d.PolicyID)
	assert.Equal(t, "1.2.0", d.PolicyVersion)
}

func TestCELExpressionRule(t *testing.T) {
	b := testBundle()
	b.Rules = append([]Rule{{
		RuleID:     "ESCALATE-LARGE-AMOUNTS",
		Expression: `attributes.amount > 5000.0 && layer != "BASIC"`,
		Then:       Outcome{Enforcement: EnforcementEscalated, EscalateTo: []string{"FOUNDER"}},
	}}, b.Rules...)

	e := NewEngine()
	require.NoError(t, e.Load(b))

	rc := cleanContext()
	rc.Attributes = map[string]any{"amount": 9000.0}
	d, err := e.Evaluate(rc)
	require.NoError(t, err)
	assert.Equal(t, "ESCALATE-LARGE-AMOUNTS", d.RuleID)

	rc.Attributes = map[string]any{"amount": 100.0}
	d, err = e.Evaluate(rc)
	require.NoError(t, err)
	assert.NotEqual(t, "ESCALATE-LARGE-AMOUNTS", d.RuleID)
}

func TestCELCompileErrorSurfacesAtLoad(t *testing.T) {
	b := testBundle()
	b.Rules[0].Expression = "this is not CEL ((("
	err := NewEngine().Load(b)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrPolicyAlreadyLoaded))
}

func TestLoadFreezesBundle(t *testing.T) {
	b := testBundle()
	e := NewEngine()
	require.NoError(t, e.Load(b))

	// Mutating the caller's copy must not reach the engine.
	b.Rules[0].Then.Enforcement = EnforcementAllowed
	b.LegalGate.RequiredEntity = "OTHER"

	rc := cleanContext()
	rc.Layer = "AGI"
	rc.ExecutionState = "ENABLED"
	d, err := e.Evaluate(rc)
	require.NoError(t, err)
	assert.Equal(t, EnforcementBlocked, d.Enforcement)
}

func TestLoadBundleFileJSONAndYAML(t *testing.T) {
	dir := t.TempDir()

	jsonDoc := `{
	  "meta": {"policy_id": "gov-file", "version": "1.0.0"},
	  "legal_gate": {"required_entity": "SRL"},
	  "rules": [
	    {"rule_id": "R1", "when": {"layer": ["AGI"]}, "then": {"enforcement": "BLOCKED"}}
	  ]
	}`
	jsonPath := filepath.Join(dir, "bundle.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(jsonDoc), 0o600))

	yamlDoc := `
meta:
  policy_id: gov-file
  version: 1.0.0
legal_gate:
  required_entity: SRL
rules:
  - rule_id: R1
    when:
      layer: [AGI]
    then:
      enforcement: BLOCKED
`
	yamlPath := filepath.Join(dir, "bundle.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlDoc), 0o600))

	fromJSON, err := LoadBundleFile(jsonPath)
	require.NoError(t, err)
	fromYAML, err := LoadBundleFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromYAML)
}

func TestParseBundleSchemaViolation(t *testing.T) {
	_, err := ParseBundle([]byte(`{"meta": {"policy_id": "x"}, "rules": []}`))
	assert.Error(t, err)
}
