package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Bundle versions this engine understands. Policy majors are breaking.
const supportedVersions = ">=1.0.0 <2.0.0"

const bundleSchemaURL = "https://ordgate.schemas.local/policy/bundle.schema.json"

// bundleSchema constrains the structural shape of a bundle document before any
// semantic validation runs.
const bundleSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["meta", "legal_gate", "rules"],
  "properties": {
    "meta": {
      "type": "object",
      "required": ["policy_id", "version"],
      "properties": {
        "policy_id": {"type": "string", "minLength": 1},
        "version": {"type": "string", "minLength": 1}
      }
    },
    "legal_gate": {
      "type": "object",
      "required": ["required_entity"],
      "properties": {
        "required_entity": {"type": "string", "minLength": 1},
        "escalate_to": {"type": "array", "items": {"type": "string"}}
      }
    },
    "budget_guardrail": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "monthly_cap": {"type": "integer", "minimum": 0},
        "escalate_to": {"type": "array", "items": {"type": "string"}}
      }
    },
    "rules": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["rule_id", "then"],
        "properties": {
          "rule_id": {"type": "string", "minLength": 1},
          "expression": {"type": "string"},
          "then": {
            "type": "object",
            "required": ["enforcement"],
            "properties": {
              "enforcement": {"enum": ["ALLOWED", "BLOCKED", "ESCALATED"]}
            }
          }
        }
      }
    }
  }
}`

// LoadBundleFile reads a bundle document from a .json, .yaml or .yml file.
// YAML documents are converted to JSON before schema validation so both
// formats face identical structural checks.
func LoadBundleFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read bundle %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("policy: parse yaml bundle %s: %w", path, err)
		}
		data, err = json.Marshal(normalizeYAML(doc))
		if err != nil {
			return nil, fmt.Errorf("policy: convert yaml bundle %s: %w", path, err)
		}
	case ".json":
	default:
		return nil, fmt.Errorf("policy: unsupported bundle format %q", filepath.Ext(path))
	}

	return ParseBundle(data)
}

// ParseBundle validates raw JSON against the bundle schema and decodes it.
func ParseBundle(data []byte) (*Bundle, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("policy: decode bundle: %w", err)
	}
	return &b, nil
}

func validateSchema(data []byte) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(bundleSchemaURL, strings.NewReader(bundleSchema)); err != nil {
		return fmt.Errorf("policy: schema load failed: %w", err)
	}
	compiled, err := c.Compile(bundleSchemaURL)
	if err != nil {
		return fmt.Errorf("policy: schema compile failed: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("policy: bundle is not valid JSON: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("policy: bundle schema violation: %w", err)
	}
	return nil
}

// validateSemantics runs the checks the schema cannot express.
func validateSemantics(b *Bundle) error {
	if b.Meta.PolicyID == "" {
		return fmt.Errorf("policy: meta.policy_id is required")
	}
	v, err := semver.NewVersion(b.Meta.Version)
	if err != nil {
		return fmt.Errorf("policy: meta.version %q is not semver: %w", b.Meta.Version, err)
	}
	constraint, err := semver.NewConstraint(supportedVersions)
	if err != nil {
		return fmt.Errorf("policy: bad supported-version constraint: %w", err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("policy: bundle version %s outside supported range %s", v, supportedVersions)
	}
	if len(b.Rules) == 0 {
		return fmt.Errorf("policy: rule list must not be empty")
	}
	seen := make(map[string]struct{}, len(b.Rules))
	for _, r := range b.Rules {
		if r.RuleID == "" {
			return fmt.Errorf("policy: every rule needs a rule_id")
		}
		if _, dup := seen[r.RuleID]; dup {
			return fmt.Errorf("policy: duplicate rule_id %q", r.RuleID)
		}
		seen[r.RuleID] = struct{}{}
		switch r.Then.Enforcement {
		case EnforcementAllowed, EnforcementBlocked, EnforcementEscalated:
		default:
			return fmt.Errorf("policy: rule %s has unknown enforcement %q", r.RuleID, r.Then.Enforcement)
		}
	}
	return nil
}

// clone deep-copies a bundle so the engine owns its rule set exclusively.
// Callers keep no mutable alias into the loaded policy.
func clone(b *Bundle) *Bundle {
	out := &Bundle{
		Meta: b.Meta,
		LegalGate: LegalGate{
			RequiredEntity: b.LegalGate.RequiredEntity,
			EscalateTo:     append([]string(nil), b.LegalGate.EscalateTo...),
		},
		BudgetGuardrail: BudgetGuardrail{
			Enabled:    b.BudgetGuardrail.Enabled,
			MonthlyCap: b.BudgetGuardrail.MonthlyCap,
			EscalateTo: append([]string(nil), b.BudgetGuardrail.EscalateTo...),
		},
		Rules: make([]Rule, len(b.Rules)),
	}
	for i, r := range b.Rules {
		out.Rules[i] = Rule{
			RuleID:     r.RuleID,
			Expression: r.Expression,
			When: Match{
				LegalEntity:    append([]string(nil), r.When.LegalEntity...),
				Layer:          append([]string(nil), r.When.Layer...),
				AuthorityMode:  append([]string(nil), r.When.AuthorityMode...),
				AuthorityScope: append([]string(nil), r.When.AuthorityScope...),
				ExecutionState: append([]string(nil), r.When.ExecutionState...),
				EventType:      append([]string(nil), r.When.EventType...),
			},
			Then: Outcome{
				Enforcement: r.Then.Enforcement,
				EmitEvent:   r.Then.EmitEvent,
				EscalateTo:  append([]string(nil), r.Then.EscalateTo...),
				ReasonKey:   r.Then.ReasonKey,
			},
		}
	}
	return out
}

// normalizeYAML converts yaml.v3's map[string]any/map[any]any trees into
// json.Marshal-compatible values.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	default:
		return v
	}
}
