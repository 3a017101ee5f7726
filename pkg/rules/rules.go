// Package rules decides, per owner, whether an artifact should be generated.
//
// Rules are CEL expressions evaluated against a small set of owner attributes:
//
//	owner   int     owner identifier
//	name    string  catalog name, or "Unknown Game <id>"
//	known   bool    whether the owner is in the catalog
//	depots  int     number of depots with a usable key
//
// Rules run in file order and the first match decides. No match keeps the owner.
package rules

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

// ErrInvalidRule is returned for rules that fail to parse or compile.
var ErrInvalidRule = errors.New("invalid rule")

// Action is what a matching rule does to an owner.
type Action string

const (
	ActionSkip Action = "skip"
	ActionKeep Action = "keep"
)

// Rule is a user-defined owner filter.
type Rule struct {
	ID        string `yaml:"id"`
	Condition string `yaml:"condition"` // CEL expression: "!known && depots < 2"
	Action    Action `yaml:"action"`
}

// Owner is the evaluation input.
type Owner struct {
	ID     int
	Name   string
	Known  bool
	Depots int
}

// Decision is the outcome of evaluating the rule set for one owner.
type Decision struct {
	Skip   bool
	RuleID string
}

type compiled struct {
	rule    Rule
	program cel.Program
}

// Filter is a compiled rule set. A nil Filter keeps every owner.
type Filter struct {
	rules []compiled
}

// Parse reads a YAML rules document of the form {rules: [{id, condition, action}]}.
func Parse(data []byte) ([]Rule, error) {
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse rules yaml: %w", ErrInvalidRule, err)
	}
	return doc.Rules, nil
}

// LoadFile reads and compiles a rules file.
func LoadFile(path string) (*Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	rules, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Compile(rules)
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("owner", cel.IntType),
		cel.Variable("name", cel.StringType),
		cel.Variable("known", cel.BoolType),
		cel.Variable("depots", cel.IntType),
	)
}

// Compile type-checks every rule. Each condition must evaluate to a bool.
func Compile(rules []Rule) (*Filter, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	f := &Filter{rules: make([]compiled, 0, len(rules))}
	seen := make(map[string]bool, len(rules))

	for i, r := range rules {
		if r.ID == "" {
			r.ID = fmt.Sprintf("rule-%d", i+1)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %s", ErrInvalidRule, r.ID)
		}
		seen[r.ID] = true

		switch r.Action {
		case ActionSkip, ActionKeep:
		default:
			return nil, fmt.Errorf("%w: rule %s has unknown action %q", ErrInvalidRule, r.ID, r.Action)
		}

		ast, issues := env.Compile(r.Condition)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("%w: rule %s compilation error: %w", ErrInvalidRule, r.ID, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("%w: rule %s must return bool, got %s", ErrInvalidRule, r.ID, ast.OutputType())
		}

		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %s program creation error: %w", ErrInvalidRule, r.ID, err)
		}
		f.rules = append(f.rules, compiled{rule: r, program: prg})
	}
	return f, nil
}

// Len is the number of compiled rules.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rules)
}

// Decide evaluates the rules against an owner.
func (f *Filter) Decide(o Owner) (Decision, error) {
	if f == nil {
		return Decision{}, nil
	}

	vars := map[string]any{
		"owner":  int64(o.ID),
		"name":   o.Name,
		"known":  o.Known,
		"depots": int64(o.Depots),
	}

	for _, c := range f.rules {
		out, _, err := c.program.Eval(vars)
		if err != nil {
			return Decision{}, fmt.Errorf("rule %s evaluation failed for owner %d: %w", c.rule.ID, o.ID, err)
		}
		if match, ok := out.Value().(bool); ok && match {
			return Decision{Skip: c.rule.Action == ActionSkip, RuleID: c.rule.ID}, nil
		}
	}
	return Decision{}, nil
}
