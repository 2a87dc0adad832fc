// Package policy evaluates rule-driven retry decisions for gateway calls.
// Rules are govaluate expressions over a flat parameter map; the first rule
// that evaluates to true allows the retry. A rule that fails to evaluate
// (for example, referencing a parameter the caller did not supply) is skipped,
// so a broken rule can never cause extra traffic.
package policy

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// Parameter keys the gateway client supplies on every evaluation. Numeric
// values are passed as float64, as govaluate expects.
const (
	ParamOperation   = "operation"   // string, e.g. "create_charge"
	ParamAttempt     = "attempt"     // float64, 1-based attempt counter
	ParamHTTPStatus  = "http_status" // float64, response status code
	ParamErrorCode   = "error_code"  // string, gateway error code if parsed
	ParamRecoverable = "recoverable" // bool, per the gateway code table
)

// RuleConfig is a single named retry rule.
type RuleConfig struct {
	Name       string
	Expression string
}

// Decision is the outcome of evaluating the rule set.
type Decision struct {
	AllowRetry bool
	Reason     string
}

type rule struct {
	name string
	expr *govaluate.EvaluableExpression
}

// Enforcer holds a compiled rule set.
type Enforcer struct {
	rules []rule
}

// NewEnforcer compiles the given rules.
func NewEnforcer(configs []RuleConfig) (*Enforcer, error) {
	rules := make([]rule, 0, len(configs))
	for _, rc := range configs {
		expr, err := govaluate.NewEvaluableExpression(rc.Expression)
		if err != nil {
			return nil, fmt.Errorf("policy: compiling rule %q: %w", rc.Name, err)
		}
		rules = append(rules, rule{name: rc.Name, expr: expr})
	}
	return &Enforcer{rules: rules}, nil
}

// Evaluate runs the rule set against the parameters. The zero Decision
// (no retry) is returned when no rule matches.
func (e *Enforcer) Evaluate(params map[string]interface{}) Decision {
	for _, r := range e.rules {
		res, err := r.expr.Evaluate(params)
		if err != nil {
			continue
		}
		if allowed, ok := res.(bool); ok && allowed {
			return Decision{AllowRetry: true, Reason: r.name}
		}
	}
	return Decision{}
}

// DefaultRules encodes the gateway's documented transient behavior: a charge
// creation that hits a 503 is retried exactly once.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{
			Name:       "retry-once-on-service-unavailable",
			Expression: "operation == 'create_charge' && http_status == 503 && attempt < 2",
		},
	}
}

// DefaultEnforcer returns an Enforcer with DefaultRules. The default rules
// are constants, so compilation cannot fail.
func DefaultEnforcer() *Enforcer {
	e, err := NewEnforcer(DefaultRules())
	if err != nil {
		panic(err)
	}
	return e
}
