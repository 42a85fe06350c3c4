package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

// compiledGuard is a guard with its deny query prepared.
type compiledGuard struct {
	guard *Guard
	query rego.PreparedEvalQuery
}

// compileGuard parses the guard's module and prepares the query for its
// deny set.
func compileGuard(ctx context.Context, g *Guard) (*compiledGuard, error) {
	module, err := ast.ParseModule(g.Name, g.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse guard: %w", err)
	}
	query := fmt.Sprintf("%s.deny", module.Package.Path)

	prepared, err := rego.New(
		rego.Module(g.Name, g.Rego),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}
	return &compiledGuard{guard: g, query: prepared}, nil
}

// evaluate returns the violations of one guard.
func (cg *compiledGuard) evaluate(ctx context.Context, input *GuardInput) ([]Violation, error) {
	results, err := cg.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("guard evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, cg.violation(d))
		}
	}
	return violations, nil
}

// violation creates a Violation from one deny element: a message string or
// an object with message and severity.
func (cg *compiledGuard) violation(result interface{}) Violation {
	v := Violation{
		Guard:    cg.guard.Name,
		Severity: cg.guard.Severity,
	}

	switch d := result.(type) {
	case string:
		v.Message = d
	case map[string]interface{}:
		if msg, ok := d["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := d["severity"].(string); ok {
			v.Severity = Severity(strings.ToLower(sev))
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}
