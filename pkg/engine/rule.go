package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/openfroyo/cedarbridge/pkg/authz"
)

// principalsVar is the CEL variable holding the decision per principal.
const principalsVar = "principals"

// PrincipalRule combines principal decisions. It is written as a JSON-logic
// rule over principal names, for example
//
//	{"and": [{"===": [{"var": "Jans::Workload"}, "ALLOW"]},
//	         {"===": [{"var": "Jans::User"}, "ALLOW"]}]}
//
// and runs as a compiled CEL program. A principal that was not evaluated
// reads as the empty string.
type PrincipalRule struct {
	expr    string
	vars    []string
	program cel.Program
}

// CompilePrincipalRule compiles a JSON-logic rule. An empty rule yields nil.
func CompilePrincipalRule(rule map[string]any) (*PrincipalRule, error) {
	if len(rule) == 0 {
		return nil, nil
	}

	vars := map[string]struct{}{}
	expr, err := translateRule(rule, vars)
	if err != nil {
		return nil, err
	}

	env, err := cel.NewEnv(
		cel.Variable(principalsVar, cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("invalid principal rule: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("principal rule must yield a boolean, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build principal rule: %w", err)
	}

	names := make([]string, 0, len(vars))
	for v := range vars {
		names = append(names, v)
	}
	sort.Strings(names)

	return &PrincipalRule{expr: expr, vars: names, program: prg}, nil
}

// Expr returns the CEL expression the rule compiled to.
func (r *PrincipalRule) Expr() string { return r.expr }

// Vars returns the principal names the rule reads, sorted.
func (r *PrincipalRule) Vars() []string { return append([]string(nil), r.vars...) }

// Eval applies the rule to the decisions keyed by principal name.
func (r *PrincipalRule) Eval(decisions map[string]authz.Decision) (bool, error) {
	values := make(map[string]string, len(decisions)+len(r.vars))
	for _, v := range r.vars {
		values[v] = ""
	}
	for name, d := range decisions {
		values[name] = string(d)
	}

	out, _, err := r.program.Eval(map[string]any{principalsVar: values})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate principal rule: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("principal rule yielded %T, want bool", out.Value())
	}
	return b, nil
}

// translateRule rewrites a JSON-logic node as a CEL expression.
func translateRule(node any, vars map[string]struct{}) (string, error) {
	switch n := node.(type) {
	case string:
		return strconv.Quote(n), nil
	case bool:
		return strconv.FormatBool(n), nil
	case map[string]any:
		if len(n) != 1 {
			return "", fmt.Errorf("rule object must have exactly one operator, got %d", len(n))
		}
		for op, raw := range n {
			return translateOp(op, ruleArgs(raw), vars)
		}
	}
	return "", fmt.Errorf("unsupported rule value %v (%T)", node, node)
}

func translateOp(op string, args []any, vars map[string]struct{}) (string, error) {
	switch op {
	case "var":
		if len(args) != 1 {
			return "", fmt.Errorf("var takes one argument, got %d", len(args))
		}
		name, ok := args[0].(string)
		if !ok || name == "" {
			return "", fmt.Errorf("var argument must be a principal name, got %v", args[0])
		}
		vars[name] = struct{}{}
		return fmt.Sprintf("%s[%s]", principalsVar, strconv.Quote(name)), nil

	case "and", "or":
		if len(args) == 0 {
			return "", fmt.Errorf("%s needs at least one argument", op)
		}
		sep := " && "
		if op == "or" {
			sep = " || "
		}
		parts, err := translateAll(args, vars)
		if err != nil {
			return "", err
		}
		return "(" + strings.Join(parts, sep) + ")", nil

	case "!":
		if len(args) != 1 {
			return "", fmt.Errorf("! takes one argument, got %d", len(args))
		}
		inner, err := translateRule(args[0], vars)
		if err != nil {
			return "", err
		}
		return "!(" + inner + ")", nil

	case "==", "===", "!=", "!==":
		if len(args) != 2 {
			return "", fmt.Errorf("%s takes two arguments, got %d", op, len(args))
		}
		parts, err := translateAll(args, vars)
		if err != nil {
			return "", err
		}
		cmp := "=="
		if strings.HasPrefix(op, "!") {
			cmp = "!="
		}
		return fmt.Sprintf("(%s %s %s)", parts[0], cmp, parts[1]), nil
	}
	return "", fmt.Errorf("unsupported rule operator %q", op)
}

func translateAll(args []any, vars map[string]struct{}) ([]string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		p, err := translateRule(a, vars)
		if err != nil {
			return nil, err
		}
		parts[i] = p
	}
	return parts, nil
}

// ruleArgs accepts both {"op": [a, b]} and the single-argument shorthand
// {"op": a}.
func ruleArgs(raw any) []any {
	if list, ok := raw.([]any); ok {
		return list
	}
	return []any{raw}
}
