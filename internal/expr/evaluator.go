package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// VarsObject is the name under which every variable is reachable, including
// those whose names are not valid identifiers.
const VarsObject = "vars"

// Evaluator evaluates expressions and templates. It holds no per-run state and
// is safe for concurrent use.
type Evaluator struct {
	functions map[string]function.Function
}

// New creates an evaluator with the default allow-list of pure functions.
func New() *Evaluator {
	return &Evaluator{functions: map[string]function.Function{
		"abs":        stdlib.AbsoluteFunc,
		"ceil":       stdlib.CeilFunc,
		"coalesce":   stdlib.CoalesceFunc,
		"concat":     stdlib.ConcatFunc,
		"contains":   stdlib.ContainsFunc,
		"distinct":   stdlib.DistinctFunc,
		"element":    stdlib.ElementFunc,
		"flatten":    stdlib.FlattenFunc,
		"floor":      stdlib.FloorFunc,
		"format":     stdlib.FormatFunc,
		"int":        stdlib.IntFunc,
		"join":       stdlib.JoinFunc,
		"jsondecode": stdlib.JSONDecodeFunc,
		"jsonencode": stdlib.JSONEncodeFunc,
		"keys":       stdlib.KeysFunc,
		"length":     stdlib.LengthFunc,
		"lookup":     stdlib.LookupFunc,
		"lower":      stdlib.LowerFunc,
		"max":        stdlib.MaxFunc,
		"merge":      stdlib.MergeFunc,
		"min":        stdlib.MinFunc,
		"range":      stdlib.RangeFunc,
		"replace":    stdlib.ReplaceFunc,
		"sort":       stdlib.SortFunc,
		"split":      stdlib.SplitFunc,
		"strlen":     stdlib.StrlenFunc,
		"substr":     stdlib.SubstrFunc,
		"trimspace":  stdlib.TrimSpaceFunc,
		"upper":      stdlib.UpperFunc,
		"values":     stdlib.ValuesFunc,
	}}
}

// Functions lists the callable function names, sorted.
func (e *Evaluator) Functions() []string {
	names := make([]string, 0, len(e.functions))
	for name := range e.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Eval parses src as a single expression and evaluates it against vars.
func (e *Evaluator) Eval(src string, vars map[string]any) (any, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("expression is empty")
	}
	parsed, diags := hclsyntax.ParseExpression([]byte(src), "expression", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse expression: %w", diags)
	}
	return e.evaluate(parsed, vars)
}

// Render evaluates s as a template. Strings without interpolation sequences
// are returned unchanged. A template consisting of a single `${...}` sequence
// yields the raw value of the wrapped expression, so "${items}" stays a list.
func (e *Evaluator) Render(s string, vars map[string]any) (any, error) {
	if !IsTemplate(s) {
		return s, nil
	}
	parsed, diags := hclsyntax.ParseTemplate([]byte(s), "template", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse template: %w", diags)
	}
	return e.evaluate(parsed, vars)
}

// RenderString renders a template and formats the result as text.
func (e *Evaluator) RenderString(s string, vars map[string]any) (string, error) {
	v, err := e.Render(s, vars)
	if err != nil {
		return "", err
	}
	return Stringify(v), nil
}

// IsTemplate reports whether s contains an interpolation or directive sequence.
func IsTemplate(s string) bool {
	return strings.Contains(s, "${") || strings.Contains(s, "%{")
}

func (e *Evaluator) evaluate(parsed hclsyntax.Expression, vars map[string]any) (any, error) {
	if err := e.checkFunctions(parsed); err != nil {
		return nil, err
	}
	evalCtx, err := e.evalContext(vars)
	if err != nil {
		return nil, err
	}
	val, diags := parsed.Value(evalCtx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to evaluate expression: %w", diags)
	}
	return FromCty(val)
}

// checkFunctions rejects calls to anything outside the allow-list before
// evaluation starts.
func (e *Evaluator) checkFunctions(parsed hclsyntax.Expression) error {
	_, funcs := extractReferencesAndFunctions(parsed)
	var denied []string
	for _, name := range funcs {
		if _, ok := e.functions[name]; !ok {
			denied = append(denied, name)
		}
	}
	if len(denied) > 0 {
		return fmt.Errorf("call to function(s) not allowed in expressions: %s", strings.Join(denied, ", "))
	}
	return nil
}

// evalContext creates the HCL evaluation context for one evaluation.
func (e *Evaluator) evalContext(vars map[string]any) (*hcl.EvalContext, error) {
	variables := make(map[string]cty.Value, len(vars)+1)
	all := make(map[string]cty.Value, len(vars))
	for name, raw := range vars {
		val, err := ToCty(raw)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		all[name] = val
		if hclsyntax.ValidIdentifier(name) {
			variables[name] = val
		}
	}
	variables[VarsObject] = cty.ObjectVal(all)
	return &hcl.EvalContext{Variables: variables, Functions: e.functions}, nil
}
