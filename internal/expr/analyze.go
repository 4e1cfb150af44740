package expr

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

// Analysis describes what an expression reads and calls.
type Analysis struct {
	// References are canonical traversal strings such as "vars.items" or "count".
	References []string
	// Functions are the names of called functions.
	Functions []string
}

// Check parses src without evaluating it and reports its references and calls.
// Calls outside the allow-list are an error. Templates are accepted when
// template is true.
func (e *Evaluator) Check(src string, template bool) (*Analysis, error) {
	var (
		parsed hclsyntax.Expression
		diags  hcl.Diagnostics
	)
	if template {
		parsed, diags = hclsyntax.ParseTemplate([]byte(src), "template", hcl.Pos{Line: 1, Column: 1})
	} else {
		parsed, diags = hclsyntax.ParseExpression([]byte(src), "expression", hcl.Pos{Line: 1, Column: 1})
	}
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse: %w", diags)
	}
	if err := e.checkFunctions(parsed); err != nil {
		return nil, err
	}
	refs, funcs := extractReferencesAndFunctions(parsed)
	out := &Analysis{Functions: funcs}
	for _, r := range refs {
		out.References = append(out.References, TraversalKey(r))
	}
	return out, nil
}

// TraversalKey generates a stable, canonical string representation for an hcl.Traversal.
func TraversalKey(t hcl.Traversal) string {
	return string(hclwrite.TokensForTraversal(t).Bytes())
}

// extractReferencesAndFunctions walks an expression to find all unique
// variable traversals and function calls, both sorted.
func extractReferencesAndFunctions(expr hclsyntax.Expression) ([]hcl.Traversal, []string) {
	traversals := make(map[string]hcl.Traversal)
	functions := make(map[string]struct{})

	for _, traversal := range expr.Variables() {
		traversals[TraversalKey(traversal)] = traversal
	}
	walkForFunctions(expr, functions)

	keys := make([]string, 0, len(traversals))
	for k := range traversals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	refs := make([]hcl.Traversal, 0, len(keys))
	for _, k := range keys {
		refs = append(refs, traversals[k])
	}

	funcs := make([]string, 0, len(functions))
	for f := range functions {
		funcs = append(funcs, f)
	}
	sort.Strings(funcs)

	return refs, funcs
}

// walkForFunctions recursively walks the AST, looking only for function calls.
func walkForFunctions(expr hclsyntax.Expression, functions map[string]struct{}) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, functions)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, functions)
		walkForFunctions(e.RHS, functions)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, functions)
		walkForFunctions(e.TrueResult, functions)
		walkForFunctions(e.FalseResult, functions)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, functions)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, functions)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.TemplateJoinExpr:
		walkForFunctions(e.Tuple, functions)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, functions)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkForFunctions(item.KeyExpr, functions)
			walkForFunctions(item.ValueExpr, functions)
		}
	case *hclsyntax.ObjectConsKeyExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.ForExpr:
		walkForFunctions(e.CollExpr, functions)
		walkForFunctions(e.KeyExpr, functions)
		walkForFunctions(e.ValExpr, functions)
		walkForFunctions(e.CondExpr, functions)
	case *hclsyntax.IndexExpr:
		walkForFunctions(e.Collection, functions)
		walkForFunctions(e.Key, functions)
	case *hclsyntax.RelativeTraversalExpr:
		walkForFunctions(e.Source, functions)
	case *hclsyntax.SplatExpr:
		walkForFunctions(e.Source, functions)
		walkForFunctions(e.Each, functions)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, functions)
	}
}
