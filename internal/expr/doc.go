// Package expr is the sandboxed expression language of flowgrid. Expressions
// use HCL native syntax (arithmetic, comparisons, conditionals, for-expressions,
// `${...}` templates) evaluated against the variables of one run.
//
// Nothing in an expression can reach outside the evaluator: the only callable
// functions are the allow-listed pure functions from go-cty's stdlib, and the
// only readable names are the run variables. Every variable whose name is a
// valid HCL identifier is visible at top level (`count + 1`); all variables are
// also available through the `vars` object (`vars["my-name"]`).
package expr
