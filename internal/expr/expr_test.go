package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval_Arithmetic(t *testing.T) {
	e := New()

	got, err := e.Eval("x * 2 + 1", map[string]any{"x": 20})
	require.NoError(t, err)
	assert.Equal(t, 41, got)

	got, err = e.Eval("price / 4", map[string]any{"price": 10})
	require.NoError(t, err)
	assert.Equal(t, 2.5, got)
}

func TestEval_ConditionalAndStrings(t *testing.T) {
	e := New()
	got, err := e.Eval(`count > 3 ? upper(name) : lower(name)`, map[string]any{"count": 5, "name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "ADA", got)
}

func TestEval_AppendsLoopIndex(t *testing.T) {
	e := New()
	vars := map[string]any{"seen": []any{}}
	for i := range 3 {
		vars["_loopIndex"] = i
		got, err := e.Eval("concat(seen, [_loopIndex])", vars)
		require.NoError(t, err)
		vars["seen"] = got
	}
	assert.Equal(t, []any{0, 1, 2}, vars["seen"])
}

func TestEval_VarsObjectReachesAnyName(t *testing.T) {
	e := New()
	got, err := e.Eval(`vars["my-key"]`, map[string]any{"my-key": "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestEval_RejectsFunctionsOutsideAllowList(t *testing.T) {
	e := New()
	_, err := e.Eval(`file("/etc/passwd")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")

	_, err = e.Eval(`upper(timestamp())`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timestamp")
}

func TestEval_Errors(t *testing.T) {
	e := New()

	_, err := e.Eval("", nil)
	assert.Error(t, err)

	_, err = e.Eval("1 +", nil)
	assert.ErrorContains(t, err, "parse")

	_, err = e.Eval("missing + 1", nil)
	assert.ErrorContains(t, err, "evaluate")
}

func TestRender(t *testing.T) {
	e := New()
	vars := map[string]any{"name": "Bob", "items": []any{"a", "b"}, "n": 2}

	got, err := e.Render("plain text", vars)
	require.NoError(t, err)
	assert.Equal(t, "plain text", got)

	got, err = e.Render("hello ${name}!", vars)
	require.NoError(t, err)
	assert.Equal(t, "hello Bob!", got)

	got, err = e.Render("${items}", vars)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got, "a lone interpolation keeps its type")

	s, err := e.RenderString("${n + 1} items", vars)
	require.NoError(t, err)
	assert.Equal(t, "3 items", s)
}

func TestCheck_ReportsReferencesAndFunctions(t *testing.T) {
	e := New()
	a, err := e.Check("upper(name) == vars.other ? length(list) : 0", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"name", "vars.other", "list"}, a.References)
	assert.Equal(t, []string{"length", "upper"}, a.Functions)

	_, err = e.Check("${env(\"HOME\")}", true)
	assert.Error(t, err)
}

func TestFunctions_Sorted(t *testing.T) {
	fns := New().Functions()
	require.NotEmpty(t, fns)
	assert.IsIncreasing(t, fns)
	assert.NotContains(t, fns, "file")
}

func TestCompare(t *testing.T) {
	cases := []struct {
		name  string
		left  any
		op    Operator
		right any
		want  bool
	}{
		{"number equals numeric string", 1, OpEqual, "1", true},
		{"strings equal", "yes", OpEqual, "yes", true},
		{"not equal", "a", OpNotEqual, "b", true},
		{"nil equals empty", nil, OpEqual, "", true},
		{"nil not equal value", nil, OpEqual, "x", false},
		{"numeric greater", "10", OpGreater, "9", true},
		{"numeric less", 2.5, OpLess, 3, true},
		{"text order", "apple", OpLess, "banana", true},
		{"nil never greater", nil, OpGreater, "0", false},
		{"substring", "hello world", OpContains, "world", true},
		{"list element", []any{"x", "y"}, OpContains, "y", true},
		{"missing substring", "hello", OpContains, "z", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compare(tc.left, tc.op, tc.right)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Compare(1, Operator("~="), 1)
	assert.Error(t, err)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "3", Stringify(3.0))
	assert.Equal(t, "2.5", Stringify(2.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, `["a",1]`, Stringify([]any{"a", 1}))
}

func TestConvert_RoundTrip(t *testing.T) {
	in := map[string]any{
		"s":    "x",
		"n":    3,
		"f":    1.5,
		"b":    true,
		"list": []any{1, "two"},
		"obj":  map[string]any{"k": "v"},
		"none": nil,
	}
	v, err := ToCty(in)
	require.NoError(t, err)
	out, err := FromCty(v)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
