package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/expr"
	"github.com/vk/flowgrid/internal/model"
)

func noop(output string) Behavior {
	return BehaviorFunc(func(context.Context, *Context) (model.NodeResult, error) {
		return model.NodeResult{Success: true, Output: output}, nil
	})
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New()
	r.Register(&Definition{Type: "b-node", Category: CategoryAction, Outputs: []string{"next"}, Behavior: noop("next")})
	r.Register(&Definition{Type: "a-node", Category: CategoryTrigger, Outputs: []string{"next"}, Behavior: noop("next")})

	def, err := r.Lookup("a-node")
	require.NoError(t, err)
	assert.Equal(t, CategoryTrigger, def.Category)

	_, err = r.Lookup("nope")
	assert.ErrorIs(t, err, model.ErrUnknownNodeType)

	assert.Equal(t, []string{"a-node", "b-node"}, r.Types())
	require.Len(t, r.ByCategory(CategoryAction), 1)
	assert.Equal(t, "b-node", r.ByCategory(CategoryAction)[0].Type)
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := New()
	r.Register(&Definition{Type: "x", Name: "first", Behavior: noop("next")})
	r.Register(&Definition{Type: "x", Name: "second", Behavior: noop("next")})

	def, ok := r.Get("x")
	require.True(t, ok)
	assert.Equal(t, "second", def.Name)
	assert.Len(t, r.Types(), 1)
}

func TestRegistry_RejectsIncompleteDefinitions(t *testing.T) {
	r := New()
	assert.Panics(t, func() { r.Register(&Definition{}) })
	assert.Panics(t, func() { r.Register(&Definition{Type: "no-behavior"}) })
}

func TestDefinition_Ports(t *testing.T) {
	def := &Definition{Inputs: []string{"input1", "input2"}, Outputs: []string{"success", "error"}}
	assert.True(t, def.HasInput("input2"))
	assert.False(t, def.HasInput("trigger"))
	assert.True(t, def.HasOutput("error"))
	assert.False(t, def.HasOutput("next"))
}

func TestDefinition_EffectiveConfig(t *testing.T) {
	def := &Definition{Defaults: map[string]any{"method": "GET", "headers": map[string]any{}}}
	cfg := def.EffectiveConfig(map[string]any{"url": "http://x"})
	cfg["headers"].(map[string]any)["A"] = "b"

	assert.Equal(t, "GET", cfg["method"])
	assert.Equal(t, "http://x", cfg["url"])
	assert.Empty(t, def.Defaults["headers"])
}

func TestContext_Accessors(t *testing.T) {
	nc := &Context{
		Config: map[string]any{
			"count":   "7",
			"f":       3.0,
			"flag":    "true",
			"headers": map[string]any{"X-N": 1},
			"message": "hi ${who}",
		},
		Vars: model.NewScope(map[string]any{"who": "there"}),
		Expr: expr.New(),
	}

	n, err := nc.Int("count")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = nc.Int("f")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.True(t, nc.Bool("flag"))
	assert.Equal(t, map[string]string{"X-N": "1"}, nc.StringMap("headers"))

	msg, err := nc.RenderString("message")
	require.NoError(t, err)
	assert.Equal(t, "hi there", msg)

	nc.Config["count"] = "seven"
	_, err = nc.Int("count")
	assert.Error(t, err)
}

func TestContext_IntRejectsFractions(t *testing.T) {
	for _, v := range []any{2.9, float32(0.5), "2.9"} {
		nc := &Context{Config: map[string]any{"count": v}}
		_, err := nc.Int("count")
		assert.ErrorContains(t, err, "is not an integer", "value %v", v)
	}

	nc := &Context{Config: map[string]any{"count": int64(4)}}
	n, err := nc.Int("count")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
