package registry

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vk/flowgrid/internal/capability"
	"github.com/vk/flowgrid/internal/expr"
	"github.com/vk/flowgrid/internal/model"
)

// Context is everything a behavior sees for one node invocation.
type Context struct {
	RunID      string
	WorkflowID string
	Node       model.Node
	// Input is the input port the node was reached through. Empty for the trigger.
	Input string
	// Config is the effective configuration: type defaults merged with the
	// node's overrides.
	Config map[string]any
	// Vars is the run's shared variable scope. Writes are visible to every
	// node dispatched afterwards.
	Vars    *model.Scope
	Trigger map[string]any
	// Results returns the last result recorded for a node in this run.
	Results func(nodeID string) (model.NodeResult, bool)
	Caps    capability.Set
	Expr    *expr.Evaluator
}

// String returns the configuration value under key as text.
func (c *Context) String(key string) string {
	return expr.Stringify(c.Config[key])
}

// Int returns the configuration value under key as an integer. Numeric strings
// are accepted; numbers with a fractional part are rejected.
func (c *Context) Int(key string) (int, error) {
	switch v := c.Config[key].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("config %q: %q is not an integer", key, v)
		}
		return n, nil
	default:
		f, ok := expr.AsNumber(v)
		if !ok {
			return 0, fmt.Errorf("config %q: %v is not a number", key, v)
		}
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("config %q: %v is not an integer", key, v)
		}
		return int(f), nil
	}
}

// Bool returns the configuration value under key as a boolean.
func (c *Context) Bool(key string) bool {
	switch v := c.Config[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	default:
		return false
	}
}

// StringMap returns the configuration value under key as string pairs.
func (c *Context) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch v := c.Config[key].(type) {
	case map[string]string:
		for k, s := range v {
			out[k] = s
		}
	case map[string]any:
		for k, s := range v {
			out[k] = expr.Stringify(s)
		}
	}
	return out
}

// Render evaluates a string configuration value as a template against the
// current variables. Values that are not strings are returned unchanged.
func (c *Context) Render(key string) (any, error) {
	raw := c.Config[key]
	s, ok := raw.(string)
	if !ok || c.Expr == nil || !expr.IsTemplate(s) {
		return raw, nil
	}
	v, err := c.Expr.Render(s, c.Vars.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("config %q: %w", key, err)
	}
	return v, nil
}

// RenderString is Render formatted as text.
func (c *Context) RenderString(key string) (string, error) {
	v, err := c.Render(key)
	if err != nil {
		return "", err
	}
	return expr.Stringify(v), nil
}
