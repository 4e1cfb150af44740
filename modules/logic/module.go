// Package logic provides the control-flow node types: condition, loop and
// merge. Loop and merge only describe themselves; the engine implements the
// iteration and join semantics from their Flow.
package logic

import (
	"context"
	"fmt"

	"github.com/vk/flowgrid/internal/expr"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
)

// DefaultLoopCount is the iteration count of a new loop node.
const DefaultLoopCount = 5

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the logic node types.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Definition{
		Type:     "logic-condition",
		Name:     "Condition",
		Icon:     "🔀",
		Category: registry.CategoryLogic,
		Inputs:   []string{"trigger"},
		Outputs:  []string{"true", "false"},
		Defaults: map[string]any{"variable": "", "operator": string(expr.OpEqual), "value": ""},
		Behavior: registry.BehaviorFunc(onCondition),

		Templates: []string{"value"},
	})
	r.Register(&registry.Definition{
		Type:     "logic-loop",
		Name:     "Loop",
		Icon:     "🔁",
		Category: registry.CategoryLogic,
		Inputs:   []string{"trigger"},
		Outputs:  []string{"iteration", "complete"},
		Defaults: map[string]any{"count": DefaultLoopCount},
		Flow:     registry.FlowLoop,
		Behavior: registry.BehaviorFunc(onLoop),
	})
	r.Register(&registry.Definition{
		Type:     "logic-merge",
		Name:     "Merge",
		Icon:     "🔗",
		Category: registry.CategoryLogic,
		Inputs:   []string{"input1", "input2"},
		Outputs:  []string{"next"},
		Defaults: map[string]any{"waitForAll": false},
		Flow:     registry.FlowMerge,
		Behavior: registry.BehaviorFunc(onMerge),
	})
}

// onCondition compares the named variable with the configured value and
// fires "true" or "false". The value may be a template.
func onCondition(_ context.Context, nc *registry.Context) (model.NodeResult, error) {
	left, _ := nc.Vars.Get(nc.String("variable"))
	right, err := nc.Render("value")
	if err != nil {
		return model.NodeResult{}, err
	}
	ok, err := expr.Compare(left, expr.Operator(nc.String("operator")), right)
	if err != nil {
		return model.NodeResult{}, err
	}
	out := "false"
	if ok {
		out = "true"
	}
	return model.NodeResult{Success: true, Output: out, Data: ok}, nil
}

// onLoop reports the iteration count. Negative counts are a configuration error.
func onLoop(_ context.Context, nc *registry.Context) (model.NodeResult, error) {
	n, err := nc.Int("count")
	if err != nil {
		return model.NodeResult{}, err
	}
	if n < 0 {
		return model.NodeResult{}, fmt.Errorf("loop count must not be negative, got %d", n)
	}
	return model.NodeResult{Success: true, Output: "iteration", LoopCount: n}, nil
}

func onMerge(_ context.Context, nc *registry.Context) (model.NodeResult, error) {
	return model.NodeResult{Success: true, Output: "next", Data: map[string]any{"input": nc.Input}}, nil
}
