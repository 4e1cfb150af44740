package registry

import (
	"context"
	"slices"

	"github.com/vk/flowgrid/internal/model"
)

// Category groups node types for calling UIs. The engine does not interpret it
// beyond trigger discovery.
type Category string

const (
	CategoryTrigger Category = "trigger"
	CategoryAction  Category = "action"
	CategoryLogic   Category = "logic"
	CategoryData    Category = "data"
)

// Flow selects the control structure the engine applies to a node.
type Flow int

const (
	// FlowStep is the generic dispatch rule: run once, follow one output port.
	FlowStep Flow = iota
	// FlowLoop fires "iteration" LoopCount times, then "complete" once.
	FlowLoop
	// FlowMerge may hold back dispatch until all connected inputs arrived.
	FlowMerge
)

// Behavior executes one invocation of a node. A returned error is treated as
// an unhandled failure and aborts the run; business failures are reported as
// a NodeResult with Success false.
type Behavior interface {
	Execute(ctx context.Context, nc *Context) (model.NodeResult, error)
}

// BehaviorFunc adapts a function to the Behavior interface.
type BehaviorFunc func(ctx context.Context, nc *Context) (model.NodeResult, error)

func (f BehaviorFunc) Execute(ctx context.Context, nc *Context) (model.NodeResult, error) {
	return f(ctx, nc)
}

// Definition is the static description of a node type. It must not be
// modified after registration.
type Definition struct {
	Type     string
	Name     string
	Icon     string
	Category Category
	Inputs   []string
	Outputs  []string
	Defaults map[string]any
	Flow     Flow
	Behavior Behavior

	// Templates names config keys rendered as `${...}` templates at run time.
	Templates []string
	// Expressions names config keys evaluated as a single expression.
	Expressions []string
}

// HasInput reports whether the type declares the named input port.
func (d *Definition) HasInput(port string) bool {
	return slices.Contains(d.Inputs, port)
}

// HasOutput reports whether the type declares the named output port.
func (d *Definition) HasOutput(port string) bool {
	return slices.Contains(d.Outputs, port)
}

// DefaultConfig returns a private copy of the default configuration.
func (d *Definition) DefaultConfig() map[string]any {
	return model.CloneMap(d.Defaults)
}

// EffectiveConfig overlays a node's configuration on the type defaults.
func (d *Definition) EffectiveConfig(overrides map[string]any) map[string]any {
	return model.MergeConfig(d.Defaults, overrides)
}
