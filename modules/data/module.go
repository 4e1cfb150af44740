// Package data provides the node types that write the run's variable scope:
// data-set, data-transform and data-env.
package data

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
)

// DefaultEnvPrefix limits data-env to variables meant for workflows.
const DefaultEnvPrefix = "FLOWGRID_WF_"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the data node types.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Definition{
		Type:     "data-set",
		Name:     "Set Variable",
		Icon:     "📝",
		Category: registry.CategoryData,
		Inputs:   []string{"trigger"},
		Outputs:  []string{"next"},
		Defaults: map[string]any{"name": "", "value": ""},
		Behavior: registry.BehaviorFunc(onSet),

		Templates: []string{"value"},
	})
	r.Register(&registry.Definition{
		Type:     "data-transform",
		Name:     "Transform Data",
		Icon:     "🔄",
		Category: registry.CategoryData,
		Inputs:   []string{"trigger"},
		Outputs:  []string{"next"},
		Defaults: map[string]any{"expression": ""},
		Behavior: registry.BehaviorFunc(onTransform),

		Expressions: []string{"expression"},
	})
	r.Register(&registry.Definition{
		Type:     "data-env",
		Name:     "Environment",
		Icon:     "🌱",
		Category: registry.CategoryData,
		Inputs:   []string{"trigger"},
		Outputs:  []string{"next"},
		Defaults: map[string]any{"name": "env", "prefix": DefaultEnvPrefix},
		Behavior: registry.BehaviorFunc(onEnv),
	})
}

// onSet stores the configured value under the configured name. A value that
// is a template is rendered first; "${items}" keeps the type of items.
func onSet(ctx context.Context, nc *registry.Context) (model.NodeResult, error) {
	name := nc.String("name")
	if name == "" {
		return model.NodeResult{}, errors.New("variable name is required")
	}
	value, err := nc.Render("value")
	if err != nil {
		return model.NodeResult{}, err
	}
	nc.Vars.Set(name, model.CloneValue(value))
	ctxlog.FromContext(ctx).Debug("Variable set.", "name", name)
	return model.NodeResult{Success: true, Output: "next", Data: model.CloneValue(value)}, nil
}

// onTransform evaluates the expression in the sandbox and stores the result
// under _result. Evaluation errors are business failures, not run failures.
func onTransform(_ context.Context, nc *registry.Context) (model.NodeResult, error) {
	if nc.Expr == nil {
		return model.NodeResult{}, errors.New("no expression evaluator available")
	}
	result, err := nc.Expr.Eval(nc.String("expression"), nc.Vars.Snapshot())
	if err != nil {
		return model.NodeResult{Success: false, Output: "next", Error: err.Error()}, nil
	}
	nc.Vars.Set(model.ResultVar, result)
	return model.NodeResult{Success: true, Output: "next", Data: model.CloneValue(result)}, nil
}

// onEnv copies environment variables starting with prefix into a map
// variable, with the prefix stripped from their names.
func onEnv(_ context.Context, nc *registry.Context) (model.NodeResult, error) {
	name := nc.String("name")
	prefix := nc.String("prefix")
	if name == "" {
		return model.NodeResult{}, errors.New("variable name is required")
	}
	if prefix == "" {
		return model.NodeResult{}, errors.New("prefix is required")
	}

	envMap := make(map[string]any)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 && strings.HasPrefix(pair[0], prefix) {
			envMap[strings.TrimPrefix(pair[0], prefix)] = pair[1]
		}
	}
	nc.Vars.Set(name, envMap)
	return model.NodeResult{Success: true, Output: "next", Data: model.CloneMap(envMap)}, nil
}
