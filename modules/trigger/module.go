// Package trigger provides the node types that start a run. They only hand
// the trigger payload on; when and why a run starts is up to the caller.
package trigger

import (
	"context"

	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the trigger node types with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Definition{
		Type:     "trigger-manual",
		Name:     "Manual Trigger",
		Icon:     "▶️",
		Category: registry.CategoryTrigger,
		Outputs:  []string{"next"},
		Defaults: map[string]any{},
		Behavior: registry.BehaviorFunc(onTrigger),
	})
	r.Register(&registry.Definition{
		Type:     "trigger-schedule",
		Name:     "Schedule",
		Icon:     "⏰",
		Category: registry.CategoryTrigger,
		Outputs:  []string{"next"},
		Defaults: map[string]any{"cron": "0 9 * * *"},
		Behavior: registry.BehaviorFunc(onTrigger),
	})
	r.Register(&registry.Definition{
		Type:     "trigger-event",
		Name:     "Event Trigger",
		Icon:     "⚡",
		Category: registry.CategoryTrigger,
		Outputs:  []string{"next"},
		Defaults: map[string]any{"event": "message-received"},
		Behavior: registry.BehaviorFunc(onTrigger),
	})
}

func onTrigger(_ context.Context, nc *registry.Context) (model.NodeResult, error) {
	return model.NodeResult{Success: true, Output: "next", Data: model.CloneMap(nc.Trigger)}, nil
}
