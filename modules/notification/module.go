// Package notification provides the action-notification node type and a
// notifier capability that prints notifications to a writer.
package notification

import (
	"context"

	"github.com/vk/flowgrid/internal/capability"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the action-notification node type.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Definition{
		Type:     "action-notification",
		Name:     "Show Notification",
		Icon:     "🔔",
		Category: registry.CategoryAction,
		Inputs:   []string{"trigger"},
		Outputs:  []string{"next"},
		Defaults: map[string]any{"title": "", "message": ""},
		Behavior: registry.BehaviorFunc(onNotify),

		Templates: []string{"title", "message"},
	})
}

func onNotify(ctx context.Context, nc *registry.Context) (model.NodeResult, error) {
	title, err := nc.RenderString("title")
	if err != nil {
		return model.NodeResult{Success: false, Output: "next", Error: err.Error()}, nil
	}
	message, err := nc.RenderString("message")
	if err != nil {
		return model.NodeResult{Success: false, Output: "next", Error: err.Error()}, nil
	}
	data := map[string]any{"title": title, "message": message}

	if nc.Caps.Notifier == nil {
		ctxlog.FromContext(ctx).Info("Notification.", "title", title, "message", message)
		return model.NodeResult{Success: true, Output: "next", Data: data}, nil
	}
	if err := nc.Caps.Notifier.Notify(ctx, message, capability.LevelInfo); err != nil {
		return model.NodeResult{Success: false, Output: "next", Error: err.Error(), Data: data}, nil
	}
	return model.NodeResult{Success: true, Output: "next", Data: data}, nil
}
