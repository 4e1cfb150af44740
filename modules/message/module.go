// Package message provides the action-message node type and a socket.io
// backed chat capability for it.
package message

import (
	"context"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the action-message node type.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Definition{
		Type:     "action-message",
		Name:     "Send Message",
		Icon:     "💬",
		Category: registry.CategoryAction,
		Inputs:   []string{"trigger"},
		Outputs:  []string{"success", "error"},
		Defaults: map[string]any{"message": ""},
		Behavior: registry.BehaviorFunc(onSendMessage),

		Templates: []string{"message"},
	})
}

// onSendMessage renders the message template and hands it to the chat
// capability. Without a chat capability the message is only logged.
func onSendMessage(ctx context.Context, nc *registry.Context) (model.NodeResult, error) {
	text, err := nc.RenderString("message")
	if err != nil {
		return model.NodeResult{Success: false, Output: "error", Error: err.Error()}, nil
	}

	logger := ctxlog.FromContext(ctx)
	if nc.Caps.Messenger == nil {
		logger.Info("No chat capability configured, message not delivered.", "message", text)
		return model.NodeResult{Success: true, Output: "success", Data: map[string]any{"message": text, "delivered": false}}, nil
	}

	if err := nc.Caps.Messenger.SendMessage(ctx, text); err != nil {
		logger.Warn("Sending message failed.", "error", err)
		return model.NodeResult{Success: false, Output: "error", Error: err.Error()}, nil
	}
	return model.NodeResult{Success: true, Output: "success", Data: map[string]any{"message": text, "delivered": true}}, nil
}
