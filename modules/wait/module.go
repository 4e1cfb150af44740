// Package wait provides the action-wait node type, which pauses the branch
// for a configured number of milliseconds.
package wait

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the action-wait node type.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Definition{
		Type:     "action-wait",
		Name:     "Wait",
		Icon:     "⏳",
		Category: registry.CategoryAction,
		Inputs:   []string{"trigger"},
		Outputs:  []string{"next"},
		Defaults: map[string]any{"duration": 1000},
		Behavior: registry.BehaviorFunc(onWait),
	})
}

// onWait sleeps for "duration" milliseconds. Cancellation of the run context
// ends the wait early and is reported as an error.
func onWait(ctx context.Context, nc *registry.Context) (model.NodeResult, error) {
	ms, err := nc.Int("duration")
	if err != nil {
		return model.NodeResult{}, err
	}
	if ms < 0 {
		return model.NodeResult{}, fmt.Errorf("duration must not be negative, got %d", ms)
	}
	d := time.Duration(ms) * time.Millisecond
	ctxlog.FromContext(ctx).Debug("Waiting.", "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return model.NodeResult{Success: true, Output: "next", Data: map[string]any{"waited": ms}}, nil
	case <-ctx.Done():
		return model.NodeResult{}, fmt.Errorf("wait interrupted: %w", ctx.Err())
	}
}
