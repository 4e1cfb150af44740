package engine

import (
	"context"
	"time"

	"github.com/vk/flowgrid/internal/model"
)

// Observer is notified around every node invocation. Calls happen on the run
// goroutine; implementations must not block.
type Observer interface {
	NodeStarted(ctx context.Context, run *Run, node model.Node)
	// NodeFinished receives err when the behavior failed and aborted the run.
	NodeFinished(ctx context.Context, run *Run, node model.Node, result model.NodeResult, err error, elapsed time.Duration)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) NodeStarted(context.Context, *Run, model.Node) {}

func (NopObserver) NodeFinished(context.Context, *Run, model.Node, model.NodeResult, error, time.Duration) {
}
