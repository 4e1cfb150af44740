// Package events is the lifecycle event bus. Producers (workflow store, run
// tracker) emit typed events carrying snapshots; dashboards, HTTP streams and
// test harnesses subscribe without depending on engine internals.
package events

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/model"
)

// Type names a lifecycle event.
type Type string

const (
	WorkflowCreated    Type = "workflow-created"
	ExecutionStarted   Type = "execution-started"
	NodeStarted        Type = "node-started"
	NodeCompleted      Type = "node-completed"
	ExecutionCompleted Type = "execution-completed"
	ExecutionFailed    Type = "execution-failed"
	ExecutionStopped   Type = "execution-stopped"
)

// Event is one lifecycle notification. Workflow is set for workflow events,
// Run for execution events, RunID, NodeID and Result for node events. All
// carried values are snapshots owned by the receiver.
type Event struct {
	Type     Type              `json:"type"`
	At       time.Time         `json:"at"`
	Workflow *model.Workflow   `json:"workflow,omitempty"`
	Run      *model.RunState   `json:"run,omitempty"`
	RunID    string            `json:"runId,omitempty"`
	NodeID   string            `json:"nodeId,omitempty"`
	Result   *model.NodeResult `json:"result,omitempty"`
}

// Handler receives events. It runs on the emitting goroutine and must not block.
type Handler func(ctx context.Context, ev Event)

// Emitter publishes events.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// Bus is a synchronous fan-out Emitter.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

// NewBus creates a bus without subscribers.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it again.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// Emit delivers ev to every subscriber in subscription order. A panicking
// handler is logged and skipped.
func (b *Bus) Emit(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		deliver(ctx, h, ev)
	}
}

func deliver(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Event handler panicked.", "event", ev.Type, "panic", r)
		}
	}()
	h(ctx, ev)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

var (
	_ Emitter = (*Bus)(nil)
	_ Emitter = Nop{}
)
